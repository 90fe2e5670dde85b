// Package breaker wraps sony/gobreaker for calls to external services.
package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Config tunes a breaker.
type Config struct {
	Name                  string
	MaxRequests           uint32
	Interval              time.Duration
	Timeout               time.Duration
	ConsecutiveFailures   uint32
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

// DefaultConfig returns the settings used for payment and rendering gateways.
func DefaultConfig(name string) Config {
	return Config{
		Name:                  name,
		MaxRequests:           1,
		Interval:              time.Minute,
		Timeout:               30 * time.Second,
		ConsecutiveFailures:   5,
		FailureRatioThreshold: 0.6,
		MinRequestsToTrip:     10,
	}
}

// Breaker guards calls to one external dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New constructs a Breaker that logs state changes.
func New(cfg Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests >= cfg.MinRequestsToTrip {
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through the breaker. Every failure, including a rejected call, wraps ErrGatewayUnavailable.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("%s: %w: %v", b.cb.Name(), shared.ErrGatewayUnavailable, err)
	}
	if err != nil {
		if errors.Is(err, shared.ErrGatewayUnavailable) {
			return zero, err
		}
		return zero, fmt.Errorf("%s: %w: %w", b.cb.Name(), shared.ErrGatewayUnavailable, err)
	}
	return out.(T), nil
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
