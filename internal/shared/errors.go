package shared

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a unique constraint hit.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInsufficientStock is returned when a movement would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition is returned for status changes outside the allow-list.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateFulfillment signals that an order was already fulfilled.
	ErrDuplicateFulfillment = errors.New("order already fulfilled")
	// ErrConcurrencyConflict covers lock timeouts and serialization failures.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrGatewayUnavailable wraps failures of external payment or rendering services.
	ErrGatewayUnavailable = errors.New("external gateway unavailable")
	// ErrUnauthorized indicates missing or wrong credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsRetryable reports whether the caller may retry the operation with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrGatewayUnavailable)
}

// InsufficientStockError describes a rejected stock change. It matches ErrInsufficientStock via errors.Is.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = "#" + strconv.FormatInt(e.ProductID, 10)
	}
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", name, e.Available, e.Requested)
}

// Unwrap exposes the sentinel.
func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
