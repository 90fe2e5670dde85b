package breaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestDoWrapsFailuresAsGatewayUnavailable(t *testing.T) {
	b := New(DefaultConfig("test"), nil)
	_, err := Do(b, func() (string, error) { return "", errors.New("boom") })
	require.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	require.Contains(t, err.Error(), "boom")

	out, err := Do(b, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("flaky")
	cfg.ConsecutiveFailures = 2
	b := New(cfg, nil)
	for i := 0; i < 2; i++ {
		_, _ = Do(b, func() (int, error) { return 0, errors.New("down") })
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	calls := 0
	_, err := Do(b, func() (int, error) { calls++; return 1, nil })
	require.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	require.Zero(t, calls)
}
