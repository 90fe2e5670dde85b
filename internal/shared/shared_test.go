package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStockErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("order 3: %w", &InsufficientStockError{ProductID: 5, ProductName: "Kubek", Available: 2, Requested: 3})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var detail *InsufficientStockError
	require.True(t, errors.As(err, &detail))
	require.Equal(t, 2, detail.Available)
	require.Contains(t, err.Error(), "Kubek: available 2, requested 3")

	anonymous := &InsufficientStockError{ProductID: 5, Requested: 1}
	require.Contains(t, anonymous.Error(), "product #5")
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(fmt.Errorf("lock: %w", ErrConcurrencyConflict)))
	require.True(t, IsRetryable(fmt.Errorf("payu: %w", ErrGatewayUnavailable)))
	require.False(t, IsRetryable(ErrInsufficientStock))
	require.False(t, IsRetryable(ErrDuplicateFulfillment))
	require.False(t, IsRetryable(nil))
}

func TestMemoryAuditLogFillsRequestInfo(t *testing.T) {
	ctx := ContextWithRequestInfo(context.Background(), RequestInfo{ActorID: 4, IP: "10.0.0.1"})
	log := &MemoryAuditLog{}

	require.NoError(t, log.Record(ctx, AuditLog{Action: "STOCK_RECEIPT", Resource: "stock"}))
	require.NoError(t, log.Record(context.Background(), AuditLog{Action: "ORDER_CREATE", Resource: "orders", ActorID: 9}))
	require.Error(t, log.Record(ctx, AuditLog{Action: "STOCK_RECEIPT"}))

	entries := log.Entries("STOCK_RECEIPT")
	require.Len(t, entries, 1)
	require.Equal(t, int64(4), entries[0].ActorID)
	require.Equal(t, "10.0.0.1", entries[0].IP)
	require.Equal(t, AuditSuccess, entries[0].Status)
	require.NotEqual(t, uuid.Nil, entries[0].EventID)
	require.False(t, entries[0].At.IsZero())
	require.Len(t, log.Entries(""), 2)
	require.Equal(t, int64(0), ActorFromContext(context.Background()))
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 25)
	require.Equal(t, Pagination{Page: 1, PerPage: 10, Total: 25, TotalPages: 3}, p)

	p = NewPagination(2, 500, 250)
	require.Equal(t, 100, p.PerPage)
	require.Equal(t, 3, p.TotalPages)

	require.Equal(t, 20, Offset(3, 10))
	require.Equal(t, 0, Offset(-1, 10))
}
