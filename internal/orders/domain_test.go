package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestExtOrderIDRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0)
	ext := ExtOrderID(42, at)
	require.Equal(t, "42_1700000000", ext)

	id, err := ParseExtOrderID(ext)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestParseExtOrderID(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{in: "17", want: 17, ok: true},
		{in: " 8_123_x ", want: 8, ok: true},
		{in: "", ok: false},
		{in: "_123", ok: false},
		{in: "abc_123", ok: false},
		{in: "0_1", ok: false},
		{in: "-4_1", ok: false},
	}
	for _, tc := range cases {
		got, err := ParseExtOrderID(tc.in)
		if !tc.ok {
			require.ErrorIs(t, err, shared.ErrValidation, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusPendingPayment, StatusCancelled},
		{StatusProcessing, StatusShipped},
		{StatusProcessing, StatusCancelled},
	}
	for _, pair := range allowed {
		require.True(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
	denied := [][2]Status{
		{StatusShipped, StatusProcessing},
		{StatusCancelled, StatusPending},
		{StatusPending, StatusShipped},
		{StatusPendingPayment, StatusShipped},
		{StatusProcessing, StatusPending},
	}
	for _, pair := range denied {
		require.False(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestLineTotalRoundsToCents(t *testing.T) {
	it := Item{Qty: 3, UnitPrice: decimal.RequireFromString("0.335")}
	require.Equal(t, "1.01", it.LineTotal().StringFixed(2))
}

func TestGrossFollowsInvoiceRounding(t *testing.T) {
	it := Item{Qty: 3, UnitPrice: decimal.RequireFromString("0.335"), TaxRate: decimal.NewNullDecimal(decimal.NewFromInt(23))}
	require.Equal(t, "1.24", it.LineGross().StringFixed(2))
	require.Equal(t, "0.42", it.UnitGross().StringFixed(2))

	legacy := Item{Qty: 2, UnitPrice: decimal.RequireFromString("10.00")}
	require.Equal(t, "20.00", legacy.LineGross().StringFixed(2))
	require.Equal(t, "10.00", legacy.UnitGross().StringFixed(2))
}
