package warehouse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeItemsToleratesLegacyRows(t *testing.T) {
	raw := `[
		{"product_id": 1, "product_name": "Młotek", "product_code": "M-1", "quantity": 2, "location": "A-01"},
		{"product_id": 2, "qty": 3.0},
		{"product_name": "", "quantity": 1.6},
		{"product_id": 4}
	]`
	items := DecodeItems(raw)
	require.Len(t, items, 4)

	require.Equal(t, Item{ProductID: 1, ProductName: "Młotek", ProductCode: "M-1", Quantity: 2, Location: "A-01"}, items[0])
	require.Equal(t, 3, items[1].Quantity)
	require.Equal(t, "Nieznany produkt", items[1].ProductName)
	require.Equal(t, "N/A", items[1].ProductCode)
	require.Equal(t, 2, items[2].Quantity)
	require.Zero(t, items[2].ProductID)
	require.Zero(t, items[3].Quantity)
}

func TestDecodeItemsUnreadablePayloads(t *testing.T) {
	for _, raw := range []string{"", "  ", "null", "{not json", `{"product_id": 1}`} {
		items := DecodeItems(raw)
		require.NotNil(t, items, raw)
		require.Empty(t, items, raw)
	}
}

func TestEncodeItemsRoundTrip(t *testing.T) {
	in := []Item{{ProductID: 9, ProductName: "Śruba", ProductCode: "S-9", Quantity: 40, Location: "B-2"}}
	raw, err := EncodeItems(in)
	require.NoError(t, err)
	require.Equal(t, in, DecodeItems(raw))

	raw, err = EncodeItems(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", raw)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusNew, StatusInProgress))
	require.True(t, CanTransition(StatusNew, StatusReleased))
	require.True(t, CanTransition(StatusInProgress, StatusCancelled))
	require.False(t, CanTransition(StatusReleased, StatusCancelled))
	require.False(t, CanTransition(StatusCancelled, StatusNew))
	require.False(t, CanTransition(StatusInProgress, StatusNew))
	require.True(t, StatusReleased.Terminal())
	require.False(t, StatusInProgress.Terminal())

	_, err := ParseStatus("shipped")
	require.Error(t, err)
	s, err := ParseStatus("released")
	require.NoError(t, err)
	require.Equal(t, StatusReleased, s)
}
