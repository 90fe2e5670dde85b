package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/sqlrec"
)

func TestListMovementsOrdering(t *testing.T) {
	rec := &sqlrec.Recorder{}
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := stock.NewMovementStore(rec).ListMovements(context.Background(), stock.MovementFilter{
		ProductID: 3,
		Type:      stock.MovementAdjustment,
		From:      from,
		Search:    "bolt",
		Page:      2,
		PerPage:   5,
	})
	require.ErrorIs(t, err, sqlrec.ErrStopped)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	require.Contains(t, calls[0].SQL, "SELECT COUNT(*)")
	list := sqlrec.Normalized(calls[1].SQL)
	require.Contains(t, list, "ORDER BY m.created_at DESC, m.id DESC LIMIT $4 OFFSET $5")
	require.Contains(t, list, "m.type IN ('ADJUSTMENT', 'ADJUST')")
	require.Equal(t, []any{int64(3), from, "%bolt%", 5, 5}, calls[1].Args)
}

func TestRestoredByDocumentCountsReturns(t *testing.T) {
	rec := &sqlrec.Recorder{}
	_, err := stock.NewMovementStore(rec).RestoredByDocument(context.Background(), stock.DocWarehouse, 4)
	require.ErrorIs(t, err, sqlrec.ErrStopped)
	call := rec.Last()
	require.Contains(t, sqlrec.Normalized(call.SQL), "WHERE doc_type = $1 AND doc_id = $2 AND type = 'IN' GROUP BY product_id")
	require.Equal(t, []any{stock.DocWarehouse, int64(4)}, call.Args)
}
