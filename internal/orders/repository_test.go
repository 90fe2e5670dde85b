package orders_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/sqlrec"
)

func TestOrderStoreLocksForUpdate(t *testing.T) {
	rec := &sqlrec.Recorder{RowErr: pgx.ErrNoRows}
	_, err := orders.NewOrderStore(rec).GetOrderForUpdate(context.Background(), 12)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Contains(t, sqlrec.Normalized(rec.Last().SQL), "FROM orders WHERE id = $1 FOR UPDATE")
}

func TestListOrdersNewestFirst(t *testing.T) {
	rec := &sqlrec.Recorder{}
	_, _, err := orders.NewOrderStore(rec).ListOrders(context.Background(), orders.ListFilter{UserID: 8, Page: 1, PerPage: 20})
	require.ErrorIs(t, err, sqlrec.ErrStopped)
	list := rec.Last()
	require.Contains(t, sqlrec.Normalized(list.SQL), "WHERE 1=1 AND user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3")
	require.Equal(t, []any{int64(8), 20, 0}, list.Args)
}
