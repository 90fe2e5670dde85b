package catalog_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/sqlrec"
)

func TestProductStoreLocking(t *testing.T) {
	rec := &sqlrec.Recorder{RowErr: pgx.ErrNoRows}
	store := catalog.NewProductStore(rec)
	ctx := context.Background()

	_, err := store.GetProductForUpdate(ctx, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
	call := rec.Last()
	require.Contains(t, sqlrec.Normalized(call.SQL), "FROM products WHERE id = $1 FOR UPDATE")
	require.Equal(t, []any{int64(7)}, call.Args)

	_, err = store.GetProduct(ctx, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NotContains(t, rec.Last().SQL, "FOR UPDATE")
}
