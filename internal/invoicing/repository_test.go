package invoicing

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/sqlrec"
)

func TestNextInvoiceNumberTakesAdvisoryLockFirst(t *testing.T) {
	rec := &sqlrec.Recorder{}
	_, err := NewInvoiceStore(rec).NextInvoiceNumber(context.Background())
	require.NoError(t, err)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "SELECT pg_advisory_xact_lock($1)", calls[0].SQL)
	require.Equal(t, []any{numberLockKey}, calls[0].Args)
	require.Contains(t, calls[1].SQL, "MAX(number)")
	require.Contains(t, calls[1].SQL, "is_correction = FALSE")
}

func TestInvoiceStoreLocksForUpdate(t *testing.T) {
	rec := &sqlrec.Recorder{RowErr: pgx.ErrNoRows}
	store := NewInvoiceStore(rec)
	ctx := context.Background()

	_, err := store.GetInvoiceForUpdate(ctx, 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Contains(t, sqlrec.Normalized(rec.Last().SQL), "FROM invoices WHERE id = $1 FOR UPDATE")

	_, err = store.GetInvoiceByOrder(ctx, 9)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Contains(t, sqlrec.Normalized(rec.Last().SQL), "WHERE order_id = $1 AND is_correction = FALSE ORDER BY id LIMIT 1 FOR UPDATE")

	_, err = store.GetInvoice(ctx, 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NotContains(t, rec.Last().SQL, "FOR UPDATE")
}
