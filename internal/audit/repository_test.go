package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/testing/sqlrec"
)

func TestStoreListNewestFirst(t *testing.T) {
	rec := &sqlrec.Recorder{}
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := NewStore(rec).List(context.Background(), Filter{
		Action:   "invoice",
		Status:   "FAILURE",
		ActorID:  4,
		From:     from,
		Page:     3,
		PageSize: 20,
	})
	require.ErrorIs(t, err, sqlrec.ErrStopped)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "SELECT COUNT(*) FROM audit_logs WHERE 1=1 AND action ILIKE $1 AND status = $2 AND actor_id = $3 AND occurred_at >= $4",
		sqlrec.Normalized(calls[0].SQL))
	require.Contains(t, sqlrec.Normalized(calls[1].SQL), "ORDER BY occurred_at DESC, id DESC LIMIT $5 OFFSET $6")
	require.Equal(t, []any{"%invoice%", "FAILURE", int64(4), from, 20, 40}, calls[1].Args)
}
