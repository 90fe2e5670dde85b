package audit

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Store reads audit_logs.
type Store struct {
	db db.DBTX
}

// NewStore binds the store to a pool or transaction.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// List returns the total match count and one page of entries, newest first. The filter must
// already carry a normalised page and page size.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return `$` + strconv.Itoa(len(args))
	}
	if filter.Action != "" {
		where += ` AND action ILIKE ` + next("%"+filter.Action+"%")
	}
	if filter.Resource != "" {
		where += ` AND resource ILIKE ` + next("%"+filter.Resource+"%")
	}
	if filter.Status != "" {
		where += ` AND status = ` + next(filter.Status)
	}
	if filter.ActorID > 0 {
		where += ` AND actor_id = ` + next(filter.ActorID)
	}
	if !filter.From.IsZero() {
		where += ` AND occurred_at >= ` + next(filter.From)
	}
	if !filter.To.IsZero() {
		where += ` AND occurred_at <= ` + next(filter.To)
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := next(filter.PageSize)
	offset := next((filter.Page - 1) * filter.PageSize)
	rows, err := s.db.Query(ctx, `SELECT id, actor_id, action, resource, status, ip, occurred_at, meta
FROM audit_logs`+where+` ORDER BY occurred_at DESC, id DESC LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Resource, &e.Status, &e.IP, &e.OccurredAt, &meta); err != nil {
			return nil, 0, err
		}
		if len(meta) > 0 {
			e.Meta = meta
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
