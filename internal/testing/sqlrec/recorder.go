// Package sqlrec provides a db.DBTX that records statements instead of running them, so store
// tests can assert on the SQL a method issues.
package sqlrec

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStopped is returned by Query so list methods stop after recording their statement.
var ErrStopped = errors.New("sqlrec: query not executed")

// Call is one recorded statement.
type Call struct {
	SQL  string
	Args []any
}

// Recorder implements db.DBTX.
type Recorder struct {
	// RowErr is returned by every QueryRow scan; nil leaves the destinations untouched.
	RowErr error

	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) record(sql string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{SQL: sql, Args: args})
}

// Exec records the statement and reports one affected row.
func (r *Recorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.record(sql, args)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

// Query records the statement and returns ErrStopped.
func (r *Recorder) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.record(sql, args)
	return nil, ErrStopped
}

// QueryRow records the statement; the returned row scans to RowErr.
func (r *Recorder) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.record(sql, args)
	return row{err: r.RowErr}
}

// Calls returns the recorded statements in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Last returns the most recent statement, or an empty Call.
func (r *Recorder) Last() Call {
	calls := r.Calls()
	if len(calls) == 0 {
		return Call{}
	}
	return calls[len(calls)-1]
}

// Normalized collapses whitespace so multi-line SQL can be matched with Contains.
func Normalized(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

type row struct {
	err error
}

func (r row) Scan(...any) error { return r.err }
