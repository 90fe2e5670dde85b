package reports

import (
	"context"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Store runs the report queries.
type Store struct {
	db db.DBTX
}

// NewStore binds the store to a pool or transaction.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// LowStock returns the match count and one page of products ordered by stock then name. The
// filter must carry a normalised page and page size.
func (s *Store) LowStock(ctx context.Context, filter LowStockFilter) ([]LowStockItem, int, error) {
	args := []any{filter.Threshold}
	next := func(v any) string {
		args = append(args, v)
		return `$` + strconv.Itoa(len(args))
	}
	where := ` WHERE stock_quantity <= $1`
	if filter.Search != "" {
		p := next("%" + filter.Search + "%")
		where += ` AND (name ILIKE ` + p + ` OR code ILIKE ` + p + `)`
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := next(filter.PageSize)
	offset := next((filter.Page - 1) * filter.PageSize)
	rows, err := s.db.Query(ctx, `SELECT id, name, code, stock_quantity FROM products`+where+
		` ORDER BY stock_quantity ASC, name ASC, id ASC LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []LowStockItem
	for rows.Next() {
		var it LowStockItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Code, &it.StockQuantity); err != nil {
			return nil, 0, err
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}

// SalesByDay groups orders by creation date, oldest day first. Zero bounds are open.
func (s *Store) SalesByDay(ctx context.Context, from, to time.Time) ([]SalesDay, error) {
	where := ` WHERE 1=1`
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return `$` + strconv.Itoa(len(args))
	}
	if !from.IsZero() {
		where += ` AND created_at >= ` + next(from)
	}
	if !to.IsZero() {
		where += ` AND created_at <= ` + next(to)
	}
	rows, err := s.db.Query(ctx, `SELECT created_at::date AS day, COUNT(id), COALESCE(SUM(total_amount), 0)
FROM orders`+where+` GROUP BY day ORDER BY day ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SalesDay
	for rows.Next() {
		var day time.Time
		var d SalesDay
		if err := rows.Scan(&day, &d.Orders, &d.TotalAmount); err != nil {
			return nil, err
		}
		d.Date = day.Format(dateLayout)
		out = append(out, d)
	}
	return out, rows.Err()
}
