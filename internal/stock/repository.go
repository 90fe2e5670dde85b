package stock

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementStore appends ledger rows.
type MovementStore struct {
	db db.DBTX
}

// NewMovementStore wraps a pool or transaction.
func NewMovementStore(conn db.DBTX) *MovementStore {
	return &MovementStore{db: conn}
}

// InsertMovement appends one movement row. Rows are never updated or deleted.
func (s *MovementStore) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO stock_movements
(product_id, type, qty, balance_after, reason, supplier, doc_type, doc_id, user_id, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, 0), NULLIF($9, 0), $10)
RETURNING id`,
		m.ProductID, string(m.Type), m.Qty, m.BalanceAfter, m.Reason, m.Supplier, m.DocType, m.DocID, m.ActorID, m.CreatedAt).Scan(&id)
	return id, err
}

// RestoredByDocument sums the IN quantities already booked against a document, per product.
func (s *MovementStore) RestoredByDocument(ctx context.Context, docType string, docID int64) (map[int64]int, error) {
	rows, err := s.db.Query(ctx, `SELECT product_id, COALESCE(SUM(qty), 0) FROM stock_movements
WHERE doc_type = $1 AND doc_id = $2 AND type = 'IN' GROUP BY product_id`, docType, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int)
	for rows.Next() {
		var productID int64
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

type pgTx struct {
	*catalog.ProductStore
	*MovementStore
}

// Repository provides ledger persistence backed by PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{MovementStore: NewMovementStore(tx), ProductStore: catalog.NewProductStore(tx)})
	})
}

// ListMovements reads through the pool.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	return NewMovementStore(r.pool).ListMovements(ctx, filter)
}

// ListMovements returns a page of movements ordered by created_at DESC, id DESC.
func (s *MovementStore) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return `$` + strconv.Itoa(len(args))
	}
	if filter.ProductID > 0 {
		where += ` AND m.product_id = ` + next(filter.ProductID)
	}
	if filter.ActorID > 0 {
		where += ` AND m.user_id = ` + next(filter.ActorID)
	}
	if filter.Type == MovementAdjustment {
		where += ` AND m.type IN ('ADJUSTMENT', 'ADJUST')`
	} else if filter.Type != "" {
		where += ` AND m.type = ` + next(string(filter.Type))
	}
	if !filter.From.IsZero() {
		where += ` AND m.created_at >= ` + next(filter.From)
	}
	if !filter.To.IsZero() {
		where += ` AND m.created_at <= ` + next(filter.To)
	}
	if filter.Search != "" {
		p := next("%" + filter.Search + "%")
		where += ` AND (p.name ILIKE ` + p + ` OR p.code ILIKE ` + p + `)`
	}

	from := ` FROM stock_movements m LEFT JOIN products p ON p.id = m.product_id`
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	limit := next(perPage)
	offset := next(shared.Offset(page, perPage))
	query := `SELECT m.id, m.product_id, m.type, m.qty, COALESCE(m.balance_after, 0), COALESCE(m.reason, ''),
COALESCE(m.supplier, ''), COALESCE(m.doc_type, ''), COALESCE(m.doc_id, 0), COALESCE(m.user_id, 0), m.created_at,
COALESCE(p.name, ''), COALESCE(p.code, '')` + from + where +
		` ORDER BY m.created_at DESC, m.id DESC LIMIT ` + limit + ` OFFSET ` + offset

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		var movementType string
		if err := rows.Scan(&m.ID, &m.ProductID, &movementType, &m.Qty, &m.BalanceAfter, &m.Reason,
			&m.Supplier, &m.DocType, &m.DocID, &m.ActorID, &m.CreatedAt, &m.ProductName, &m.ProductCode); err != nil {
			return nil, 0, err
		}
		m.Type = NormalizeType(movementType)
		out = append(out, m)
	}
	return out, total, rows.Err()
}
