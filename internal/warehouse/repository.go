package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
)

const documentColumns = `w.id, w.invoice_id, COALESCE(i.order_id, 0), w.buyer_name, COALESCE(w.shipping_address, ''),
w.invoice_date, COALESCE(w.items_json, ''), w.status, w.created_at`

const documentFrom = ` FROM warehouse_documents w LEFT JOIN invoices i ON i.id = w.invoice_id`

// DocumentStore performs goods-issue note row access on a pool or inside a transaction.
type DocumentStore struct {
	db db.DBTX
}

// NewDocumentStore wraps a pool or transaction.
func NewDocumentStore(conn db.DBTX) *DocumentStore {
	return &DocumentStore{db: conn}
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var status, items string
	err := row.Scan(&d.ID, &d.InvoiceID, &d.OrderID, &d.BuyerName, &d.ShippingAddress,
		&d.InvoiceDate, &items, &status, &d.CreatedAt)
	d.Status = Status(status)
	d.Items = DecodeItems(items)
	return d, err
}

func documentNotFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("warehouse: document %s: %w", what, shared.ErrNotFound)
	}
	return err
}

// GetDocument loads one document.
func (s *DocumentStore) GetDocument(ctx context.Context, id int64) (Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx, `SELECT `+documentColumns+documentFrom+` WHERE w.id = $1`, id))
	return d, documentNotFound(err, strconv.FormatInt(id, 10))
}

// GetDocumentForUpdate loads one document, locking its row.
func (s *DocumentStore) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx, `SELECT `+documentColumns+documentFrom+` WHERE w.id = $1 FOR UPDATE OF w`, id))
	return d, documentNotFound(err, strconv.FormatInt(id, 10))
}

// GetDocumentByInvoice loads the document issued for an invoice, locking its row.
func (s *DocumentStore) GetDocumentByInvoice(ctx context.Context, invoiceID int64) (Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx, `SELECT `+documentColumns+documentFrom+` WHERE w.invoice_id = $1 FOR UPDATE OF w`, invoiceID))
	return d, documentNotFound(err, "for invoice "+strconv.FormatInt(invoiceID, 10))
}

// InsertDocument stores a new document and sets its id.
func (s *DocumentStore) InsertDocument(ctx context.Context, d *Document) error {
	items, err := EncodeItems(d.Items)
	if err != nil {
		return err
	}
	return s.db.QueryRow(ctx, `INSERT INTO warehouse_documents
(invoice_id, buyer_name, shipping_address, invoice_date, items_json, status, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7) RETURNING id`,
		d.InvoiceID, d.BuyerName, d.ShippingAddress, d.InvoiceDate, items, string(d.Status), d.CreatedAt).Scan(&d.ID)
}

// UpdateDocumentStatus writes a new status.
func (s *DocumentStore) UpdateDocumentStatus(ctx context.Context, id int64, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE warehouse_documents SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("warehouse: document %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

type pgTx struct {
	*catalog.ProductStore
	*stock.MovementStore
	*orders.OrderStore
	*DocumentStore
}

// Repository provides document persistence backed by PostgreSQL.
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
		return fn(ctx, pgTx{
			ProductStore:  catalog.NewProductStore(tx),
			MovementStore: stock.NewMovementStore(tx),
			OrderStore:    orders.NewOrderStore(tx),
			DocumentStore: NewDocumentStore(tx),
		})
	})
}

// GetDocument reads a document outside a transaction.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	return NewDocumentStore(r.pool).GetDocument(ctx, id)
}

// ListDocuments returns documents matching filter and the total count.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		where += ` AND w.status = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND w.buyer_name ILIKE $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND w.created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += ` AND w.created_at <= $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+documentFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	dir := " ASC"
	if filter.Desc {
		dir = " DESC"
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+documentFrom+where+
		` ORDER BY `+SortColumn(filter.SortBy)+dir+`, w.id`+dir+
		` LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}
