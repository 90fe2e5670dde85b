package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// numberLockKey serialises invoice numbering across transactions.
const numberLockKey int64 = 0x1a7d_0001

const invoiceColumns = `id, COALESCE(number, 0), COALESCE(user_id, 0), COALESCE(order_id, 0), COALESCE(created_by, 0),
buyer_name, COALESCE(buyer_nip, ''), COALESCE(buyer_address, ''), COALESCE(shipping_address, ''), created_at,
total_net, total_vat, total_gross, payment_status, is_correction, COALESCE(parent_id, 0),
COALESCE(correction_reason, ''), COALESCE(correction_seq, 0),
COALESCE((SELECT p.number FROM invoices p WHERE p.id = invoices.parent_id), 0)`

// InvoiceStore performs invoice row access on a pool or inside a transaction.
type InvoiceStore struct {
	db db.DBTX
}

// NewInvoiceStore wraps a pool or transaction.
func NewInvoiceStore(conn db.DBTX) *InvoiceStore {
	return &InvoiceStore{db: conn}
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Number, &inv.UserID, &inv.OrderID, &inv.CreatedBy,
		&inv.BuyerName, &inv.BuyerNIP, &inv.BuyerAddress, &inv.ShippingAddress, &inv.CreatedAt,
		&inv.TotalNet, &inv.TotalVAT, &inv.TotalGross, &status, &inv.IsCorrection, &inv.ParentID,
		&inv.CorrectionReason, &inv.CorrectionSeq, &inv.ParentNumber)
	inv.PaymentStatus = PaymentStatus(status)
	return inv, err
}

func invoiceNotFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("invoicing: invoice %s: %w", what, shared.ErrNotFound)
	}
	return err
}

// NextInvoiceNumber takes a transaction-scoped advisory lock and returns max(number)+1 over
// regular invoices. The lock is held until commit so concurrent issuers observe each other's rows.
func (s *InvoiceStore) NextInvoiceNumber(ctx context.Context) (int64, error) {
	if _, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, numberLockKey); err != nil {
		return 0, err
	}
	var next int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM invoices WHERE is_correction = FALSE`).Scan(&next)
	return next, err
}

// GetInvoice loads an invoice with its items.
func (s *InvoiceStore) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.getInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// GetInvoiceForUpdate loads an invoice with its items and locks the header row.
func (s *InvoiceStore) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return s.getInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

// GetInvoiceByOrder loads the invoice issued for an order, locking it.
func (s *InvoiceStore) GetInvoiceByOrder(ctx context.Context, orderID int64) (Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM invoices WHERE order_id = $1 AND is_correction = FALSE ORDER BY id LIMIT 1 FOR UPDATE`, orderID))
	if err != nil {
		return Invoice{}, invoiceNotFound(err, "for order "+strconv.FormatInt(orderID, 10))
	}
	inv.Items, err = s.listItems(ctx, inv.ID)
	return inv, err
}

func (s *InvoiceStore) getInvoice(ctx context.Context, query string, id int64) (Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return Invoice{}, invoiceNotFound(err, strconv.FormatInt(id, 10))
	}
	inv.Items, err = s.listItems(ctx, inv.ID)
	return inv, err
}

func (s *InvoiceStore) listItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := s.db.Query(ctx, `SELECT id, invoice_id, COALESCE(product_id, 0), COALESCE(product_name, ''),
quantity, price_net, tax_rate, total_net, total_gross FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.PriceNet, &it.TaxRate, &it.TotalNet, &it.TotalGross); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountCorrections counts existing corrections of a parent.
func (s *InvoiceStore) CountCorrections(ctx context.Context, parentID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE parent_id = $1 AND is_correction = TRUE`, parentID).Scan(&n)
	return n, err
}

// InsertInvoice writes the header and every item, setting the generated ids on inv.
func (s *InvoiceStore) InsertInvoice(ctx context.Context, inv *Invoice) error {
	err := s.db.QueryRow(ctx, `INSERT INTO invoices
(number, user_id, order_id, created_by, buyer_name, buyer_nip, buyer_address, shipping_address, created_at,
 total_net, total_vat, total_gross, payment_status, is_correction, parent_id, correction_reason, correction_seq)
VALUES (NULLIF($1, 0), NULLIF($2, 0), NULLIF($3, 0), NULLIF($4, 0), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9,
 $10, $11, $12, $13, $14, NULLIF($15, 0), NULLIF($16, ''), NULLIF($17, 0))
RETURNING id`,
		inv.Number, inv.UserID, inv.OrderID, inv.CreatedBy, inv.BuyerName, inv.BuyerNIP, inv.BuyerAddress, inv.ShippingAddress, inv.CreatedAt,
		inv.TotalNet, inv.TotalVAT, inv.TotalGross, string(inv.PaymentStatus), inv.IsCorrection, inv.ParentID, inv.CorrectionReason, inv.CorrectionSeq,
	).Scan(&inv.ID)
	if err != nil {
		return err
	}
	for i := range inv.Items {
		item := &inv.Items[i]
		item.InvoiceID = inv.ID
		err := s.db.QueryRow(ctx, `INSERT INTO invoice_items
(invoice_id, product_id, product_name, quantity, price_net, tax_rate, total_net, total_gross)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			item.InvoiceID, item.ProductID, item.ProductName, item.Quantity, item.PriceNet, item.TaxRate, item.TotalNet, item.TotalGross,
		).Scan(&item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateInvoicePaymentStatus sets the payment status of one invoice.
func (s *InvoiceStore) UpdateInvoicePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET payment_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoicing: invoice %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

type pgTx struct {
	*catalog.ProductStore
	*InvoiceStore
}

// Repository provides invoice persistence backed by PostgreSQL.
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
		return fn(ctx, pgTx{ProductStore: catalog.NewProductStore(tx), InvoiceStore: NewInvoiceStore(tx)})
	})
}

// GetInvoice reads an invoice outside a transaction.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return NewInvoiceStore(r.pool).GetInvoice(ctx, id)
}

// ListInvoices returns invoice headers matching filter and the total count.
func (r *Repository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (buyer_name ILIKE $` + n + ` OR buyer_nip ILIKE $` + n + `)`
	}
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		where += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dir := " ASC"
	if filter.Desc {
		dir = " DESC"
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where +
		` ORDER BY ` + SortColumn(filter.SortBy) + dir + `, id` + dir +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

// InvoiceNumbers returns the numbers of all regular invoices in ascending order.
func (r *Repository) InvoiceNumbers(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT number FROM invoices WHERE is_correction = FALSE AND number IS NOT NULL ORDER BY number`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
