package orders

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

const orderColumns = `id, COALESCE(user_id, 0), status, payment_method, total_amount, COALESCE(total_gross, total_amount), COALESCE(buyer_name, ''), COALESCE(buyer_nip, ''),
COALESCE(billing_address, ''), COALESCE(shipping_address, ''), COALESCE(payu_order_id, ''), COALESCE(payment_url, ''),
created_at, updated_at`

// OrderStore performs order row access on a pool or inside a transaction.
type OrderStore struct {
	db db.DBTX
}

// NewOrderStore wraps a pool or transaction.
func NewOrderStore(conn db.DBTX) *OrderStore {
	return &OrderStore{db: conn}
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status, method string
	err := row.Scan(&o.ID, &o.UserID, &status, &method, &o.TotalAmount, &o.TotalGross, &o.BuyerName, &o.BuyerNIP,
		&o.BillingAddress, &o.ShippingAddress, &o.PayUOrderID, &o.PaymentURL, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)
	return o, err
}

// GetOrder loads an order with its items.
func (s *OrderStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetOrderForUpdate loads an order with its items, locking the order row.
func (s *OrderStore) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (s *OrderStore) getOrder(ctx context.Context, query string, id int64) (Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("orders: order %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Order{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, order_id, product_id, qty, unit_price, tax_rate FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.UnitPrice, &it.TaxRate); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// InsertOrder writes the order and its items, setting generated ids.
func (s *OrderStore) InsertOrder(ctx context.Context, o *Order) error {
	err := s.db.QueryRow(ctx, `INSERT INTO orders
(user_id, status, payment_method, total_amount, total_gross, buyer_name, buyer_nip, billing_address, shipping_address, created_at, updated_at)
VALUES (NULLIF($1, 0), $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $10)
RETURNING id`,
		o.UserID, string(o.Status), string(o.PaymentMethod), o.TotalAmount, o.TotalGross, o.BuyerName, o.BuyerNIP,
		o.BillingAddress, o.ShippingAddress, o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return err
	}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := s.db.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, qty, unit_price, tax_rate)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, it.OrderID, it.ProductID, it.Qty, it.UnitPrice, it.TaxRate).Scan(&it.ID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrderStatus writes a new status.
func (s *OrderStore) UpdateOrderStatus(ctx context.Context, id int64, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: order %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// CloseCart marks an open cart as ordered.
func (s *OrderStore) CloseCart(ctx context.Context, cartID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE carts SET status = 'ordered', updated_at = NOW() WHERE id = $1 AND status = 'open'`, cartID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: cart %d is not open: %w", cartID, shared.ErrInvalidTransition)
	}
	return nil
}

// UpdateOrderPayment stores the gateway reference and redirect URL.
func (s *OrderStore) UpdateOrderPayment(ctx context.Context, id int64, payuOrderID, paymentURL string) error {
	tag, err := s.db.Exec(ctx, `UPDATE orders SET payu_order_id = NULLIF($2, ''), payment_url = NULLIF($3, ''), updated_at = NOW()
WHERE id = $1`, id, payuOrderID, paymentURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: order %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

type pgTx struct {
	*catalog.ProductStore
	*OrderStore
}

// Repository provides order persistence backed by PostgreSQL.
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
		return fn(ctx, pgTx{ProductStore: catalog.NewProductStore(tx), OrderStore: NewOrderStore(tx)})
	})
}

// GetOrder reads an order outside a transaction.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return NewOrderStore(r.pool).GetOrder(ctx, id)
}

// ListOrders reads through the pool.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	return NewOrderStore(r.pool).ListOrders(ctx, filter)
}

// ListOrders returns order headers newest first and the total count.
func (s *OrderStore) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		where += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}
