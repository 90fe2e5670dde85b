package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// CartStore performs cart row access on a pool or inside a transaction.
type CartStore struct {
	db db.DBTX
}

// NewCartStore wraps a pool or transaction.
func NewCartStore(conn db.DBTX) *CartStore {
	return &CartStore{db: conn}
}

// OpenCart returns the user's open cart, creating it when missing. The row stays locked until the
// transaction ends.
func (s *CartStore) OpenCart(ctx context.Context, userID int64, now time.Time) (Cart, error) {
	var c Cart
	var status string
	err := s.db.QueryRow(ctx, `INSERT INTO carts (user_id, status, created_at, updated_at) VALUES ($1, 'open', $2, $2)
ON CONFLICT (user_id) WHERE status = 'open' DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING id, user_id, status, created_at, updated_at`, userID, now).Scan(&c.ID, &c.UserID, &status, &c.CreatedAt, &c.UpdatedAt)
	c.Status = Status(status)
	return c, err
}

// ListItems returns the lines of a cart with their product names and current tax rates.
func (s *CartStore) ListItems(ctx context.Context, cartID int64) ([]Item, error) {
	rows, err := s.db.Query(ctx, `SELECT ci.id, ci.cart_id, ci.product_id, COALESCE(p.name, ''), COALESCE(p.code, ''),
ci.quantity, ci.unit_price, COALESCE(p.tax_rate, 23)
FROM cart_items ci LEFT JOIN products p ON p.id = ci.product_id WHERE ci.cart_id = $1 ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Name, &it.Code, &it.Qty, &it.PriceNet, &it.TaxRate); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SetItem stores the quantity of a product in the cart. A new line snapshots priceNet; an existing
// line keeps its original price.
func (s *CartStore) SetItem(ctx context.Context, cartID, productID int64, qty int, priceNet decimal.Decimal) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)
ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
RETURNING id`, cartID, productID, qty, priceNet).Scan(&id)
	return id, err
}

// UpdateItemQuantity changes one line of a cart.
func (s *CartStore) UpdateItemQuantity(ctx context.Context, cartID, itemID int64, qty int) error {
	tag, err := s.db.Exec(ctx, `UPDATE cart_items SET quantity = $3 WHERE id = $2 AND cart_id = $1`, cartID, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cart: item %d: %w", itemID, shared.ErrNotFound)
	}
	return nil
}

// DeleteItem removes one line of a cart.
func (s *CartStore) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $2 AND cart_id = $1`, cartID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cart: item %d: %w", itemID, shared.ErrNotFound)
	}
	return nil
}

type pgTx struct {
	*catalog.ProductStore
	*CartStore
}

// Repository provides cart persistence backed by PostgreSQL.
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
		return fn(ctx, pgTx{ProductStore: catalog.NewProductStore(tx), CartStore: NewCartStore(tx)})
	})
}
