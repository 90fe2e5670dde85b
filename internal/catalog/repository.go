package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const productColumns = `id, code, name, sell_price_net, tax_rate, stock_quantity,
COALESCE(buy_price, 0), COALESCE(location, ''), COALESCE(category, ''), COALESCE(supplier, ''),
COALESCE(image_url, ''), COALESCE(unit, ''), created_at, updated_at`

// ProductStore performs product row access on a pool or inside a transaction.
type ProductStore struct {
	db db.DBTX
}

// NewProductStore wraps a pool or transaction.
func NewProductStore(conn db.DBTX) *ProductStore {
	return &ProductStore{db: conn}
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.SellPriceNet, &p.TaxRate, &p.StockQuantity,
		&p.BuyPrice, &p.Location, &p.Category, &p.Supplier, &p.ImageURL, &p.Unit, &p.CreatedAt, &p.UpdatedAt)
	if p.Unit == "" {
		p.Unit = DefaultUnit
	}
	return p, err
}

func notFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
	}
	return err
}

// GetProduct reads a product without locking.
func (s *ProductStore) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	return p, notFound(err, id)
}

// GetProductForUpdate reads a product holding a row lock until the transaction ends.
func (s *ProductStore) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	return p, notFound(err, id)
}

// UpdateProductStock writes the denormalised stock counter.
func (s *ProductStore) UpdateProductStock(ctx context.Context, id int64, qty int) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET stock_quantity = $2, updated_at = NOW() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// InsertProduct creates a product with zero stock.
func (s *ProductStore) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO products
(code, name, sell_price_net, tax_rate, stock_quantity, buy_price, location, category, supplier, image_url, unit, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $11, $11)
RETURNING id`,
		p.Code, p.Name, p.SellPriceNet, p.TaxRate, p.BuyPrice, p.Location, p.Category, p.Supplier, p.ImageURL, p.Unit, p.CreatedAt).Scan(&id)
	return id, err
}

// UpdateProductDetails rewrites catalog fields, leaving stock_quantity untouched.
func (s *ProductStore) UpdateProductDetails(ctx context.Context, p Product) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET code = $2, name = $3, sell_price_net = $4, tax_rate = $5,
buy_price = $6, location = NULLIF($7, ''), category = NULLIF($8, ''), supplier = NULLIF($9, ''),
image_url = NULLIF($10, ''), unit = $11, updated_at = $12 WHERE id = $1`,
		p.ID, p.Code, p.Name, p.SellPriceNet, p.TaxRate, p.BuyPrice, p.Location, p.Category, p.Supplier, p.ImageURL, p.Unit, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: product %d: %w", p.ID, shared.ErrNotFound)
	}
	return nil
}

// Repository provides catalog persistence backed by PostgreSQL.
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
		return fn(ctx, NewProductStore(tx))
	})
}

// ListProducts returns a page of products and the total count.
func (r *Repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += ` AND category = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY name ASC, id ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}
