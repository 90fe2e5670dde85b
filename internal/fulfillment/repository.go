package fulfillment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

type pgTx struct {
	*catalog.ProductStore
	*stock.MovementStore
	*invoicing.InvoiceStore
	*orders.OrderStore
	*warehouse.DocumentStore
}

// Repository runs fulfillment units of work on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction spanning products, movements, invoices, orders and documents.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{
			ProductStore:  catalog.NewProductStore(tx),
			MovementStore: stock.NewMovementStore(tx),
			InvoiceStore:  invoicing.NewInvoiceStore(tx),
			OrderStore:    orders.NewOrderStore(tx),
			DocumentStore: warehouse.NewDocumentStore(tx),
		})
	})
}
