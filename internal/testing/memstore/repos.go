package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/cart"
	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

func page[T any](items []T, pageNo, perPage int) []T {
	pageNo, perPage = shared.NormalizePage(pageNo, perPage)
	start := shared.Offset(pageNo, perPage)
	if start >= len(items) {
		return nil
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// CatalogRepo adapts Store to catalog.RepositoryPort.
type CatalogRepo struct{ *Store }

// Catalog returns the catalog adapter.
func (s *Store) Catalog() CatalogRepo { return CatalogRepo{s} }

// WithTx implements catalog.RepositoryPort.
func (r CatalogRepo) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return r.Do(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// ListProducts implements catalog.RepositoryPort.
func (r CatalogRepo) ListProducts(_ context.Context, filter catalog.ListFilter) ([]catalog.Product, int, error) {
	var out []catalog.Product
	r.read(func(tx *Tx) {
		for _, p := range sortedValues(tx.st.products) {
			if filter.Search != "" && !containsFold(p.Name, filter.Search) && !containsFold(p.Code, filter.Search) {
				continue
			}
			if filter.Category != "" && p.Category != filter.Category {
				continue
			}
			out = append(out, p)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

// StockRepo adapts Store to stock.RepositoryPort.
type StockRepo struct{ *Store }

// Stock returns the stock adapter.
func (s *Store) Stock() StockRepo { return StockRepo{s} }

// WithTx implements stock.RepositoryPort.
func (r StockRepo) WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error {
	return r.Do(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// ListMovements implements stock.RepositoryPort.
func (r StockRepo) ListMovements(_ context.Context, filter stock.MovementFilter) ([]stock.Movement, int, error) {
	var out []stock.Movement
	r.read(func(tx *Tx) {
		for _, m := range tx.st.movements {
			switch {
			case filter.ProductID != 0 && m.ProductID != filter.ProductID,
				filter.ActorID != 0 && m.ActorID != filter.ActorID,
				filter.Type != "" && stock.NormalizeType(string(m.Type)) != filter.Type,
				!filter.From.IsZero() && m.CreatedAt.Before(filter.From),
				!filter.To.IsZero() && m.CreatedAt.After(filter.To),
				filter.Search != "" && !containsFold(m.ProductName, filter.Search) && !containsFold(m.ProductCode, filter.Search):
				continue
			}
			out = append(out, m)
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

// InvoiceRepo adapts Store to invoicing.RepositoryPort.
type InvoiceRepo struct{ *Store }

// Invoicing returns the invoicing adapter.
func (s *Store) Invoicing() InvoiceRepo { return InvoiceRepo{s} }

// WithTx implements invoicing.RepositoryPort.
func (r InvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, invoicing.TxRepository) error) error {
	return r.Do(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// GetInvoice implements invoicing.RepositoryPort.
func (r InvoiceRepo) GetInvoice(ctx context.Context, id int64) (invoicing.Invoice, error) {
	var (
		inv invoicing.Invoice
		err error
	)
	r.read(func(tx *Tx) { inv, err = tx.GetInvoice(ctx, id) })
	return inv, err
}

// ListInvoices implements invoicing.RepositoryPort.
func (r InvoiceRepo) ListInvoices(_ context.Context, filter invoicing.ListFilter) ([]invoicing.Invoice, int, error) {
	var out []invoicing.Invoice
	r.read(func(tx *Tx) {
		for _, inv := range sortedValues(tx.st.invoices) {
			switch {
			case filter.Search != "" && !containsFold(inv.BuyerName, filter.Search) && !containsFold(inv.BuyerNIP, filter.Search),
				filter.UserID != 0 && inv.UserID != filter.UserID,
				!filter.From.IsZero() && inv.CreatedAt.Before(filter.From),
				!filter.To.IsZero() && inv.CreatedAt.After(filter.To):
				continue
			}
			inv = tx.withParentNumber(inv)
			inv.Items = nil
			out = append(out, inv)
		}
	})
	if filter.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

// OrderRepo adapts Store to orders.RepositoryPort.
type OrderRepo struct{ *Store }

// Orders returns the orders adapter.
func (s *Store) Orders() OrderRepo { return OrderRepo{s} }

// WithTx implements orders.RepositoryPort.
func (r OrderRepo) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	return r.Do(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// GetOrder implements orders.RepositoryPort.
func (r OrderRepo) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	var (
		o   orders.Order
		err error
	)
	r.read(func(tx *Tx) { o, err = tx.GetOrder(ctx, id) })
	return o, err
}

// ListOrders implements orders.RepositoryPort.
func (r OrderRepo) ListOrders(_ context.Context, filter orders.ListFilter) ([]orders.Order, int, error) {
	var out []orders.Order
	r.read(func(tx *Tx) {
		all := sortedValues(tx.st.orders)
		for i := len(all) - 1; i >= 0; i-- {
			o := all[i]
			if filter.UserID != 0 && o.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			o.Items = nil
			out = append(out, o)
		}
	})
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

// WarehouseRepo adapts Store to warehouse.RepositoryPort.
type WarehouseRepo struct{ *Store }

// Warehouse returns the warehouse adapter.
func (s *Store) Warehouse() WarehouseRepo { return WarehouseRepo{s} }

// WithTx implements warehouse.RepositoryPort.
func (r WarehouseRepo) WithTx(ctx context.Context, fn func(context.Context, warehouse.TxRepository) error) error {
	return r.Do(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// GetDocument implements warehouse.RepositoryPort.
func (r WarehouseRepo) GetDocument(ctx context.Context, id int64) (warehouse.Document, error) {
	var (
		d   warehouse.Document
		err error
	)
	r.read(func(tx *Tx) { d, err = tx.GetDocument(ctx, id) })
	return d, err
}

// ListDocuments implements warehouse.RepositoryPort.
func (r WarehouseRepo) ListDocuments(_ context.Context, filter warehouse.ListFilter) ([]warehouse.Document, int, error) {
	var out []warehouse.Document
	r.read(func(tx *Tx) {
		for _, d := range sortedValues(tx.st.documents) {
			if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, d.Status) {
				continue
			}
			if filter.Search != "" && !containsFold(d.BuyerName, filter.Search) {
				continue
			}
			out = append(out, tx.withOrderID(d))
		}
	})
	if filter.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

// FulfillmentRepo adapts Store to fulfillment.RepositoryPort.
type FulfillmentRepo struct{ *Store }

// Fulfillment returns the fulfillment adapter.
func (s *Store) Fulfillment() FulfillmentRepo { return FulfillmentRepo{s} }

// WithTx implements fulfillment.RepositoryPort.
func (r FulfillmentRepo) WithTx(ctx context.Context, fn func(context.Context, fulfillment.TxRepository) error) error {
	return r.Do(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// CartRepo adapts Store to cart.RepositoryPort.
type CartRepo struct{ *Store }

// Carts returns the cart adapter.
func (s *Store) Carts() CartRepo { return CartRepo{s} }

// WithTx implements cart.RepositoryPort.
func (r CartRepo) WithTx(ctx context.Context, fn func(context.Context, cart.TxRepository) error) error {
	return r.Do(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func containsStatus(list []warehouse.Status, s warehouse.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
