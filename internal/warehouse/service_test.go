package warehouse_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

type fixture struct {
	store *memstore.Store
	audit *shared.MemoryAuditLog
	a, b  catalog.Product
	order orders.Order
	doc   warehouse.Document
}

func newFixture(t *testing.T, orderStatus orders.Status) fixture {
	t.Helper()
	store := memstore.New()
	a := store.SeedProduct(catalog.Product{Code: "A", Name: "Młotek", SellPriceNet: decimal.NewFromInt(30), TaxRate: decimal.NewFromInt(23), StockQuantity: 8})
	b := store.SeedProduct(catalog.Product{Code: "B", Name: "Piła", SellPriceNet: decimal.NewFromInt(50), TaxRate: decimal.NewFromInt(23), StockQuantity: 1})
	order := store.SeedOrder(orders.Order{Status: orderStatus, PaymentMethod: orders.PaymentCOD, BuyerName: "Jan"})
	inv := store.SeedInvoice(invoicing.Invoice{Number: 1, OrderID: order.ID, BuyerName: "Jan", PaymentStatus: invoicing.PaymentPaid})
	doc := store.SeedDocument(warehouse.Document{
		InvoiceID: inv.ID,
		BuyerName: "Jan",
		Status:    warehouse.StatusNew,
		Items: []warehouse.Item{
			warehouse.ItemFromProduct(a, 2),
			warehouse.ItemFromProduct(b, 1),
			{ProductName: "Usługa montażu", Quantity: 1},
		},
	})
	return fixture{store: store, audit: &shared.MemoryAuditLog{}, a: a, b: b, order: order, doc: doc}
}

func (f fixture) service(policy warehouse.Policy) *warehouse.Service {
	return warehouse.NewService(f.store.Warehouse(), stock.NewLedger(stock.Policy{}, nil), policy, f.audit, nil, nil)
}

func TestReleaseShipsOrder(t *testing.T) {
	for _, from := range []orders.Status{orders.StatusPendingPayment, orders.StatusProcessing} {
		t.Run(string(from), func(t *testing.T) {
			f := newFixture(t, from)
			svc := f.service(warehouse.Policy{})

			change, err := svc.SetStatus(context.Background(), f.doc.ID, "released")
			require.NoError(t, err)
			require.Equal(t, warehouse.StatusNew, change.From)
			require.Equal(t, warehouse.StatusReleased, change.Document.Status)
			require.True(t, change.OrderShipped)
			require.Equal(t, from, change.OrderPrevious)
			require.Equal(t, orders.StatusShipped, f.store.Order(f.order.ID).Status)
			require.Len(t, f.audit.Entries("ORDER_STATUS_FROM_WZ"), 1)
			require.Len(t, f.audit.Entries("WAREHOUSE_STATUS_UPDATE"), 1)
		})
	}
}

func TestReleaseLeavesShippedAndCancelledOrders(t *testing.T) {
	for _, status := range []orders.Status{orders.StatusShipped, orders.StatusCancelled} {
		f := newFixture(t, status)
		change, err := f.service(warehouse.Policy{}).SetStatus(context.Background(), f.doc.ID, warehouse.StatusReleased)
		require.NoError(t, err)
		require.False(t, change.OrderShipped)
		require.Equal(t, status, f.store.Order(f.order.ID).Status)
		require.Empty(t, f.audit.Entries("ORDER_STATUS_FROM_WZ"))
	}
}

func TestTerminalDocumentsRejectTransitions(t *testing.T) {
	f := newFixture(t, orders.StatusProcessing)
	svc := f.service(warehouse.Policy{})
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, f.doc.ID, warehouse.StatusInProgress)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, f.doc.ID, warehouse.StatusNew)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.SetStatus(ctx, f.doc.ID, warehouse.StatusReleased)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, f.doc.ID, warehouse.StatusCancelled)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.SetStatus(ctx, f.doc.ID, "LOST")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.SetStatus(ctx, 404, warehouse.StatusCancelled)
	require.ErrorIs(t, err, shared.ErrNotFound)

	doc, err := svc.Get(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Equal(t, warehouse.StatusReleased, doc.Status)
	require.Equal(t, f.order.ID, doc.OrderID)
}

func TestCancelKeepsStockByDefault(t *testing.T) {
	f := newFixture(t, orders.StatusProcessing)
	change, err := f.service(warehouse.Policy{}).SetStatus(context.Background(), f.doc.ID, warehouse.StatusCancelled)
	require.NoError(t, err)
	require.Zero(t, change.Restored)
	require.Equal(t, 8, f.store.Product(f.a.ID).StockQuantity)
	require.Equal(t, 1, f.store.Product(f.b.ID).StockQuantity)
	require.Empty(t, f.store.Movements(0))
	require.Equal(t, orders.StatusProcessing, f.store.Order(f.order.ID).Status)
}

func TestCancelRestoresStockWhenEnabled(t *testing.T) {
	f := newFixture(t, orders.StatusProcessing)
	change, err := f.service(warehouse.Policy{RestoreStockOnCancel: true}).SetStatus(context.Background(), f.doc.ID, warehouse.StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, 2, change.Restored)
	require.Equal(t, 10, f.store.Product(f.a.ID).StockQuantity)
	require.Equal(t, 2, f.store.Product(f.b.ID).StockQuantity)

	moves := f.store.Movements(0)
	require.Len(t, moves, 2)
	for _, m := range moves {
		require.Equal(t, stock.MovementIn, m.Type)
		require.Equal(t, warehouse.CancelRestoreReason, m.Reason)
		require.Equal(t, stock.DocWarehouse, m.DocType)
		require.Equal(t, f.doc.ID, m.DocID)
	}
}

func TestCancelRestoresInProductOrder(t *testing.T) {
	f := newFixture(t, orders.StatusProcessing)
	inv := f.store.SeedInvoice(invoicing.Invoice{Number: 2, OrderID: f.order.ID, BuyerName: "Jan"})
	doc := f.store.SeedDocument(warehouse.Document{
		InvoiceID: inv.ID,
		BuyerName: "Jan",
		Status:    warehouse.StatusNew,
		Items:     []warehouse.Item{warehouse.ItemFromProduct(f.b, 1), warehouse.ItemFromProduct(f.a, 3)},
	})

	change, err := f.service(warehouse.Policy{RestoreStockOnCancel: true}).SetStatus(context.Background(), doc.ID, warehouse.StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, 2, change.Restored)
	moves := f.store.Movements(0)
	require.Len(t, moves, 2)
	require.Equal(t, f.a.ID, moves[0].ProductID)
	require.Equal(t, 11, f.store.Product(f.a.ID).StockQuantity)
	require.Equal(t, 2, f.store.Product(f.b.ID).StockQuantity)
}

func TestCancelRollsBackOnRestoreFailure(t *testing.T) {
	f := newFixture(t, orders.StatusProcessing)
	f.store.FailOn("InsertMovement", shared.ErrConcurrencyConflict)
	_, err := f.service(warehouse.Policy{RestoreStockOnCancel: true}).SetStatus(context.Background(), f.doc.ID, warehouse.StatusCancelled)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.Equal(t, warehouse.StatusNew, f.store.Documents()[0].Status)
	require.Equal(t, 8, f.store.Product(f.a.ID).StockQuantity)
	require.Empty(t, f.audit.Entries(""))
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t, orders.StatusProcessing)
	svc := f.service(warehouse.Policy{})
	items, page, err := svc.List(context.Background(), warehouse.ListFilter{Statuses: []warehouse.Status{warehouse.StatusNew}})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Len(t, items[0].Items, 3)

	items, _, err = svc.List(context.Background(), warehouse.ListFilter{Statuses: []warehouse.Status{warehouse.StatusReleased}})
	require.NoError(t, err)
	require.Empty(t, items)
}
