package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/cart"
	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

var fixedNow = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memstore.Store
	audit   *shared.MemoryAuditLog
	service *cart.Service
	a, b    catalog.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	audit := &shared.MemoryAuditLog{}
	clock := shared.ClockFunc(func() time.Time { return fixedNow })
	f := &fixture{store: store, audit: audit}
	f.a = store.SeedProduct(catalog.Product{Code: "A-1", Name: "Wkrętarka", SellPriceNet: decimal.NewFromInt(30), TaxRate: decimal.NewFromInt(23), StockQuantity: 8})
	f.b = store.SeedProduct(catalog.Product{Code: "B-1", Name: "Poziomica", SellPriceNet: decimal.NewFromInt(60), TaxRate: decimal.NewFromInt(23), StockQuantity: 1})
	placer := fulfillment.NewService(fulfillment.Deps{
		Repo:    store.Fulfillment(),
		Orders:  orders.NewService(store.Orders(), audit, clock, nil),
		Ledger:  stock.NewLedger(stock.Policy{}, clock),
		Builder: invoicing.NewBuilder(clock),
		Audit:   audit,
		Clock:   clock,
	})
	f.service = cart.NewService(store.Carts(), placer, audit, clock, nil)
	return f
}

func asUser(id int64) context.Context {
	return shared.ContextWithRequestInfo(context.Background(), shared.RequestInfo{ActorID: id})
}

func TestCartRequiresActingUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Get(context.Background())
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = f.service.Add(context.Background(), cart.AddInput{ProductID: f.a.ID, Qty: 1})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestGetCreatesOneOpenCartPerUser(t *testing.T) {
	f := newFixture(t)
	first, err := f.service.Get(asUser(7))
	require.NoError(t, err)
	require.Equal(t, cart.StatusOpen, first.Status)
	require.Empty(t, first.Items)
	require.Equal(t, "0", first.Total.String())

	again, err := f.service.Get(asUser(7))
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	other, err := f.service.Get(asUser(8))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
	require.Len(t, f.audit.Entries("CART_VIEW"), 3)
}

func TestAddMergesLinesAndShowsGross(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(7)

	_, err := f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID, Qty: 2})
	require.NoError(t, err)
	c, err := f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID, Qty: 1})
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	line := c.Items[0]
	require.Equal(t, 3, line.Qty)
	require.Equal(t, "Wkrętarka", line.Name)
	require.Equal(t, "30", line.PriceNet.String())
	require.Equal(t, "36.9", line.UnitPrice.String())
	require.Equal(t, "110.7", line.LineTotal.String())
	require.Equal(t, "110.70", c.Total.StringFixed(2))
	require.Len(t, f.audit.Entries("CART_ADD"), 2)
}

func TestAddChecksMergedQuantityAgainstStock(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(7)

	_, err := f.service.Add(ctx, cart.AddInput{ProductID: f.b.ID, Qty: 1})
	require.NoError(t, err)
	_, err = f.service.Add(ctx, cart.AddInput{ProductID: f.b.ID, Qty: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = f.service.Add(ctx, cart.AddInput{ProductID: 404, Qty: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	c, err := f.service.Get(ctx)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	require.Equal(t, 1, c.Items[0].Qty)
}

func TestLineKeepsFirstNetPrice(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(7)
	_, err := f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID, Qty: 1})
	require.NoError(t, err)

	repriced := f.store.Product(f.a.ID)
	repriced.SellPriceNet = decimal.NewFromInt(35)
	f.store.SetProduct(repriced)

	c, err := f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID, Qty: 1})
	require.NoError(t, err)
	require.Equal(t, "30", c.Items[0].PriceNet.String())
	require.Equal(t, "73.80", c.Total.StringFixed(2))
}

func TestUpdateAndRemoveLines(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(7)
	c, err := f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID, Qty: 1})
	require.NoError(t, err)
	itemID := c.Items[0].ID

	_, err = f.service.Update(ctx, itemID, cart.UpdateInput{Qty: 9})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	c, err = f.service.Update(ctx, itemID, cart.UpdateInput{Qty: 4})
	require.NoError(t, err)
	require.Equal(t, 4, c.Items[0].Qty)

	_, err = f.service.Update(asUser(8), itemID, cart.UpdateInput{Qty: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.service.Remove(asUser(8), itemID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	c, err = f.service.Remove(ctx, itemID)
	require.NoError(t, err)
	require.Empty(t, c.Items)
	require.Len(t, f.audit.Entries("CART_UPDATE"), 1)
	require.Len(t, f.audit.Entries("CART_DELETE"), 1)
}

func TestCheckoutPlacesOrderAndClosesCart(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(7)
	_, err := f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID, Qty: 2})
	require.NoError(t, err)
	c, err := f.service.Add(ctx, cart.AddInput{ProductID: f.b.ID, Qty: 1})
	require.NoError(t, err)

	placement, err := f.service.Checkout(ctx, cart.CheckoutInput{
		BuyerName:       "Anna Nowak",
		ShippingAddress: "ul. Długa 1, Gdańsk",
		PaymentMethod:   orders.PaymentCOD,
	})
	require.NoError(t, err)
	require.NotZero(t, placement.Order.ID)
	require.Equal(t, int64(7), placement.Order.UserID)
	require.Len(t, placement.Order.Items, 2)
	require.Equal(t, "120.00", placement.Order.TotalAmount.StringFixed(2))
	require.NotNil(t, placement.Invoice)
	require.Equal(t, "147.60", placement.Invoice.TotalGross.StringFixed(2))
	require.Equal(t, 6, f.store.Product(f.a.ID).StockQuantity)

	require.Equal(t, cart.StatusOrdered, f.store.CartByID(c.ID).Status)
	next, err := f.service.Get(ctx)
	require.NoError(t, err)
	require.NotEqual(t, c.ID, next.ID)
	require.Empty(t, next.Items)

	entries := f.audit.Entries("CART_CHECKOUT")
	require.Len(t, entries, 1)
	require.Equal(t, placement.Order.ID, entries[0].Meta["order_id"])
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Checkout(asUser(7), cart.CheckoutInput{BuyerName: "Anna", PaymentMethod: orders.PaymentCOD})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCheckoutShortageLeavesCartOpen(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(7)
	c, err := f.service.Add(ctx, cart.AddInput{ProductID: f.a.ID, Qty: 5})
	require.NoError(t, err)

	sold := f.store.Product(f.a.ID)
	sold.StockQuantity = 3
	f.store.SetProduct(sold)

	_, err = f.service.Checkout(ctx, cart.CheckoutInput{BuyerName: "Anna", PaymentMethod: orders.PaymentCOD})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, cart.StatusOpen, f.store.CartByID(c.ID).Status)
	require.Len(t, f.store.CartByID(c.ID).Items, 1)
	require.Empty(t, f.audit.Entries("CART_CHECKOUT"))
}
