package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

var fixedNow = time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

func newCatalog(t *testing.T) (*catalog.Service, *memstore.Store, *shared.MemoryAuditLog) {
	t.Helper()
	store := memstore.New()
	audit := &shared.MemoryAuditLog{}
	clock := shared.ClockFunc(func() time.Time { return fixedNow })
	return catalog.NewService(store.Catalog(), audit, clock), store, audit
}

func mugInput() catalog.ProductInput {
	return catalog.ProductInput{
		Code:         " MUG-01 ",
		Name:         "Kubek",
		SellPriceNet: decimal.RequireFromString("40.00"),
		TaxRate:      decimal.NewFromInt(23),
		BuyPrice:     decimal.RequireFromString("12.50"),
		Category:     "kuchnia",
	}
}

func TestCreateProductStartsWithZeroStock(t *testing.T) {
	svc, _, audit := newCatalog(t)

	product, err := svc.Create(context.Background(), mugInput())
	require.NoError(t, err)
	require.NotZero(t, product.ID)
	require.Equal(t, "MUG-01", product.Code)
	require.Equal(t, catalog.DefaultUnit, product.Unit)
	require.Zero(t, product.StockQuantity)
	require.Equal(t, fixedNow, product.CreatedAt)
	require.Len(t, audit.Entries("PRODUCT_CREATE"), 1)

	_, err = svc.Create(context.Background(), mugInput())
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, audit := newCatalog(t)
	cases := map[string]func(*catalog.ProductInput){
		"missing code":  func(in *catalog.ProductInput) { in.Code = "  " },
		"missing name":  func(in *catalog.ProductInput) { in.Name = "" },
		"negative sell": func(in *catalog.ProductInput) { in.SellPriceNet = decimal.NewFromInt(-1) },
		"tax above 100": func(in *catalog.ProductInput) { in.TaxRate = decimal.NewFromInt(120) },
		"negative tax":  func(in *catalog.ProductInput) { in.TaxRate = decimal.NewFromInt(-5) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := mugInput()
			mutate(&in)
			_, err := svc.Create(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, audit.Entries(""))
}

func TestUpdateKeepsStockCounter(t *testing.T) {
	svc, store, _ := newCatalog(t)
	seeded := store.SeedProduct(catalog.Product{Code: "MUG-01", Name: "Kubek", StockQuantity: 9, TaxRate: decimal.NewFromInt(23)})

	in := mugInput()
	in.Name = "Kubek duży"
	updated, err := svc.Update(context.Background(), seeded.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Kubek duży", updated.Name)
	require.Equal(t, 9, store.Product(seeded.ID).StockQuantity)

	_, err = svc.Update(context.Background(), 999, in)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Get(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, store, _ := newCatalog(t)
	store.SeedProduct(catalog.Product{Code: "MUG-01", Name: "Kubek", Category: "kuchnia"})
	store.SeedProduct(catalog.Product{Code: "PLT-01", Name: "Talerz", Category: "kuchnia"})
	store.SeedProduct(catalog.Product{Code: "LMP-01", Name: "Lampa", Category: "salon"})

	items, page, err := svc.List(context.Background(), catalog.ListFilter{Category: "kuchnia"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 2, page.Total)

	items, _, err = svc.List(context.Background(), catalog.ListFilter{Search: "lmp"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Lampa", items[0].Name)

	items, page, err = svc.List(context.Background(), catalog.ListFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2, page.TotalPages)
}

func TestHandlerCreateAndGet(t *testing.T) {
	svc, _, _ := newCatalog(t)
	r := chi.NewRouter()
	r.Route("/products", catalog.NewHandler(nil, svc).MountRoutes)

	body := `{"code":"MUG-01","name":"Kubek","sell_price_net":"40.00","tax_rate":"23","buy_price":"12.50"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"stock_quantity":0`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"MUG-01"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
