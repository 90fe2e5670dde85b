package documents_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

type fakeRenderer struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
	once    sync.Once
	lastMu  sync.Mutex
	last    string
}

func (r *fakeRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	r.calls.Add(1)
	r.lastMu.Lock()
	r.last = html
	r.lastMu.Unlock()
	if r.started != nil {
		r.once.Do(func() { close(r.started) })
	}
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-" + html[:10]), nil
}

func (r *fakeRenderer) html() string {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	return r.last
}

type fixture struct {
	store      *memstore.Store
	invoices   *invoicing.Service
	warehouse  *warehouse.Service
	parent     invoicing.Invoice
	correction invoicing.Invoice
	doc        warehouse.Document
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	p := store.SeedProduct(catalog.Product{Code: "A", Name: "Młotek", SellPriceNet: decimal.NewFromInt(30), TaxRate: decimal.NewFromInt(23), StockQuantity: 8, Location: "R1"})
	issued := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	parent := store.SeedInvoice(invoicing.Invoice{
		Number:        7,
		BuyerName:     "Jan Kowalski",
		CreatedAt:     issued,
		TotalNet:      decimal.NewFromInt(120),
		TotalVAT:      decimal.RequireFromString("27.60"),
		TotalGross:    decimal.RequireFromString("147.60"),
		PaymentStatus: invoicing.PaymentPaid,
		Items: []invoicing.Item{{
			ProductID: p.ID, ProductName: "Młotek", Quantity: 4,
			PriceNet: decimal.NewFromInt(30), TaxRate: decimal.NewFromInt(23),
			TotalNet: decimal.NewFromInt(120), TotalGross: decimal.RequireFromString("147.60"),
		}},
	})
	correction := store.SeedInvoice(invoicing.Invoice{
		IsCorrection:     true,
		ParentID:         parent.ID,
		CorrectionSeq:    1,
		CorrectionReason: "Zwrot towaru",
		BuyerName:        "Jan Kowalski-Nowak",
		CreatedAt:        issued.Add(48 * time.Hour),
		TotalNet:         decimal.NewFromInt(90),
		TotalVAT:         decimal.RequireFromString("20.70"),
		TotalGross:       decimal.RequireFromString("110.70"),
		PaymentStatus:    invoicing.PaymentPaid,
		Items: []invoicing.Item{{
			ProductID: p.ID, ProductName: "Młotek", Quantity: 3,
			PriceNet: decimal.NewFromInt(30), TaxRate: decimal.NewFromInt(23),
			TotalNet: decimal.NewFromInt(90), TotalGross: decimal.RequireFromString("110.70"),
		}},
	})
	doc := store.SeedDocument(warehouse.Document{
		InvoiceID:   parent.ID,
		BuyerName:   "Jan Kowalski",
		InvoiceDate: issued,
		CreatedAt:   issued,
		Status:      warehouse.StatusNew,
		Items:       []warehouse.Item{warehouse.ItemFromProduct(p, 4)},
	})
	audit := &shared.MemoryAuditLog{}
	return fixture{
		store:      store,
		invoices:   invoicing.NewService(store.Invoicing(), invoicing.NewBuilder(nil), audit, nil, nil),
		warehouse:  warehouse.NewService(store.Warehouse(), stock.NewLedger(stock.Policy{}, nil), warehouse.Policy{}, audit, nil, nil),
		parent:     parent,
		correction: correction,
		doc:        doc,
	}
}

func (f fixture) service(t *testing.T, renderer documents.Renderer, cache *documents.Cache) *documents.Service {
	t.Helper()
	svc, err := documents.NewService(f.invoices, f.warehouse, renderer, cache, documents.Seller{Name: "Odyssey Sp. z o.o.", NIP: "5260001246"}, nil)
	require.NoError(t, err)
	return svc
}

func newCache(t *testing.T) (*documents.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return documents.NewCache(client, time.Hour), mr
}

func TestCorrectionPrintsPreviousAndCorrectedContent(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()

	inv, err := f.invoices.GetInvoice(ctx, f.correction.ID)
	require.NoError(t, err)
	html, err := svc.InvoiceHTML(ctx, inv)
	require.NoError(t, err)

	require.Contains(t, html, "FAKTURA KORYGUJĄCA: INV-7/FK")
	require.Contains(t, html, "Dotyczy faktury: INV-7 z dnia 07.03.2025")
	require.Contains(t, html, "Przyczyna korekty: Zwrot towaru")
	require.Contains(t, html, "TREŚĆ KORYGOWANA (BYŁO):")
	require.Contains(t, html, "TREŚĆ PO KOREKCIE (JEST):")
	require.Contains(t, html, "NABYWCA (PRZED KOREKTĄ):")
	require.Contains(t, html, "147,60")
	require.Contains(t, html, "110,70")
	require.Less(t, strings.Index(html, "147,60"), strings.Index(html, "110,70"))
}

func TestPlainInvoiceHasSingleBuyerBlock(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)
	ctx := context.Background()

	inv, err := f.invoices.GetInvoice(ctx, f.parent.ID)
	require.NoError(t, err)
	html, err := svc.InvoiceHTML(ctx, inv)
	require.NoError(t, err)
	require.Contains(t, html, "Faktura: INV-7")
	require.Contains(t, html, "NABYWCA:")
	require.NotContains(t, html, "BYŁO")
	require.Contains(t, html, "RAZEM BRUTTO:")
	require.Contains(t, html, "opłacona")
}

func TestWarehouseNoteReferencesInvoice(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, nil)

	html, err := svc.WarehouseHTML(context.Background(), f.doc)
	require.NoError(t, err)
	require.Contains(t, html, "WYDANIE ZEWNĘTRZNE: WZ-")
	require.Contains(t, html, "Do faktury: INV-7 z dnia 07.03.2025")
	require.Contains(t, html, "ODBIORCA:")
	require.Contains(t, html, "R1")
	require.Contains(t, html, "Łącznie sztuk: 4")

	orphan := f.doc
	orphan.InvoiceID = 999
	html, err = svc.WarehouseHTML(context.Background(), orphan)
	require.NoError(t, err)
	require.NotContains(t, html, "Do faktury")
}

func TestPDFIsCachedPerVersion(t *testing.T) {
	f := newFixture(t)
	cache, mr := newCache(t)
	renderer := &fakeRenderer{}
	svc := f.service(t, renderer, cache)
	ctx := context.Background()

	first, err := svc.WarehousePDF(ctx, f.doc.ID)
	require.NoError(t, err)
	second, err := svc.WarehousePDF(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, renderer.calls.Load())
	require.True(t, mr.Exists(documents.Key(documents.KindWarehouse, f.doc.ID, "NEW")))

	_, err = f.warehouse.SetStatus(ctx, f.doc.ID, warehouse.StatusInProgress)
	require.NoError(t, err)
	_, err = svc.WarehousePDF(ctx, f.doc.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, renderer.calls.Load())
	require.Contains(t, renderer.html(), "w realizacji")
}

func TestCacheOutageFallsBackToRendering(t *testing.T) {
	f := newFixture(t)
	cache, mr := newCache(t)
	mr.Close()
	renderer := &fakeRenderer{}
	svc := f.service(t, renderer, cache)

	pdf, err := svc.InvoicePDF(context.Background(), f.parent.ID)
	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	require.EqualValues(t, 1, renderer.calls.Load())
}

func TestConcurrentRequestsShareOneRender(t *testing.T) {
	f := newFixture(t)
	renderer := &fakeRenderer{started: make(chan struct{}), release: make(chan struct{})}
	svc := f.service(t, renderer, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.InvoicePDF(context.Background(), f.parent.ID)
		}(i)
	}
	<-renderer.started
	time.Sleep(50 * time.Millisecond)
	close(renderer.release)
	wg.Wait()

	require.EqualValues(t, 1, renderer.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
}

func TestRenderFailuresSurfaceAsGatewayErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service(t, nil, nil).InvoicePDF(ctx, f.parent.ID)
	require.ErrorIs(t, err, shared.ErrGatewayUnavailable)

	down := fmt.Errorf("gotenberg: %w", shared.ErrGatewayUnavailable)
	_, err = f.service(t, &fakeRenderer{err: down}, nil).WarehousePDF(ctx, f.doc.ID)
	require.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	require.True(t, shared.IsRetryable(err))

	_, err = f.service(t, &fakeRenderer{}, nil).InvoicePDF(ctx, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = f.service(t, &fakeRenderer{}, nil).Prerender(ctx, "receipt", 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.False(t, errors.Is(err, shared.ErrGatewayUnavailable))
}

func TestPrerenderFillsCache(t *testing.T) {
	f := newFixture(t)
	cache, mr := newCache(t)
	renderer := &fakeRenderer{}
	svc := f.service(t, renderer, cache)

	require.NoError(t, svc.Prerender(context.Background(), documents.KindInvoice, f.correction.ID))
	require.True(t, mr.Exists(documents.Key(documents.KindInvoice, f.correction.ID, "PAID")))
	_, err := svc.InvoicePDF(context.Background(), f.correction.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, renderer.calls.Load())
}
