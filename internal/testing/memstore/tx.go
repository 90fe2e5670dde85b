package memstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

// ErrUnlocked reports a row write that the PostgreSQL store would perform without holding the
// row lock the calling service is expected to take first.
var ErrUnlocked = errors.New("memstore: row written without lock")

// Tx implements the transactional method set of every domain store. It records the row locks a
// PostgreSQL transaction would hold so writes made without them fail, and it rejects product locks
// taken out of ascending id order the way a lock-order deadlock would.
type Tx struct {
	st   *state
	fail map[string]error
	now  func() time.Time

	locks       map[string]bool
	numbering   bool
	lastProduct int64
}

func newTx(st *state, fail map[string]error, now func() time.Time) *Tx {
	return &Tx{st: st, fail: fail, now: now, locks: make(map[string]bool)}
}

func lockKey(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

func (t *Tx) lock(kind string, id int64) {
	t.locks[lockKey(kind, id)] = true
}

func (t *Tx) requireLock(kind string, id int64) error {
	if t.locks[lockKey(kind, id)] {
		return nil
	}
	return fmt.Errorf("%w: %s %d", ErrUnlocked, kind, id)
}

func (t *Tx) lockProduct(id int64) error {
	if t.locks[lockKey("product", id)] {
		return nil
	}
	if id < t.lastProduct {
		return fmt.Errorf("memstore: product %d locked after product %d: %w", id, t.lastProduct, shared.ErrConcurrencyConflict)
	}
	t.lock("product", id)
	t.lastProduct = id
	return nil
}

func (t *Tx) injected(method string) error {
	return t.fail[method]
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("memstore: %s %d: %w", kind, id, shared.ErrNotFound)
}

// GetProduct implements catalog.TxRepository.
func (t *Tx) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	if err := t.injected("GetProduct"); err != nil {
		return catalog.Product{}, err
	}
	p, ok := t.st.products[id]
	if !ok {
		return catalog.Product{}, notFound("product", id)
	}
	return p, nil
}

// GetProductForUpdate implements stock.TxRepository.
func (t *Tx) GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error) {
	if err := t.injected("GetProductForUpdate"); err != nil {
		return catalog.Product{}, err
	}
	p, err := t.GetProduct(ctx, id)
	if err != nil {
		return catalog.Product{}, err
	}
	if err := t.lockProduct(id); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// UpdateProductStock implements stock.TxRepository.
func (t *Tx) UpdateProductStock(_ context.Context, id int64, qty int) error {
	if err := t.injected("UpdateProductStock"); err != nil {
		return err
	}
	if err := t.requireLock("product", id); err != nil {
		return err
	}
	p, ok := t.st.products[id]
	if !ok {
		return notFound("product", id)
	}
	p.StockQuantity = qty
	p.UpdatedAt = t.now()
	t.st.products[id] = p
	return nil
}

// InsertProduct implements catalog.TxRepository.
func (t *Tx) InsertProduct(_ context.Context, p catalog.Product) (int64, error) {
	if err := t.injected("InsertProduct"); err != nil {
		return 0, err
	}
	for _, existing := range t.st.products {
		if existing.Code == p.Code {
			return 0, fmt.Errorf("memstore: product code %q: %w", p.Code, shared.ErrDuplicate)
		}
	}
	t.st.productSeq++
	p.ID = t.st.productSeq
	p.StockQuantity = 0
	t.st.products[p.ID] = p
	return p.ID, nil
}

// UpdateProductDetails implements catalog.TxRepository.
func (t *Tx) UpdateProductDetails(_ context.Context, p catalog.Product) error {
	if err := t.injected("UpdateProductDetails"); err != nil {
		return err
	}
	existing, ok := t.st.products[p.ID]
	if !ok {
		return notFound("product", p.ID)
	}
	p.StockQuantity = existing.StockQuantity
	p.CreatedAt = existing.CreatedAt
	t.st.products[p.ID] = p
	return nil
}

// InsertMovement implements stock.TxRepository.
func (t *Tx) InsertMovement(_ context.Context, m stock.Movement) (int64, error) {
	if err := t.injected("InsertMovement"); err != nil {
		return 0, err
	}
	t.st.movementSeq++
	m.ID = t.st.movementSeq
	t.st.movements = append(t.st.movements, m)
	return m.ID, nil
}

// RestoredByDocument implements stock.MovementStore.RestoredByDocument.
func (t *Tx) RestoredByDocument(_ context.Context, docType string, docID int64) (map[int64]int, error) {
	if err := t.injected("RestoredByDocument"); err != nil {
		return nil, err
	}
	out := make(map[int64]int)
	for _, m := range t.st.movements {
		if m.DocType == docType && m.DocID == docID && m.Type == stock.MovementIn {
			out[m.ProductID] += m.Qty
		}
	}
	return out, nil
}

// NextInvoiceNumber implements invoicing.TxRepository.
func (t *Tx) NextInvoiceNumber(_ context.Context) (int64, error) {
	if err := t.injected("NextInvoiceNumber"); err != nil {
		return 0, err
	}
	t.numbering = true
	var max int64
	for _, inv := range t.st.invoices {
		if !inv.IsCorrection && inv.Number > max {
			max = inv.Number
		}
	}
	return max + 1, nil
}

func (t *Tx) withParentNumber(inv invoicing.Invoice) invoicing.Invoice {
	if inv.ParentID != 0 {
		inv.ParentNumber = t.st.invoices[inv.ParentID].Number
	}
	return inv
}

// GetInvoice implements invoicing.TxRepository.
func (t *Tx) GetInvoice(_ context.Context, id int64) (invoicing.Invoice, error) {
	if err := t.injected("GetInvoice"); err != nil {
		return invoicing.Invoice{}, err
	}
	inv, ok := t.st.invoices[id]
	if !ok {
		return invoicing.Invoice{}, notFound("invoice", id)
	}
	return t.withParentNumber(cloneInvoice(inv)), nil
}

// GetInvoiceForUpdate implements invoicing.TxRepository.
func (t *Tx) GetInvoiceForUpdate(ctx context.Context, id int64) (invoicing.Invoice, error) {
	if err := t.injected("GetInvoiceForUpdate"); err != nil {
		return invoicing.Invoice{}, err
	}
	inv, err := t.GetInvoice(ctx, id)
	if err != nil {
		return invoicing.Invoice{}, err
	}
	t.lock("invoice", id)
	return inv, nil
}

// GetInvoiceByOrder returns the regular invoice issued for an order, locking it.
func (t *Tx) GetInvoiceByOrder(_ context.Context, orderID int64) (invoicing.Invoice, error) {
	if err := t.injected("GetInvoiceByOrder"); err != nil {
		return invoicing.Invoice{}, err
	}
	for _, inv := range sortedValues(t.st.invoices) {
		if inv.OrderID == orderID && !inv.IsCorrection {
			t.lock("invoice", inv.ID)
			return cloneInvoice(inv), nil
		}
	}
	return invoicing.Invoice{}, notFound("invoice for order", orderID)
}

// CountCorrections implements invoicing.TxRepository.
func (t *Tx) CountCorrections(_ context.Context, parentID int64) (int, error) {
	if err := t.injected("CountCorrections"); err != nil {
		return 0, err
	}
	n := 0
	for _, inv := range t.st.invoices {
		if inv.IsCorrection && inv.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

// InsertInvoice implements invoicing.TxRepository.
func (t *Tx) InsertInvoice(_ context.Context, inv *invoicing.Invoice) error {
	if err := t.injected("InsertInvoice"); err != nil {
		return err
	}
	if inv.IsCorrection {
		if err := t.requireLock("invoice", inv.ParentID); err != nil {
			return err
		}
	} else if inv.Number != 0 && !t.numbering {
		return fmt.Errorf("%w: invoice number %d issued without numbering lock", ErrUnlocked, inv.Number)
	}
	if inv.Number != 0 {
		for _, existing := range t.st.invoices {
			if !existing.IsCorrection && existing.Number == inv.Number {
				return fmt.Errorf("memstore: invoice number %d: %w", inv.Number, shared.ErrDuplicate)
			}
		}
	}
	t.st.invoiceSeq++
	inv.ID = t.st.invoiceSeq
	for i := range inv.Items {
		t.st.itemSeq++
		inv.Items[i].ID = t.st.itemSeq
		inv.Items[i].InvoiceID = inv.ID
	}
	stored := cloneInvoice(*inv)
	stored.FullNumber = ""
	t.st.invoices[inv.ID] = stored
	return nil
}

// UpdateInvoicePaymentStatus sets an invoice's payment status.
func (t *Tx) UpdateInvoicePaymentStatus(_ context.Context, id int64, status invoicing.PaymentStatus) error {
	if err := t.injected("UpdateInvoicePaymentStatus"); err != nil {
		return err
	}
	if err := t.requireLock("invoice", id); err != nil {
		return err
	}
	inv, ok := t.st.invoices[id]
	if !ok {
		return notFound("invoice", id)
	}
	inv.PaymentStatus = status
	t.st.invoices[id] = inv
	return nil
}

// GetOrder implements orders.TxRepository.
func (t *Tx) GetOrder(_ context.Context, id int64) (orders.Order, error) {
	if err := t.injected("GetOrder"); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, notFound("order", id)
	}
	o.Items = append([]orders.Item(nil), o.Items...)
	return o, nil
}

// GetOrderForUpdate implements orders.TxRepository.
func (t *Tx) GetOrderForUpdate(ctx context.Context, id int64) (orders.Order, error) {
	if err := t.injected("GetOrderForUpdate"); err != nil {
		return orders.Order{}, err
	}
	o, err := t.GetOrder(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	t.lock("order", id)
	return o, nil
}

// InsertOrder implements orders.TxRepository.
func (t *Tx) InsertOrder(_ context.Context, o *orders.Order) error {
	if err := t.injected("InsertOrder"); err != nil {
		return err
	}
	t.st.orderSeq++
	o.ID = t.st.orderSeq
	for i := range o.Items {
		t.st.orderItemSeq++
		o.Items[i].ID = t.st.orderItemSeq
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = append([]orders.Item(nil), o.Items...)
	t.st.orders[o.ID] = stored
	return nil
}

// UpdateOrderStatus implements orders.TxRepository.
func (t *Tx) UpdateOrderStatus(_ context.Context, id int64, status orders.Status) error {
	if err := t.injected("UpdateOrderStatus"); err != nil {
		return err
	}
	if err := t.requireLock("order", id); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return notFound("order", id)
	}
	o.Status = status
	o.UpdatedAt = t.now()
	t.st.orders[id] = o
	return nil
}

// UpdateOrderPayment implements orders.TxRepository.
func (t *Tx) UpdateOrderPayment(_ context.Context, id int64, payuOrderID, paymentURL string) error {
	if err := t.injected("UpdateOrderPayment"); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return notFound("order", id)
	}
	o.PayUOrderID = payuOrderID
	o.PaymentURL = paymentURL
	t.st.orders[id] = o
	return nil
}

func (t *Tx) withOrderID(d warehouse.Document) warehouse.Document {
	d.OrderID = t.st.invoices[d.InvoiceID].OrderID
	d.Items = append([]warehouse.Item(nil), d.Items...)
	return d
}

// GetDocument returns one goods-issue note.
func (t *Tx) GetDocument(_ context.Context, id int64) (warehouse.Document, error) {
	if err := t.injected("GetDocument"); err != nil {
		return warehouse.Document{}, err
	}
	d, ok := t.st.documents[id]
	if !ok {
		return warehouse.Document{}, notFound("warehouse document", id)
	}
	return t.withOrderID(d), nil
}

// GetDocumentForUpdate implements warehouse.TxRepository.
func (t *Tx) GetDocumentForUpdate(ctx context.Context, id int64) (warehouse.Document, error) {
	if err := t.injected("GetDocumentForUpdate"); err != nil {
		return warehouse.Document{}, err
	}
	d, err := t.GetDocument(ctx, id)
	if err != nil {
		return warehouse.Document{}, err
	}
	t.lock("document", id)
	return d, nil
}

// GetDocumentByInvoice returns the goods-issue note of an invoice, locking it.
func (t *Tx) GetDocumentByInvoice(_ context.Context, invoiceID int64) (warehouse.Document, error) {
	if err := t.injected("GetDocumentByInvoice"); err != nil {
		return warehouse.Document{}, err
	}
	for _, d := range sortedValues(t.st.documents) {
		if d.InvoiceID == invoiceID {
			t.lock("document", d.ID)
			return t.withOrderID(d), nil
		}
	}
	return warehouse.Document{}, notFound("warehouse document for invoice", invoiceID)
}

// InsertDocument stores a goods-issue note. Items pass through the JSON codec as in PostgreSQL.
func (t *Tx) InsertDocument(_ context.Context, d *warehouse.Document) error {
	if err := t.injected("InsertDocument"); err != nil {
		return err
	}
	for _, existing := range t.st.documents {
		if existing.InvoiceID == d.InvoiceID {
			return fmt.Errorf("memstore: document for invoice %d: %w", d.InvoiceID, shared.ErrDuplicate)
		}
	}
	raw, err := warehouse.EncodeItems(d.Items)
	if err != nil {
		return err
	}
	t.st.documentSeq++
	d.ID = t.st.documentSeq
	stored := *d
	stored.OrderID = 0
	stored.Items = warehouse.DecodeItems(raw)
	t.st.documents[d.ID] = stored
	return nil
}

// UpdateDocumentStatus implements warehouse.TxRepository.
func (t *Tx) UpdateDocumentStatus(_ context.Context, id int64, status warehouse.Status) error {
	if err := t.injected("UpdateDocumentStatus"); err != nil {
		return err
	}
	if err := t.requireLock("document", id); err != nil {
		return err
	}
	d, ok := t.st.documents[id]
	if !ok {
		return notFound("warehouse document", id)
	}
	d.Status = status
	t.st.documents[id] = d
	return nil
}

func cloneInvoice(inv invoicing.Invoice) invoicing.Invoice {
	inv.Items = append([]invoicing.Item(nil), inv.Items...)
	return inv
}
