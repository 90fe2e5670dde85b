// Package memstore is an in-memory stand-in for the PostgreSQL stores. Transactions are serialised
// by one mutex and roll back to a snapshot on error. Each Tx tracks the row locks its PostgreSQL
// counterpart would hold, so a service that writes a row it never locked, or locks products out of
// id order, fails here as well.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/cart"
	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

type state struct {
	products  map[int64]catalog.Product
	movements []stock.Movement
	invoices  map[int64]invoicing.Invoice
	orders    map[int64]orders.Order
	documents map[int64]warehouse.Document
	carts     map[int64]cart.Cart
	cartItems map[int64]cart.Item

	productSeq   int64
	movementSeq  int64
	invoiceSeq   int64
	itemSeq      int64
	orderSeq     int64
	orderItemSeq int64
	documentSeq  int64
	cartSeq      int64
	cartItemSeq  int64
}

func newState() state {
	return state{
		products:  make(map[int64]catalog.Product),
		invoices:  make(map[int64]invoicing.Invoice),
		orders:    make(map[int64]orders.Order),
		documents: make(map[int64]warehouse.Document),
		carts:     make(map[int64]cart.Cart),
		cartItems: make(map[int64]cart.Item),
	}
}

func (s state) clone() state {
	out := s
	out.products = make(map[int64]catalog.Product, len(s.products))
	for k, v := range s.products {
		out.products[k] = v
	}
	out.movements = slices.Clone(s.movements)
	out.invoices = make(map[int64]invoicing.Invoice, len(s.invoices))
	for k, v := range s.invoices {
		v.Items = slices.Clone(v.Items)
		out.invoices[k] = v
	}
	out.orders = make(map[int64]orders.Order, len(s.orders))
	for k, v := range s.orders {
		v.Items = slices.Clone(v.Items)
		out.orders[k] = v
	}
	out.documents = make(map[int64]warehouse.Document, len(s.documents))
	for k, v := range s.documents {
		v.Items = slices.Clone(v.Items)
		out.documents[k] = v
	}
	out.carts = make(map[int64]cart.Cart, len(s.carts))
	for k, v := range s.carts {
		out.carts[k] = v
	}
	out.cartItems = make(map[int64]cart.Item, len(s.cartItems))
	for k, v := range s.cartItems {
		out.cartItems[k] = v
	}
	return out
}

// Store holds every table in memory.
type Store struct {
	mu    sync.Mutex
	st    state
	fail  map[string]error
	clock func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), fail: make(map[string]error), clock: func() time.Time { return time.Now().UTC() }}
}

// FailOn makes the named Tx method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

// Do runs fn as one transaction. Any error restores the state seen before fn started.
func (s *Store) Do(ctx context.Context, fn func(context.Context, *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	tx := newTx(&s.st, s.fail, s.clock)
	if err := fn(ctx, tx); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) read(fn func(*Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(newTx(&s.st, map[string]error{}, s.clock))
}

// SeedProduct inserts a product and returns it with its id.
func (s *Store) SeedProduct(p catalog.Product) catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.productSeq++
	p.ID = s.st.productSeq
	if p.Unit == "" {
		p.Unit = catalog.DefaultUnit
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock()
		p.UpdatedAt = p.CreatedAt
	}
	s.st.products[p.ID] = p
	return p
}

// SetProduct overwrites a product row, e.g. to simulate a catalog edit.
func (s *Store) SetProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// Product returns the committed product row.
func (s *Store) Product(id int64) catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.products[id]
}

// Movements returns committed movements of a product in insertion order; 0 returns all.
func (s *Store) Movements(productID int64) []stock.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stock.Movement
	for _, m := range s.st.movements {
		if productID == 0 || m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

// Invoices returns committed invoices ordered by id.
func (s *Store) Invoices() []invoicing.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.invoices)
}

// Documents returns committed goods-issue notes ordered by id.
func (s *Store) Documents() []warehouse.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.documents)
}

// Order returns the committed order row.
func (s *Store) Order(id int64) orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.orders[id]
}

// CartByID returns a committed cart with its lines.
func (s *Store) CartByID(id int64) cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.st.carts[id]
	for _, it := range sortedValues(s.st.cartItems) {
		if it.CartID == id {
			c.Items = append(c.Items, it)
		}
	}
	return c
}

// SeedInvoice stores an invoice as-is, assigning ids. Used to model legacy rows.
func (s *Store) SeedInvoice(inv invoicing.Invoice) invoicing.Invoice {
	var out invoicing.Invoice
	_ = s.Do(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.numbering = true
		tx.lock("invoice", inv.ParentID)
		err := tx.InsertInvoice(ctx, &inv)
		out = inv
		return err
	})
	return out
}

// SeedOrder stores an order as-is, assigning ids.
func (s *Store) SeedOrder(o orders.Order) orders.Order {
	var out orders.Order
	_ = s.Do(context.Background(), func(ctx context.Context, tx *Tx) error {
		err := tx.InsertOrder(ctx, &o)
		out = o
		return err
	})
	return out
}

// SeedDocument stores a goods-issue note as-is, assigning an id.
func (s *Store) SeedDocument(d warehouse.Document) warehouse.Document {
	var out warehouse.Document
	_ = s.Do(context.Background(), func(ctx context.Context, tx *Tx) error {
		err := tx.InsertDocument(ctx, &d)
		out = d
		return err
	})
	return out
}

func sortedValues[T any](m map[int64]T) []T {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
