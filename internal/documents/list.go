package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

// InvoiceLister pages invoice headers.
type InvoiceLister interface {
	ListInvoices(ctx context.Context, filter invoicing.ListFilter) ([]invoicing.Invoice, shared.Pagination, error)
}

// DocumentLister pages goods-issue notes.
type DocumentLister interface {
	List(ctx context.Context, filter warehouse.ListFilter) ([]warehouse.Document, shared.Pagination, error)
}

// ListFilter narrows the combined document register.
type ListFilter struct {
	Kind    string
	Buyer   string
	From    time.Time
	To      time.Time
	Status  warehouse.Status
	SortBy  string
	Desc    bool
	Page    int
	PerPage int
}

// Entry is one row of the combined register.
type Entry struct {
	Kind       string           `json:"type"`
	ID         int64            `json:"id"`
	Number     string           `json:"number"`
	Date       time.Time        `json:"date"`
	Status     string           `json:"status"`
	OrderID    int64            `json:"order_id,omitempty"`
	InvoiceID  int64            `json:"invoice_id,omitempty"`
	Buyer      string           `json:"buyer"`
	TotalNet   *decimal.Decimal `json:"total_net,omitempty"`
	TotalVAT   *decimal.Decimal `json:"total_vat,omitempty"`
	TotalGross *decimal.Decimal `json:"total_gross,omitempty"`
}

var (
	invoiceSorts   = map[string]string{"date": "created_at", "buyer": "buyer_name", "id": "id"}
	warehouseSorts = map[string]string{"date": "created_at", "buyer": "buyer_name", "status": "status"}
)

// Register lists invoices and goods-issue notes side by side. Each kind is paged on its own and
// the pages are concatenated, invoices first; the total counts both kinds. A status filter applies
// to goods-issue notes only and excludes invoices.
type Register struct {
	invoices  InvoiceLister
	documents DocumentLister
}

// NewRegister builds Register.
func NewRegister(invoices InvoiceLister, documents DocumentLister) *Register {
	return &Register{invoices: invoices, documents: documents}
}

// List returns one page of the register.
func (r *Register) List(ctx context.Context, filter ListFilter) ([]Entry, shared.Pagination, error) {
	switch filter.Kind {
	case "", KindInvoice, KindWarehouse:
	default:
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, filter.Kind)
	}
	if filter.Status != "" {
		if _, err := warehouse.ParseStatus(string(filter.Status)); err != nil {
			return nil, shared.Pagination{}, err
		}
	}

	var (
		entries []Entry
		total   int
	)
	if (filter.Kind == "" || filter.Kind == KindInvoice) && filter.Status == "" {
		items, page, err := r.invoices.ListInvoices(ctx, invoicing.ListFilter{
			Search:  filter.Buyer,
			From:    filter.From,
			To:      filter.To,
			SortBy:  sortOrID(invoiceSorts, filter.SortBy),
			Desc:    filter.Desc,
			Page:    filter.Page,
			PerPage: filter.PerPage,
		})
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		for _, inv := range items {
			net, vat, gross := inv.TotalNet, inv.TotalVAT, inv.TotalGross
			entries = append(entries, Entry{
				Kind:       KindInvoice,
				ID:         inv.ID,
				Number:     inv.FullNumber,
				Date:       inv.CreatedAt,
				Status:     string(inv.PaymentStatus),
				OrderID:    inv.OrderID,
				Buyer:      inv.BuyerName,
				TotalNet:   &net,
				TotalVAT:   &vat,
				TotalGross: &gross,
			})
		}
		total += page.Total
	}
	if filter.Kind == "" || filter.Kind == KindWarehouse {
		wf := warehouse.ListFilter{
			Search:  filter.Buyer,
			From:    filter.From,
			To:      filter.To,
			SortBy:  sortOrID(warehouseSorts, filter.SortBy),
			Desc:    filter.Desc,
			Page:    filter.Page,
			PerPage: filter.PerPage,
		}
		if filter.Status != "" {
			status, _ := warehouse.ParseStatus(string(filter.Status))
			wf.Statuses = []warehouse.Status{status}
		}
		docs, page, err := r.documents.List(ctx, wf)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		for _, d := range docs {
			entries = append(entries, Entry{
				Kind:      KindWarehouse,
				ID:        d.ID,
				Number:    WarehouseNumber(d.ID),
				Date:      d.CreatedAt,
				Status:    string(d.Status),
				OrderID:   d.OrderID,
				InvoiceID: d.InvoiceID,
				Buyer:     d.BuyerName,
			})
		}
		total += page.Total
	}
	return entries, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func sortOrID(columns map[string]string, sort string) string {
	if col, ok := columns[sort]; ok {
		return col
	}
	if sort == "" {
		return "created_at"
	}
	return "id"
}
