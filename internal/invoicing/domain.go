package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PaymentStatus enumerates invoice payment states.
type PaymentStatus string

const (
	// PaymentPending is the state of manually issued invoices.
	PaymentPending PaymentStatus = "PENDING"
	// PaymentPaid marks invoices issued for paid orders.
	PaymentPaid PaymentStatus = "PAID"
	// PaymentCancelled marks invoices of cancelled orders.
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

var (
	// ErrCorrectionOfCorrection rejects corrections whose parent is itself a correction.
	ErrCorrectionOfCorrection = fmt.Errorf("%w: cannot correct a correction invoice", shared.ErrValidation)
	// ErrNoLines rejects documents without line items.
	ErrNoLines = fmt.Errorf("%w: invoice requires at least one item", shared.ErrValidation)
	// ErrInvalidQuantity rejects non-positive line quantities.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
)

// Invoice is a sales document. Number is 0 for corrections and for invoices issued before numbering.
type Invoice struct {
	ID               int64           `json:"id"`
	Number           int64           `json:"number,omitempty"`
	FullNumber       string          `json:"full_number"`
	UserID           int64           `json:"user_id,omitempty"`
	OrderID          int64           `json:"order_id,omitempty"`
	CreatedBy        int64           `json:"created_by,omitempty"`
	BuyerName        string          `json:"buyer_name"`
	BuyerNIP         string          `json:"buyer_nip,omitempty"`
	BuyerAddress     string          `json:"buyer_address,omitempty"`
	ShippingAddress  string          `json:"shipping_address,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	TotalNet         decimal.Decimal `json:"total_net"`
	TotalVAT         decimal.Decimal `json:"total_vat"`
	TotalGross       decimal.Decimal `json:"total_gross"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	IsCorrection     bool            `json:"is_correction"`
	ParentID         int64           `json:"parent_id,omitempty"`
	ParentNumber     int64           `json:"-"`
	CorrectionReason string          `json:"correction_reason,omitempty"`
	CorrectionSeq    int             `json:"correction_seq,omitempty"`
	Items            []Item          `json:"items,omitempty"`
}

// Item is an invoice line. Name, price and tax are copied from the catalog when the invoice is built
// and never re-read afterwards.
type Item struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	PriceNet    decimal.Decimal `json:"price_net"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TotalNet    decimal.Decimal `json:"total_net"`
	TotalGross  decimal.Decimal `json:"total_gross"`
}

// Buyer holds the buyer snapshot printed on the document.
type Buyer struct {
	Name            string `json:"buyer_name" validate:"max=255"`
	NIP             string `json:"buyer_nip" validate:"max=32"`
	Address         string `json:"buyer_address" validate:"max=512"`
	ShippingAddress string `json:"shipping_address" validate:"max=512"`
}

// LineRequest asks for one line. Price and tax default to the product's current catalog values.
type LineRequest struct {
	ProductID int64               `json:"product_id" validate:"required,gt=0"`
	Quantity  int                 `json:"quantity" validate:"gt=0"`
	PriceNet  decimal.NullDecimal `json:"price_net"`
	TaxRate   decimal.NullDecimal `json:"tax_rate"`
}

// Draft describes an invoice to build.
type Draft struct {
	Buyer         Buyer
	Lines         []LineRequest
	ActorID       int64
	UserID        int64
	OrderID       int64
	PaymentStatus PaymentStatus
	// CheckStock rejects lines exceeding the product's stock. Set for manual invoices only.
	CheckStock bool
}

// CorrectionDraft describes a correction. Empty buyer fields are taken from the parent.
type CorrectionDraft struct {
	Buyer   Buyer
	Lines   []LineRequest
	Reason  string
	ActorID int64
}

// CreateInvoiceInput is the manual invoice request.
type CreateInvoiceInput struct {
	Buyer
	Items []LineRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateCorrectionInput is the correction request.
type CreateCorrectionInput struct {
	Buyer
	Items  []LineRequest `json:"items" validate:"required,min=1,dive"`
	Reason string        `json:"correction_reason" validate:"required,max=1024"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Search  string
	UserID  int64
	From    time.Time
	To      time.Time
	SortBy  string
	Desc    bool
	Page    int
	PerPage int
}

var sortColumns = map[string]string{
	"created_at":  "created_at",
	"id":          "id",
	"total_gross": "total_gross",
	"buyer_name":  "buyer_name",
}

// SortColumn returns a whitelisted column for sort, defaulting to created_at.
func SortColumn(sort string) string {
	if col, ok := sortColumns[sort]; ok {
		return col
	}
	return "created_at"
}
