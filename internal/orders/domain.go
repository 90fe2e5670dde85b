package orders

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Status enumerates order lifecycle states.
type Status string

const (
	// StatusPendingPayment waits for the payment gateway or cash-on-delivery fulfillment.
	StatusPendingPayment Status = "pending_payment"
	// StatusPending is a legacy state of orders placed before online payments.
	StatusPending Status = "pending"
	// StatusProcessing marks fulfilled orders awaiting shipment.
	StatusProcessing Status = "processing"
	// StatusShipped marks orders whose goods left the warehouse.
	StatusShipped Status = "shipped"
	// StatusCancelled is terminal.
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:        {StatusProcessing, StatusCancelled},
	StatusPendingPayment: {StatusCancelled},
	StatusProcessing:     {StatusShipped, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPending, StatusProcessing, StatusShipped, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a manual status change from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	// PaymentPayU redirects the buyer to the PayU gateway.
	PaymentPayU PaymentMethod = "payu"
	// PaymentCOD is cash on delivery; the order is fulfilled immediately.
	PaymentCOD PaymentMethod = "cod"
)

// Order is a customer purchase.
type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Status          Status          `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	BuyerName       string          `json:"buyer_name"`
	BuyerNIP        string          `json:"buyer_nip,omitempty"`
	BillingAddress  string          `json:"billing_address,omitempty"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	PayUOrderID     string          `json:"payu_order_id,omitempty"`
	PaymentURL      string          `json:"payment_url,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []Item          `json:"items"`
}

// Item is an order line with the net unit price and VAT rate captured at order time. Lines of
// legacy orders carry no tax rate.
type Item struct {
	ID        int64               `json:"id"`
	OrderID   int64               `json:"order_id"`
	ProductID int64               `json:"product_id"`
	Qty       int                 `json:"qty"`
	UnitPrice decimal.Decimal     `json:"unit_price"`
	TaxRate   decimal.NullDecimal `json:"tax_rate"`
}

// LineTotal returns qty * unit price rounded to cents.
func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))).Round(2)
}

// LineGross returns the gross line value, rounded the way the invoice rounds it.
func (it Item) LineGross() decimal.Decimal {
	if !it.TaxRate.Valid {
		return it.LineTotal()
	}
	_, gross := invoicing.LineTotals(it.UnitPrice, it.TaxRate.Decimal, it.Qty)
	return gross
}

// UnitGross returns the gross price of one unit.
func (it Item) UnitGross() decimal.Decimal {
	if !it.TaxRate.Valid {
		return it.UnitPrice
	}
	_, gross := invoicing.LineTotals(it.UnitPrice, it.TaxRate.Decimal, 1)
	return gross
}

// ItemInput is a requested order line.
type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"gt=0"`
}

// CreateInput is the order placement request.
type CreateInput struct {
	BuyerName       string        `json:"buyer_name" validate:"required,max=255"`
	BuyerNIP        string        `json:"buyer_nip" validate:"max=32"`
	BillingAddress  string        `json:"billing_address" validate:"max=512"`
	ShippingAddress string        `json:"shipping_address" validate:"max=512"`
	PaymentMethod   PaymentMethod `json:"payment_method" validate:"required,oneof=payu cod"`
	Items           []ItemInput   `json:"items" validate:"required,min=1,dive"`
	// CartID, when set, is closed in the same transaction that stores the order.
	CartID int64 `json:"-"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	UserID  int64
	Status  Status
	Page    int
	PerPage int
}

// ExtOrderID builds the gateway order reference "{id}_{unix}" that stays unique across payment retries.
func ExtOrderID(id int64, at time.Time) string {
	return strconv.FormatInt(id, 10) + "_" + strconv.FormatInt(at.Unix(), 10)
}

// ParseExtOrderID extracts the order id from a gateway reference, ignoring the uniqueness suffix.
func ParseExtOrderID(ext string) (int64, error) {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return 0, fmt.Errorf("%w: missing extOrderId", shared.ErrValidation)
	}
	head, _, _ := strings.Cut(ext, "_")
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid extOrderId %q", shared.ErrValidation, ext)
	}
	return id, nil
}
