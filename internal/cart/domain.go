package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
)

// Status of a cart.
type Status string

const (
	// StatusOpen accepts item changes. A user has at most one open cart.
	StatusOpen Status = "open"
	// StatusOrdered is set when checkout stores the order.
	StatusOrdered Status = "ordered"
)

// Cart is a user's basket. Displayed prices are gross; each line keeps the net price seen when the
// product was first added.
type Cart struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Status    Status          `json:"status"`
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Item is one cart line.
type Item struct {
	ID        int64           `json:"id"`
	CartID    int64           `json:"-"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	Qty       int             `json:"qty"`
	PriceNet  decimal.Decimal `json:"unit_price_net"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Price fills the gross unit price and line total of every item and the cart total, rounding the
// way invoice lines do.
func (c *Cart) Price() {
	total := decimal.Zero
	for i := range c.Items {
		it := &c.Items[i]
		_, it.UnitPrice = invoicing.LineTotals(it.PriceNet, it.TaxRate, 1)
		_, it.LineTotal = invoicing.LineTotals(it.PriceNet, it.TaxRate, it.Qty)
		total = total.Add(it.LineTotal)
	}
	c.Total = total
}

func (c Cart) item(id int64) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (c Cart) qtyOf(productID int64) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Qty
		}
	}
	return 0
}

// AddInput adds a product to the open cart, merging with an existing line.
type AddInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"required,gt=0"`
}

// UpdateInput sets the quantity of a cart line.
type UpdateInput struct {
	Qty int `json:"qty" validate:"required,gt=0"`
}

// CheckoutInput carries the buyer data of the order built from the cart.
type CheckoutInput struct {
	BuyerName       string               `json:"buyer_name" validate:"required,max=255"`
	BuyerNIP        string               `json:"buyer_nip" validate:"max=32"`
	BillingAddress  string               `json:"billing_address" validate:"max=512"`
	ShippingAddress string               `json:"shipping_address" validate:"max=512"`
	PaymentMethod   orders.PaymentMethod `json:"payment_method" validate:"required,oneof=payu cod"`
}
