package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUnit is used when a product has no unit of measure set.
const DefaultUnit = "szt"

// Product represents a sellable catalog item together with its denormalised stock counter.
type Product struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	SellPriceNet  decimal.Decimal `json:"sell_price_net"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	StockQuantity int             `json:"stock_quantity"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	Location      string          `json:"location,omitempty"`
	Category      string          `json:"category,omitempty"`
	Supplier      string          `json:"supplier,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	Unit          string          `json:"unit"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ProductInput carries editable catalog fields. Stock is never set here; it moves only through the ledger.
type ProductInput struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=255"`
	SellPriceNet decimal.Decimal `json:"sell_price_net"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	Location     string          `json:"location" validate:"max=64"`
	Category     string          `json:"category" validate:"max=128"`
	Supplier     string          `json:"supplier" validate:"max=255"`
	ImageURL     string          `json:"image_url" validate:"omitempty,max=512"`
	Unit         string          `json:"unit" validate:"max=16"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search   string
	Category string
	Page     int
	PerPage  int
}
