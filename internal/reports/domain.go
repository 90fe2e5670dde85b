package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultThreshold is the low-stock cut-off used when none is given.
const DefaultThreshold = 10

// LowStockFilter selects products at or below Threshold. Search matches name or code.
type LowStockFilter struct {
	Threshold int
	Search    string
	Page      int
	PageSize  int
}

// LowStockItem is one product running short.
type LowStockItem struct {
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	StockQuantity int    `json:"stock_quantity"`
}

// LowStockPage is one page of the low-stock report.
type LowStockPage struct {
	Items     []LowStockItem `json:"items"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	Threshold int            `json:"threshold"`
}

// SalesDay aggregates the orders created on one calendar day.
type SalesDay struct {
	Date        string          `json:"date"`
	Orders      int             `json:"orders"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// SalesSummary is the per-day sales report over an optional window.
type SalesSummary struct {
	Items       []SalesDay      `json:"items"`
	TotalOrders int             `json:"total_orders"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DateFrom    *time.Time      `json:"date_from"`
	DateTo      *time.Time      `json:"date_to"`
}
