package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Status enumerates goods-issue note states.
type Status string

const (
	// StatusNew is the state of a document created by fulfillment.
	StatusNew Status = "NEW"
	// StatusInProgress marks picking in progress.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusReleased marks goods handed over; terminal.
	StatusReleased Status = "RELEASED"
	// StatusCancelled is terminal.
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusNew:        {StatusInProgress, StatusReleased, StatusCancelled},
	StatusInProgress: {StatusReleased, StatusCancelled},
}

// ParseStatus validates a user supplied status, ignoring case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusNew, StatusInProgress, StatusReleased, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown warehouse status %q", shared.ErrValidation, raw)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Document is a goods-issue note (WZ) issued for one invoice.
type Document struct {
	ID              int64     `json:"id"`
	InvoiceID       int64     `json:"invoice_id"`
	OrderID         int64     `json:"order_id,omitempty"`
	BuyerName       string    `json:"buyer_name"`
	ShippingAddress string    `json:"shipping_address,omitempty"`
	InvoiceDate     time.Time `json:"invoice_date"`
	Items           []Item    `json:"items"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Item is one snapshotted line of a goods-issue note.
type Item struct {
	ProductID   int64  `json:"product_id,omitempty"`
	ProductName string `json:"product_name"`
	ProductCode string `json:"product_code"`
	Quantity    int    `json:"quantity"`
	Location    string `json:"location"`
}

// ItemFromProduct snapshots a product line.
func ItemFromProduct(p catalog.Product, qty int) Item {
	return Item{
		ProductID:   p.ID,
		ProductName: p.Name,
		ProductCode: p.Code,
		Quantity:    qty,
		Location:    p.Location,
	}
}

// Policy configures side effects of status changes.
type Policy struct {
	// RestoreStockOnCancel books the items back into stock when a document is cancelled.
	RestoreStockOnCancel bool
}

// StatusInput is the status change request.
type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=NEW IN_PROGRESS RELEASED CANCELLED"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	Statuses []Status
	Search   string
	From     time.Time
	To       time.Time
	SortBy   string
	Desc     bool
	Page     int
	PerPage  int
}

var sortColumns = map[string]string{
	"created_at": "w.created_at",
	"status":     "w.status",
	"buyer_name": "w.buyer_name",
}

// SortColumn returns a whitelisted column for sort, defaulting to created_at.
func SortColumn(sort string) string {
	if col, ok := sortColumns[sort]; ok {
		return col
	}
	return "w.created_at"
}
