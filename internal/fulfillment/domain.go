package fulfillment

import (
	"encoding/json"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

// Fulfillment results reported to metrics and logs.
const (
	ResultFulfilled = "fulfilled"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

// Alert reasons for paid orders left unfulfilled.
const (
	AlertShortage = "shortage"
	AlertFailed   = "failed"
)

// PayU notification states handled by the webhook.
const payuCompleted = "COMPLETED"

// Result is the outcome of one fulfillment.
type Result struct {
	Order    orders.Order       `json:"order"`
	Invoice  invoicing.Invoice  `json:"invoice"`
	Document warehouse.Document `json:"warehouse_document"`
}

// Placement is the outcome of placing an order. Invoice and Document are set for cash-on-delivery orders.
type Placement struct {
	Order      orders.Order        `json:"order"`
	Invoice    *invoicing.Invoice  `json:"invoice,omitempty"`
	Document   *warehouse.Document `json:"warehouse_document,omitempty"`
	PaymentURL string              `json:"payment_url,omitempty"`
}

// StatusInput is the manual order status change request.
type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=pending pending_payment processing shipped cancelled"`
}

// Notification is the subset of a PayU order notification used here.
type Notification struct {
	Order struct {
		OrderID    string `json:"orderId"`
		ExtOrderID string `json:"extOrderId"`
		Status     string `json:"status"`
	} `json:"order"`
}

// ParseNotification decodes a notification body.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	err := json.Unmarshal(body, &n)
	return n, err
}

// Ack is the webhook reply. Acknowledged notifications are answered with 200 so PayU stops redelivering.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	OrderID int64  `json:"order_id,omitempty"`
}
