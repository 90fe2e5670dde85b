package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries work that completes a captured payment.
	QueueCritical = "critical"

	// TaskFulfillmentRetry re-runs a fulfillment that failed after the payment notification.
	TaskFulfillmentRetry = "fulfillment:retry"
	// TaskDocumentsRender renders the PDFs of a fulfilled order into the cache.
	TaskDocumentsRender = "documents:render"
	// TaskNumberingAudit checks the invoice number sequence for holes.
	TaskNumberingAudit = "invoices:numbering-audit"

	// NumberingAuditSchedule runs the audit nightly.
	NumberingAuditSchedule = "15 2 * * *"
)

const (
	fulfillmentMaxRetry = 10
	renderMaxRetry      = 3

	// FulfillmentUniqueTTL bounds the per-order uniqueness lock of retry tasks.
	FulfillmentUniqueTTL = 30 * time.Minute
)

// FulfillmentRetryPayload identifies the order to fulfil.
type FulfillmentRetryPayload struct {
	OrderID int64 `json:"order_id"`
}

// DocumentsRenderPayload identifies the documents issued for one order.
type DocumentsRenderPayload struct {
	InvoiceID  int64 `json:"invoice_id"`
	DocumentID int64 `json:"document_id,omitempty"`
}

// NewFulfillmentRetryTask constructs the retry task. The broker rejects a second task for the same
// order while the uniqueness lock is held; the lock expires after FulfillmentUniqueTTL, so an order
// whose earlier retry was archived can be queued again.
func NewFulfillmentRetryTask(orderID int64) (*asynq.Task, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("jobs: invalid order id %d", orderID)
	}
	body, err := json.Marshal(FulfillmentRetryPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFulfillmentRetry, body,
		asynq.Queue(QueueCritical),
		asynq.Unique(FulfillmentUniqueTTL),
		asynq.MaxRetry(fulfillmentMaxRetry),
		asynq.Timeout(time.Minute),
	), nil
}

// NewDocumentsRenderTask constructs the pre-render task.
func NewDocumentsRenderTask(payload DocumentsRenderPayload) (*asynq.Task, error) {
	if payload.InvoiceID <= 0 && payload.DocumentID <= 0 {
		return nil, fmt.Errorf("jobs: render task needs an invoice or document id")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentsRender, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(renderMaxRetry),
		asynq.Timeout(2*time.Minute),
	), nil
}

// NewNumberingAuditTask constructs the periodic audit task.
func NewNumberingAuditTask() *asynq.Task {
	return asynq.NewTask(TaskNumberingAudit, nil,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)
}
