package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// FulfillmentRetrier re-runs a fulfillment; an already fulfilled order returns nil.
type FulfillmentRetrier interface {
	RetryFulfillment(ctx context.Context, orderID int64) error
}

// FulfillmentRetryJob completes orders whose payment notification could not be processed.
type FulfillmentRetryJob struct {
	Fulfillment FulfillmentRetrier
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewFulfillmentRetryJob wires dependencies for the retry handler.
func NewFulfillmentRetryJob(fulfillment FulfillmentRetrier, logger *slog.Logger, metrics *jobmetrics.Metrics) *FulfillmentRetryJob {
	return &FulfillmentRetryJob{Fulfillment: fulfillment, Logger: logger, Metrics: metrics}
}

// Handle processes TaskFulfillmentRetry tasks. Only concurrency conflicts and gateway outages are
// retried by the broker; any other failure is final.
func (j *FulfillmentRetryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Fulfillment == nil {
		return errors.New("fulfillment retry: handler not configured")
	}
	var payload FulfillmentRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OrderID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskFulfillmentRetry)
	logger := loggerOr(j.Logger).With(slog.Int64("order_id", payload.OrderID))
	retried, _ := asynq.GetRetryCount(ctx)

	err := j.Fulfillment.RetryFulfillment(ctx, payload.OrderID)
	switch {
	case err == nil:
		logger.Info("fulfillment retry completed", slog.Int("attempt", retried+1))
	case shared.IsRetryable(err):
		logger.Warn("fulfillment retry failed, will retry", slog.Int("attempt", retried+1), slog.Any("error", err))
	default:
		logger.Error("fulfillment retry failed permanently", slog.Any("error", err))
		err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return tracker.End(err)
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
