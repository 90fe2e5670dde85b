package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// NumberSource lists every issued invoice number in ascending order.
type NumberSource interface {
	InvoiceNumbers(ctx context.Context) ([]int64, error)
}

// NumberingAuditJob reports holes and repeats in the invoice sequence.
type NumberingAuditJob struct {
	Source  NumberSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNumberingAuditJob wires dependencies for the audit handler.
func NewNumberingAuditJob(source NumberSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *NumberingAuditJob {
	return &NumberingAuditJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNumberingAudit tasks. A broken sequence is logged, not failed: there is
// nothing a retry could fix.
func (j *NumberingAuditJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("numbering audit: handler not configured")
	}
	tracker := j.Metrics.Track(TaskNumberingAudit)
	numbers, err := j.Source.InvoiceNumbers(ctx)
	if err != nil {
		return tracker.End(err)
	}
	report := invoicing.CheckNumbering(numbers)
	logger := loggerOr(j.Logger)
	if report.OK() {
		logger.Info("invoice numbering intact", slog.Int("count", report.Count), slog.Int64("last", report.Last))
	} else {
		logger.Error("invoice numbering broken",
			slog.Int("count", report.Count),
			slog.Any("missing", report.Missing),
			slog.Any("duplicates", report.Duplicates))
	}
	return tracker.End(nil)
}
