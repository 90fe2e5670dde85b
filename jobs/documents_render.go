package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Prerenderer warms the PDF cache for one document.
type Prerenderer interface {
	Prerender(ctx context.Context, kind string, id int64) error
}

// DocumentsRenderJob renders the invoice and goods-issue note of a fulfilled order ahead of the
// first download.
type DocumentsRenderJob struct {
	Documents Prerenderer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewDocumentsRenderJob wires dependencies for the render handler.
func NewDocumentsRenderJob(docs Prerenderer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocumentsRenderJob {
	return &DocumentsRenderJob{Documents: docs, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDocumentsRender tasks.
func (j *DocumentsRenderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Documents == nil {
		return errors.New("documents render: handler not configured")
	}
	var payload DocumentsRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskDocumentsRender)
	logger := loggerOr(j.Logger).With(slog.Int64("invoice_id", payload.InvoiceID), slog.Int64("doc_id", payload.DocumentID))

	g, gctx := errgroup.WithContext(ctx)
	render := func(kind string, id int64) {
		if id <= 0 {
			return
		}
		g.Go(func() error {
			if err := j.Documents.Prerender(gctx, kind, id); err != nil {
				return fmt.Errorf("%s %d: %w", kind, id, err)
			}
			j.Metrics.AddRendered(kind, 1)
			return nil
		})
	}
	render(documents.KindInvoice, payload.InvoiceID)
	render(documents.KindWarehouse, payload.DocumentID)

	err := g.Wait()
	switch {
	case err == nil:
		logger.Info("documents prerendered")
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrValidation):
		logger.Warn("documents prerender skipped", slog.Any("error", err))
		err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		logger.Warn("documents prerender failed", slog.Any("error", err))
	}
	return tracker.End(err)
}
