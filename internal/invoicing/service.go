package invoicing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service issues manual invoices and corrections.
type Service struct {
	repo    RepositoryPort
	builder *Builder
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, builder *Builder, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, builder: builder, audit: audit, metrics: metrics, logger: logger}
}

// CreateInvoice issues a numbered PENDING invoice. Stock is checked but not deducted and no
// warehouse document is created.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	actor := shared.ActorFromContext(ctx)
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = s.builder.Issue(ctx, tx, Draft{
			Buyer:         in.Buyer,
			Lines:         in.Items,
			ActorID:       actor,
			PaymentStatus: PaymentPending,
			CheckStock:    true,
		})
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.metrics.InvoiceIssued("invoice")
	s.record(ctx, "INVOICE_CREATE", map[string]any{
		"invoice_id":  inv.ID,
		"number":      inv.FullNumber,
		"total_gross": inv.TotalGross.StringFixed(2),
		"buyer":       inv.BuyerName,
	})
	return inv, nil
}

// CreateCorrection issues a correction of parentID.
func (s *Service) CreateCorrection(ctx context.Context, parentID int64, in CreateCorrectionInput) (Invoice, error) {
	if parentID <= 0 {
		return Invoice{}, fmt.Errorf("%w: parent invoice required", shared.ErrValidation)
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, _, err = s.builder.IssueCorrection(ctx, tx, parentID, CorrectionDraft{
			Buyer:   in.Buyer,
			Lines:   in.Items,
			Reason:  in.Reason,
			ActorID: shared.ActorFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.metrics.InvoiceIssued("correction")
	s.record(ctx, "INVOICE_CORRECTION_CREATE", map[string]any{
		"invoice_id": inv.ID,
		"parent_id":  parentID,
		"number":     inv.FullNumber,
		"reason":     inv.CorrectionReason,
	})
	return inv, nil
}

// GetInvoice returns one invoice with items and its display number.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.FullNumber = FullNumber(inv)
	return inv, nil
}

// ListInvoices returns a page of invoice headers.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, shared.Pagination, error) {
	items, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range items {
		items[i].FullNumber = FullNumber(items[i])
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) record(ctx context.Context, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Resource: "invoices", Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
