package warehouse

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
)

// CancelRestoreReason is recorded on movements restoring a cancelled document.
const CancelRestoreReason = "Anulowanie WZ"

// TxRepository is the transactional surface of status changes.
type TxRepository interface {
	stock.TxRepository
	GetDocumentForUpdate(ctx context.Context, id int64) (Document, error)
	UpdateDocumentStatus(ctx context.Context, id int64, status Status) error
	GetOrderForUpdate(ctx context.Context, id int64) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status orders.Status) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the goods-issue note lifecycle.
type Service struct {
	repo    RepositoryPort
	ledger  *stock.Ledger
	policy  Policy
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *stock.Ledger, policy Policy, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, policy: policy, audit: audit, metrics: metrics, logger: logger}
}

// StatusChange describes the effects of one committed transition.
type StatusChange struct {
	Document      Document      `json:"document"`
	From          Status        `json:"from"`
	OrderShipped  bool          `json:"order_shipped"`
	OrderPrevious orders.Status `json:"order_previous_status,omitempty"`
	Restored      int           `json:"restored_lines"`
}

// SetStatus moves a document along the allow-list. Releasing a document ships its order in the
// same transaction; cancelling restores stock only when the policy says so.
func (s *Service) SetStatus(ctx context.Context, id int64, next Status) (StatusChange, error) {
	next, err := ParseStatus(string(next))
	if err != nil {
		return StatusChange{}, err
	}
	var change StatusChange
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		change = StatusChange{From: doc.Status}
		if !CanTransition(doc.Status, next) {
			return fmt.Errorf("warehouse: %s -> %s: %w", doc.Status, next, shared.ErrInvalidTransition)
		}
		if err := tx.UpdateDocumentStatus(ctx, doc.ID, next); err != nil {
			return err
		}
		doc.Status = next
		change.Document = doc

		switch next {
		case StatusReleased:
			return s.shipOrder(ctx, tx, doc, &change)
		case StatusCancelled:
			if s.policy.RestoreStockOnCancel {
				n, err := RestoreStock(ctx, s.ledger, tx, doc)
				change.Restored = n
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StatusChange{}, err
	}
	s.metrics.WarehouseTransition(string(next))
	s.record(ctx, "WAREHOUSE_STATUS_UPDATE", map[string]any{
		"doc_id":   id,
		"old":      change.From,
		"new":      next,
		"restored": change.Restored,
	})
	if change.OrderShipped {
		s.record(ctx, "ORDER_STATUS_FROM_WZ", map[string]any{
			"order_id": change.Document.OrderID,
			"doc_id":   id,
			"old":      change.OrderPrevious,
			"new":      orders.StatusShipped,
		})
	}
	return change, nil
}

func (s *Service) shipOrder(ctx context.Context, tx TxRepository, doc Document, change *StatusChange) error {
	if doc.OrderID == 0 {
		return nil
	}
	order, err := tx.GetOrderForUpdate(ctx, doc.OrderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case orders.StatusShipped:
		return nil
	case orders.StatusCancelled:
		s.logger.Warn("released document of cancelled order", slog.Int64("doc_id", doc.ID), slog.Int64("order_id", order.ID))
		return nil
	}
	if err := tx.UpdateOrderStatus(ctx, order.ID, orders.StatusShipped); err != nil {
		return err
	}
	change.OrderShipped = true
	change.OrderPrevious = order.Status
	return nil
}

// RestoreStock books every line of doc back into stock with an IN movement referencing the
// document, in ascending product order. Lines without a product reference are skipped. It returns
// the number of lines restored.
func RestoreStock(ctx context.Context, ledger *stock.Ledger, tx stock.TxRepository, doc Document) (int, error) {
	items := slices.Clone(doc.Items)
	slices.SortStableFunc(items, func(a, b Item) int { return cmp.Compare(a.ProductID, b.ProductID) })
	restored := 0
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			continue
		}
		if _, err := ledger.Apply(ctx, tx, stock.MovementInput{
			ProductID: item.ProductID,
			Type:      stock.MovementIn,
			Qty:       item.Quantity,
			Reason:    CancelRestoreReason,
			DocType:   stock.DocWarehouse,
			DocID:     doc.ID,
		}); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// List returns a page of documents.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error) {
	items, total, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) record(ctx context.Context, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Resource: "warehouse_documents", Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
