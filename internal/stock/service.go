package stock

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates manual stock operations.
type Service struct {
	repo    RepositoryPort
	ledger  *Ledger
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, metrics: metrics, logger: logger}
}

// Adjust applies a manual ADJUSTMENT (signed) or LOSS (magnitude) movement.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (Movement, error) {
	if in.ProductID <= 0 {
		return Movement{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	movementType := MovementAdjustment
	if in.Type != "" {
		t, err := ParseMovementType(in.Type)
		if err != nil {
			return Movement{}, err
		}
		if t != MovementAdjustment && t != MovementLoss {
			return Movement{}, fmt.Errorf("%w: adjustments accept ADJUSTMENT or LOSS, got %s", shared.ErrValidation, t)
		}
		movementType = t
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Movement{}, fmt.Errorf("%w: reason required", shared.ErrValidation)
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.ledger.Apply(ctx, tx, MovementInput{
			ProductID: in.ProductID,
			Type:      movementType,
			Qty:       in.Qty,
			Reason:    in.Reason,
			Supplier:  in.Supplier,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.metrics.StockMovement(string(movement.Type))
	s.record(ctx, "STOCK_ADJUSTMENT", map[string]any{
		"id":         movement.ID,
		"product_id": movement.ProductID,
		"qty":        movement.Qty,
		"type":       movement.Type,
	})
	return movement, nil
}

// ReceiveDelivery books IN movements for every positive line in one transaction, locking
// products in ascending id order. Lines with a non-positive quantity or an unknown product are
// skipped.
func (s *Service) ReceiveDelivery(ctx context.Context, in DeliveryInput) (DeliveryResult, error) {
	if len(in.Items) == 0 {
		return DeliveryResult{}, fmt.Errorf("%w: delivery has no items", shared.ErrValidation)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = DefaultDeliveryReason
	}

	lines := slices.Clone(in.Items)
	slices.SortStableFunc(lines, func(a, b DeliveryLine) int { return cmp.Compare(a.ProductID, b.ProductID) })

	var result DeliveryResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = DeliveryResult{}
		for _, line := range lines {
			if line.Quantity <= 0 {
				result.Skipped++
				continue
			}
			movement, err := s.ledger.Apply(ctx, tx, MovementInput{
				ProductID: line.ProductID,
				Type:      MovementIn,
				Qty:       line.Quantity,
				Reason:    reason,
				Supplier:  in.Supplier,
			})
			if errors.Is(err, shared.ErrNotFound) {
				s.logger.Warn("delivery line skipped, product missing", slog.Int64("product_id", line.ProductID))
				result.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			result.Accepted++
			result.Movements = append(result.Movements, movement)
		}
		return nil
	})
	if err != nil {
		return DeliveryResult{}, err
	}
	for range result.Movements {
		s.metrics.StockMovement(string(MovementIn))
	}
	s.record(ctx, "STOCK_DELIVERY", map[string]any{"count": result.Accepted, "supplier": in.Supplier})
	return result, nil
}

// ListMovements returns a page of movements, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if filter.Type != "" {
		t, err := ParseMovementType(string(filter.Type))
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		filter.Type = t
	}
	items, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range items {
		items[i].Type = NormalizeType(string(items[i].Type))
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) record(ctx context.Context, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Resource: "stock", Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
