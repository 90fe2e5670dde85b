package orders

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository is the transactional surface of order persistence.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrderStatus(ctx context.Context, id int64, status Status) error
	UpdateOrderPayment(ctx context.Context, id int64, payuOrderID, paymentURL string) error
	CloseCart(ctx context.Context, cartID int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages order records.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	clock  shared.Clock
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, clock: clock, logger: logger}
}

// Create validates stock under row locks, taken in ascending product id order, and stores a
// pending_payment order with net and gross totals. Stock is deducted only when the order is
// fulfilled. An order placed from a cart closes that cart; a cart that is no longer open fails
// the whole order.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	if strings.TrimSpace(in.BuyerName) == "" {
		return Order{}, fmt.Errorf("%w: buyer name required", shared.ErrValidation)
	}
	if in.PaymentMethod != PaymentPayU && in.PaymentMethod != PaymentCOD {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", shared.ErrValidation, in.PaymentMethod)
	}
	if len(in.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order has no items", shared.ErrValidation)
	}
	requested := make(map[int64]int, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Qty <= 0 {
			return Order{}, fmt.Errorf("%w: invalid order line", shared.ErrValidation)
		}
		requested[it.ProductID] += it.Qty
	}

	now := s.clock.Now()
	order := Order{
		UserID:          shared.ActorFromContext(ctx),
		Status:          StatusPendingPayment,
		PaymentMethod:   in.PaymentMethod,
		BuyerName:       strings.TrimSpace(in.BuyerName),
		BuyerNIP:        strings.TrimSpace(in.BuyerNIP),
		BillingAddress:  strings.TrimSpace(in.BillingAddress),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products := make(map[int64]catalog.Product, len(ids))
		for _, id := range ids {
			product, err := tx.GetProductForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if product.StockQuantity < requested[id] {
				return &shared.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.StockQuantity,
					Requested:   requested[id],
				}
			}
			products[id] = product
		}
		order.Items = order.Items[:0]
		net, gross := decimal.Zero, decimal.Zero
		for _, line := range in.Items {
			product := products[line.ProductID]
			item := Item{
				ProductID: product.ID,
				Qty:       line.Qty,
				UnitPrice: product.SellPriceNet,
				TaxRate:   decimal.NewNullDecimal(product.TaxRate),
			}
			net = net.Add(item.LineTotal())
			gross = gross.Add(item.LineGross())
			order.Items = append(order.Items, item)
		}
		order.TotalAmount = net
		order.TotalGross = gross
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}
		if in.CartID != 0 {
			return tx.CloseCart(ctx, in.CartID)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	meta := map[string]any{
		"order_id":    order.ID,
		"total":       order.TotalAmount.StringFixed(2),
		"total_gross": order.TotalGross.StringFixed(2),
	}
	if in.CartID != 0 {
		meta["cart_id"] = in.CartID
	}
	s.record(ctx, "ORDER_CREATE", meta)
	return order, nil
}

// AttachPayment stores the gateway reference of an order.
func (s *Service) AttachPayment(ctx context.Context, id int64, payuOrderID, paymentURL string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderPayment(ctx, id, payuOrderID, paymentURL)
	})
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	items, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) record(ctx context.Context, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Resource: "orders", Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
