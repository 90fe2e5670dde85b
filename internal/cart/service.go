package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository is the transactional method set the service needs.
type TxRepository interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	OpenCart(ctx context.Context, userID int64, now time.Time) (Cart, error)
	ListItems(ctx context.Context, cartID int64) ([]Item, error)
	SetItem(ctx context.Context, cartID, productID int64, qty int, priceNet decimal.Decimal) (int64, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID int64, qty int) error
	DeleteItem(ctx context.Context, cartID, itemID int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Placer stores an order and starts its payment.
type Placer interface {
	PlaceOrder(ctx context.Context, in orders.CreateInput) (fulfillment.Placement, error)
}

// Service manages the acting user's open cart.
type Service struct {
	repo   RepositoryPort
	placer Placer
	audit  AuditPort
	clock  shared.Clock
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, placer Placer, audit AuditPort, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, placer: placer, audit: audit, clock: clock, logger: logger}
}

func actor(ctx context.Context) (int64, error) {
	id := shared.ActorFromContext(ctx)
	if id <= 0 {
		return 0, fmt.Errorf("%w: cart requires an acting user", shared.ErrUnauthorized)
	}
	return id, nil
}

func (s *Service) load(ctx context.Context, tx TxRepository, userID int64) (Cart, error) {
	c, err := tx.OpenCart(ctx, userID, s.clock.Now())
	if err != nil {
		return Cart{}, err
	}
	if c.Items, err = tx.ListItems(ctx, c.ID); err != nil {
		return Cart{}, err
	}
	c.Price()
	return c, nil
}

// Get returns the open cart, creating an empty one when the user has none.
func (s *Service) Get(ctx context.Context) (Cart, error) {
	userID, err := actor(ctx)
	if err != nil {
		return Cart{}, err
	}
	var c Cart
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err = s.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	s.record(ctx, "CART_VIEW", map[string]any{"items": len(c.Items), "total": c.Total.StringFixed(2)})
	return c, nil
}

// Add puts qty units of a product into the cart. The merged quantity may not exceed current stock.
func (s *Service) Add(ctx context.Context, in AddInput) (Cart, error) {
	userID, err := actor(ctx)
	if err != nil {
		return Cart{}, err
	}
	if in.ProductID <= 0 || in.Qty <= 0 {
		return Cart{}, fmt.Errorf("%w: product and positive quantity required", shared.ErrValidation)
	}
	var c Cart
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if c, err = s.load(ctx, tx, userID); err != nil {
			return err
		}
		qty := c.qtyOf(product.ID) + in.Qty
		if err := checkStock(product, qty); err != nil {
			return err
		}
		if _, err := tx.SetItem(ctx, c.ID, product.ID, qty, product.SellPriceNet); err != nil {
			return err
		}
		c, err = s.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	s.record(ctx, "CART_ADD", map[string]any{
		"product_id": in.ProductID,
		"qty":        in.Qty,
		"cart_items": len(c.Items),
		"total":      c.Total.StringFixed(2),
	})
	return c, nil
}

// Update sets the quantity of one line of the open cart.
func (s *Service) Update(ctx context.Context, itemID int64, in UpdateInput) (Cart, error) {
	userID, err := actor(ctx)
	if err != nil {
		return Cart{}, err
	}
	if in.Qty <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var c Cart
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if c, err = s.load(ctx, tx, userID); err != nil {
			return err
		}
		item, ok := c.item(itemID)
		if !ok {
			return fmt.Errorf("cart: item %d: %w", itemID, shared.ErrNotFound)
		}
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if err := checkStock(product, in.Qty); err != nil {
			return err
		}
		if err := tx.UpdateItemQuantity(ctx, c.ID, itemID, in.Qty); err != nil {
			return err
		}
		c, err = s.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	s.record(ctx, "CART_UPDATE", map[string]any{"item_id": itemID, "qty": in.Qty, "total": c.Total.StringFixed(2)})
	return c, nil
}

// Remove deletes one line of the open cart.
func (s *Service) Remove(ctx context.Context, itemID int64) (Cart, error) {
	userID, err := actor(ctx)
	if err != nil {
		return Cart{}, err
	}
	var c Cart
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if c, err = s.load(ctx, tx, userID); err != nil {
			return err
		}
		if _, ok := c.item(itemID); !ok {
			return fmt.Errorf("cart: item %d: %w", itemID, shared.ErrNotFound)
		}
		if err := tx.DeleteItem(ctx, c.ID, itemID); err != nil {
			return err
		}
		c, err = s.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	s.record(ctx, "CART_DELETE", map[string]any{"item_id": itemID, "total": c.Total.StringFixed(2)})
	return c, nil
}

// Checkout places an order for the cart contents. The order is priced from the catalog at
// checkout time and the cart is closed together with the stored order.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (fulfillment.Placement, error) {
	userID, err := actor(ctx)
	if err != nil {
		return fulfillment.Placement{}, err
	}
	if s.placer == nil {
		return fulfillment.Placement{}, errors.New("cart: checkout not configured")
	}
	var c Cart
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err = s.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return fulfillment.Placement{}, err
	}
	if len(c.Items) == 0 {
		return fulfillment.Placement{}, fmt.Errorf("%w: cart is empty", shared.ErrValidation)
	}

	order := orders.CreateInput{
		BuyerName:       in.BuyerName,
		BuyerNIP:        in.BuyerNIP,
		BillingAddress:  in.BillingAddress,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		CartID:          c.ID,
	}
	for _, it := range c.Items {
		order.Items = append(order.Items, orders.ItemInput{ProductID: it.ProductID, Qty: it.Qty})
	}
	placement, err := s.placer.PlaceOrder(ctx, order)
	if placement.Order.ID != 0 {
		s.record(ctx, "CART_CHECKOUT", map[string]any{"cart_id": c.ID, "order_id": placement.Order.ID})
	}
	return placement, err
}

func checkStock(product catalog.Product, qty int) error {
	if qty > product.StockQuantity {
		return &shared.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.StockQuantity,
			Requested:   qty,
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Resource: "cart", Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
