package fulfillment

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/payu"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

// TxRepository spans every table touched by a fulfillment.
type TxRepository interface {
	invoicing.TxRepository
	GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error)
	UpdateProductStock(ctx context.Context, id int64, qty int) error
	InsertMovement(ctx context.Context, m stock.Movement) (int64, error)
	RestoredByDocument(ctx context.Context, docType string, docID int64) (map[int64]int, error)
	GetOrderForUpdate(ctx context.Context, id int64) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status orders.Status) error
	GetInvoiceByOrder(ctx context.Context, orderID int64) (invoicing.Invoice, error)
	UpdateInvoicePaymentStatus(ctx context.Context, id int64, status invoicing.PaymentStatus) error
	InsertDocument(ctx context.Context, d *warehouse.Document) error
	GetDocumentByInvoice(ctx context.Context, invoiceID int64) (warehouse.Document, error)
	GetDocumentForUpdate(ctx context.Context, id int64) (warehouse.Document, error)
	UpdateDocumentStatus(ctx context.Context, id int64, status warehouse.Status) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PaymentGateway registers online payments.
type PaymentGateway interface {
	RegisterOrder(ctx context.Context, req payu.OrderRequest) (payu.OrderResponse, error)
}

// RetryQueue schedules fulfillments that failed after the payment was captured.
type RetryQueue interface {
	EnqueueFulfillmentRetry(ctx context.Context, orderID int64) error
}

// RenderQueue schedules PDF pre-rendering for freshly issued documents.
type RenderQueue interface {
	EnqueueDocumentRender(ctx context.Context, invoiceID, documentID int64) error
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo     RepositoryPort
	Orders   *orders.Service
	Ledger   *stock.Ledger
	Builder  *invoicing.Builder
	Gateway  PaymentGateway
	Verifier WebhookVerifier
	Queue    RetryQueue
	Renders  RenderQueue
	Audit    AuditPort
	Metrics  *observability.Metrics
	Clock    shared.Clock
	Logger   *slog.Logger
}

// Service turns paid orders into stock movements, an invoice and a goods-issue note.
type Service struct {
	repo     RepositoryPort
	orders   *orders.Service
	ledger   *stock.Ledger
	builder  *invoicing.Builder
	gateway  PaymentGateway
	verifier WebhookVerifier
	queue    RetryQueue
	renders  RenderQueue
	audit    AuditPort
	metrics  *observability.Metrics
	clock    shared.Clock
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = shared.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		repo:     d.Repo,
		orders:   d.Orders,
		ledger:   d.Ledger,
		builder:  d.Builder,
		gateway:  d.Gateway,
		verifier: d.Verifier,
		queue:    d.Queue,
		renders:  d.Renders,
		audit:    d.Audit,
		metrics:  d.Metrics,
		clock:    d.Clock,
		logger:   d.Logger,
	}
}

// Fulfill deducts stock, issues a PAID invoice and a NEW goods-issue note for a pending_payment
// order, all in one transaction. Products are locked in ascending id order. The invoice uses the
// prices and VAT rates captured on the order. A second call for the same order fails with
// shared.ErrDuplicateFulfillment and changes nothing.
func (s *Service) Fulfill(ctx context.Context, orderID int64) (Result, error) {
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != orders.StatusPendingPayment {
			return fmt.Errorf("fulfillment: order %d is %s: %w", order.ID, order.Status, shared.ErrDuplicateFulfillment)
		}
		if len(order.Items) == 0 {
			return fmt.Errorf("%w: order %d has no items", shared.ErrValidation, order.ID)
		}

		for _, item := range byProduct(order.Items) {
			if _, err := s.ledger.Apply(ctx, tx, stock.MovementInput{
				ProductID: item.ProductID,
				Type:      stock.MovementOut,
				Qty:       item.Qty,
				Reason:    "Zamówienie #" + strconv.FormatInt(order.ID, 10),
				DocType:   stock.DocOrder,
				DocID:     order.ID,
			}); err != nil {
				return err
			}
		}

		lines := make([]invoicing.LineRequest, 0, len(order.Items))
		docItems := make([]warehouse.Item, 0, len(order.Items))
		for _, item := range order.Items {
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			lines = append(lines, invoicing.LineRequest{
				ProductID: item.ProductID,
				Quantity:  item.Qty,
				PriceNet:  decimal.NewNullDecimal(item.UnitPrice),
				TaxRate:   item.TaxRate,
			})
			docItems = append(docItems, warehouse.ItemFromProduct(product, item.Qty))
		}

		inv, err := s.builder.Issue(ctx, tx, invoicing.Draft{
			Buyer:         buyerOf(order),
			Lines:         lines,
			ActorID:       shared.ActorFromContext(ctx),
			UserID:        order.UserID,
			OrderID:       order.ID,
			PaymentStatus: invoicing.PaymentPaid,
		})
		if err != nil {
			return err
		}

		doc := warehouse.Document{
			InvoiceID:       inv.ID,
			OrderID:         order.ID,
			BuyerName:       inv.BuyerName,
			ShippingAddress: inv.ShippingAddress,
			InvoiceDate:     inv.CreatedAt,
			Items:           docItems,
			Status:          warehouse.StatusNew,
			CreatedAt:       s.clock.Now(),
		}
		if err := tx.InsertDocument(ctx, &doc); err != nil {
			return fmt.Errorf("fulfillment: insert warehouse document: %w", err)
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, orders.StatusProcessing); err != nil {
			return err
		}
		order.Status = orders.StatusProcessing
		res = Result{Order: order, Invoice: inv, Document: doc}
		return nil
	})
	switch {
	case errors.Is(err, shared.ErrDuplicateFulfillment):
		s.metrics.Fulfillment(ResultDuplicate)
		s.logger.Info("fulfillment skipped", slog.Int64("order_id", orderID), slog.String("result", ResultDuplicate))
		return Result{}, err
	case err != nil:
		s.metrics.Fulfillment(ResultFailed)
		return Result{}, err
	}
	s.metrics.Fulfillment(ResultFulfilled)
	s.metrics.InvoiceIssued("invoice")
	s.logger.Info("order fulfilled", slog.Int64("order_id", orderID), slog.String("result", ResultFulfilled),
		slog.Int64("invoice_id", res.Invoice.ID), slog.Int64("doc_id", res.Document.ID))
	s.record(ctx, "ORDER_FULFILL", "orders", map[string]any{
		"order_id":    orderID,
		"invoice_id":  res.Invoice.ID,
		"number":      res.Invoice.FullNumber,
		"doc_id":      res.Document.ID,
		"total_gross": res.Invoice.TotalGross.StringFixed(2),
	})
	if s.renders != nil {
		if err := s.renders.EnqueueDocumentRender(ctx, res.Invoice.ID, res.Document.ID); err != nil {
			s.logger.Warn("enqueue document render", slog.Int64("order_id", orderID), slog.Any("error", err))
		}
	}
	return res, nil
}

// byProduct returns items sorted by product id so concurrent transactions lock products in the
// same order.
func byProduct(items []orders.Item) []orders.Item {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b orders.Item) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out
}

func buyerOf(order orders.Order) invoicing.Buyer {
	name := order.BuyerName
	if name == "" {
		name = "Zamówienie #" + strconv.FormatInt(order.ID, 10)
	}
	return invoicing.Buyer{
		Name:            name,
		NIP:             order.BuyerNIP,
		Address:         order.BillingAddress,
		ShippingAddress: order.ShippingAddress,
	}
}

// PlaceOrder stores a new order and starts its payment. Cash-on-delivery orders are fulfilled at
// once; PayU orders are registered with the gateway. A gateway failure leaves the order stored and
// returns it together with an error wrapping shared.ErrGatewayUnavailable.
func (s *Service) PlaceOrder(ctx context.Context, in orders.CreateInput) (Placement, error) {
	order, err := s.orders.Create(ctx, in)
	if err != nil {
		return Placement{}, err
	}
	placement := Placement{Order: order}

	switch order.PaymentMethod {
	case orders.PaymentCOD:
		res, err := s.Fulfill(ctx, order.ID)
		if err != nil {
			return placement, err
		}
		placement.Order = res.Order
		placement.Invoice = &res.Invoice
		placement.Document = &res.Document
		return placement, nil
	case orders.PaymentPayU:
		if s.gateway == nil {
			return placement, fmt.Errorf("fulfillment: order %d: %w: payment gateway not configured", order.ID, shared.ErrGatewayUnavailable)
		}
		resp, err := s.gateway.RegisterOrder(ctx, paymentRequest(ctx, order, s.clock))
		if err != nil {
			if !errors.Is(err, shared.ErrGatewayUnavailable) {
				err = fmt.Errorf("%w: %w", shared.ErrGatewayUnavailable, err)
			}
			s.logger.Error("payment registration failed", slog.Int64("order_id", order.ID), slog.Any("error", err))
			return placement, fmt.Errorf("fulfillment: register payment for order %d: %w", order.ID, err)
		}
		if err := s.orders.AttachPayment(ctx, order.ID, resp.OrderID, resp.RedirectURI); err != nil {
			return placement, err
		}
		placement.Order.PayUOrderID = resp.OrderID
		placement.Order.PaymentURL = resp.RedirectURI
		placement.PaymentURL = resp.RedirectURI
		return placement, nil
	}
	return placement, nil
}

// paymentRequest charges the gross order total, the amount the PAID invoice will carry.
func paymentRequest(ctx context.Context, order orders.Order, clock shared.Clock) payu.OrderRequest {
	req := payu.OrderRequest{
		ExtOrderID:  orders.ExtOrderID(order.ID, clock.Now()),
		Description: "Zamówienie #" + strconv.FormatInt(order.ID, 10),
		CustomerIP:  shared.RequestInfoFromContext(ctx).IP,
		TotalAmount: order.TotalGross,
		BuyerName:   order.BuyerName,
	}
	if req.TotalAmount.IsZero() {
		req.TotalAmount = order.TotalAmount
	}
	for _, item := range order.Items {
		req.Products = append(req.Products, payu.Product{
			Name:      "Produkt #" + strconv.FormatInt(item.ProductID, 10),
			UnitPrice: item.UnitGross(),
			Quantity:  item.Qty,
		})
	}
	return req
}

// UpdateOrderStatus applies a manual status change. Cancelling a fulfilled order books its items
// back into stock, cancels the invoice and cancels an active goods-issue note.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, next orders.Status) (orders.Order, error) {
	if !next.Valid() {
		return orders.Order{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, next)
	}
	var (
		order    orders.Order
		previous orders.Status
		restored int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if !orders.CanTransition(order.Status, next) {
			return fmt.Errorf("orders: %s -> %s: %w", order.Status, next, shared.ErrInvalidTransition)
		}
		if next == orders.StatusCancelled {
			restored, err = s.unwind(ctx, tx, order)
			if err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, next); err != nil {
			return err
		}
		order.Status = next
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.record(ctx, "ORDER_STATUS", "orders", map[string]any{
		"order_id":   orderID,
		"old_status": previous,
		"new_status": next,
		"restored":   restored,
	})
	return order, nil
}

// unwind reverses a fulfillment. Orders without an invoice were never deducted. Quantities a
// cancelled goods-issue note already booked back into stock are not restored a second time.
func (s *Service) unwind(ctx context.Context, tx TxRepository, order orders.Order) (int, error) {
	inv, err := tx.GetInvoiceByOrder(ctx, order.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	doc, hasDoc, err := s.lockDocument(ctx, tx, inv.ID)
	if err != nil {
		return 0, err
	}
	already := map[int64]int{}
	if hasDoc && doc.Status == warehouse.StatusCancelled {
		if already, err = tx.RestoredByDocument(ctx, stock.DocWarehouse, doc.ID); err != nil {
			return 0, err
		}
	}

	restored := 0
	for _, item := range byProduct(order.Items) {
		qty := item.Qty
		if done := min(already[item.ProductID], qty); done > 0 {
			already[item.ProductID] -= done
			qty -= done
		}
		if qty == 0 {
			continue
		}
		if _, err := s.ledger.Apply(ctx, tx, stock.MovementInput{
			ProductID: item.ProductID,
			Type:      stock.MovementIn,
			Qty:       qty,
			Reason:    "Anulowanie zamówienia #" + strconv.FormatInt(order.ID, 10),
			DocType:   stock.DocOrder,
			DocID:     order.ID,
		}); err != nil {
			return restored, err
		}
		restored++
	}
	if err := tx.UpdateInvoicePaymentStatus(ctx, inv.ID, invoicing.PaymentCancelled); err != nil {
		return restored, err
	}
	if hasDoc && warehouse.CanTransition(doc.Status, warehouse.StatusCancelled) {
		if err := tx.UpdateDocumentStatus(ctx, doc.ID, warehouse.StatusCancelled); err != nil {
			return restored, err
		}
	}
	return restored, nil
}

func (s *Service) lockDocument(ctx context.Context, tx TxRepository, invoiceID int64) (warehouse.Document, bool, error) {
	doc, err := tx.GetDocumentByInvoice(ctx, invoiceID)
	if errors.Is(err, shared.ErrNotFound) {
		return warehouse.Document{}, false, nil
	}
	if err != nil {
		return warehouse.Document{}, false, err
	}
	doc, err = tx.GetDocumentForUpdate(ctx, doc.ID)
	if err != nil {
		return warehouse.Document{}, false, err
	}
	return doc, true, nil
}

// HandlePayUNotification verifies and processes a PayU order notification. A non-nil Ack means the
// notification must be answered with 200; otherwise err carries the failure.
func (s *Service) HandlePayUNotification(ctx context.Context, signature string, body []byte) (*Ack, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("%w: webhook verifier not configured", shared.ErrUnauthorized)
	}
	if err := s.verifier.Verify(signature, body); err != nil {
		s.logger.Warn("payu signature rejected", slog.Any("error", err))
		return nil, err
	}
	n, err := ParseNotification(body)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed notification: %v", shared.ErrValidation, err)
	}
	if n.Order.Status != payuCompleted {
		return &Ack{Status: "ok", Message: "ignored " + n.Order.Status}, nil
	}
	orderID, err := orders.ParseExtOrderID(n.Order.ExtOrderID)
	if err != nil {
		s.logger.Warn("payu notification without usable extOrderId", slog.String("ext_order_id", n.Order.ExtOrderID))
		return &Ack{Status: "error", Message: "invalid extOrderId"}, err
	}

	_, err = s.Fulfill(ctx, orderID)
	switch {
	case err == nil:
		s.record(ctx, "PAYU_NOTIFY", "orders", map[string]any{"order_id": orderID, "payu_status": n.Order.Status, "payu_order_id": n.Order.OrderID})
		return &Ack{Status: "ok", OrderID: orderID}, nil
	case errors.Is(err, shared.ErrDuplicateFulfillment):
		return &Ack{Status: "ok", Message: "already processed", OrderID: orderID}, nil
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Warn("payu notification for unknown order", slog.Int64("order_id", orderID))
		return &Ack{Status: "error", Message: "order not found", OrderID: orderID}, err
	}

	s.logger.Error("fulfillment failed after payment", slog.Int64("order_id", orderID), slog.Any("error", err))
	s.record(ctx, "PAYU_NOTIFY", "orders", map[string]any{"order_id": orderID, "payu_status": n.Order.Status, "error": err.Error()}, shared.AuditFailure)
	switch {
	case db.Transient(err):
		if s.queue == nil {
			break
		}
		if qerr := s.queue.EnqueueFulfillmentRetry(ctx, orderID); qerr != nil {
			s.logger.Error("enqueue fulfillment retry", slog.Int64("order_id", orderID), slog.Any("error", qerr))
		}
	case errors.Is(err, shared.ErrInsufficientStock):
		s.alert(ctx, orderID, AlertShortage, err)
	default:
		s.alert(ctx, orderID, AlertFailed, err)
	}
	return nil, err
}

// alert flags a paid order that could not be fulfilled and will not be retried automatically.
func (s *Service) alert(ctx context.Context, orderID int64, reason string, err error) {
	s.metrics.FulfillmentAlert(reason)
	s.logger.Error("paid order needs manual fulfillment", slog.Int64("order_id", orderID),
		slog.String("alert", reason), slog.Any("error", err))
	meta := map[string]any{"order_id": orderID, "reason": reason, "error": err.Error()}
	var shortage *shared.InsufficientStockError
	if errors.As(err, &shortage) {
		meta["product_id"] = shortage.ProductID
		meta["available"] = shortage.Available
		meta["requested"] = shortage.Requested
	}
	s.record(ctx, "FULFILLMENT_ALERT", "orders", meta, shared.AuditFailure)
}

// RetryFulfillment re-runs a fulfillment scheduled after a failed webhook. An already fulfilled
// order counts as done.
func (s *Service) RetryFulfillment(ctx context.Context, orderID int64) error {
	_, err := s.Fulfill(ctx, orderID)
	if errors.Is(err, shared.ErrDuplicateFulfillment) {
		return nil
	}
	return err
}

func (s *Service) record(ctx context.Context, action, resource string, meta map[string]any, status ...string) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{Action: action, Resource: resource, Meta: meta}
	if len(status) > 0 {
		entry.Status = status[0]
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
