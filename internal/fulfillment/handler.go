package fulfillment

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const maxNotificationBytes = 1 << 20

// Handler exposes order placement, fulfillment and the PayU webhook.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountOrderRoutes registers order write routes.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.Post("/", h.placeOrder)
	r.Patch("/{id}/status", h.updateStatus)
	r.Post("/{id}/fulfill", h.fulfill)
}

// MountWebhookRoutes registers the PayU notification endpoint.
func (h *Handler) MountWebhookRoutes(r chi.Router) {
	r.Post("/notify", h.notify)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	placement, err := h.service.PlaceOrder(r.Context(), in)
	if err != nil {
		if placement.Order.ID != 0 && errors.Is(err, shared.ErrGatewayUnavailable) {
			h.logger.Warn("order stored, payment not started", slog.Int64("order_id", placement.Order.ID), slog.Any("error", err))
			w.Header().Set("Retry-After", "30")
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]any{
				"order": placement.Order,
				"error": "payment gateway unavailable",
			})
			return
		}
		h.logger.Warn("place order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, placement)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateOrderStatus(r.Context(), id, orders.Status(in.Status))
	if err != nil {
		h.logger.Warn("order status change rejected", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Fulfill(r.Context(), id)
	if errors.Is(err, shared.ErrDuplicateFulfillment) {
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "already_fulfilled", "order_id": id})
		return
	}
	if err != nil {
		h.logger.Error("fulfill order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	ack, err := h.service.HandlePayUNotification(r.Context(), r.Header.Get(SignatureHeader), body)
	if ack != nil {
		if err != nil {
			h.logger.Warn("payu notification acknowledged with error", slog.String("message", ack.Message), slog.Any("error", err))
		}
		httpx.JSON(w, http.StatusOK, ack)
		return
	}
	if shared.IsRetryable(err) {
		w.Header().Set("Retry-After", strconv.Itoa(30))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "fulfillment scheduled for retry")
		return
	}
	httpx.RespondError(w, err)
}
