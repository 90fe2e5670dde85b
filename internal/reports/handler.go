package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes the report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/low-stock", h.lowStock)
	r.Get("/sales-summary", h.salesSummary)
	r.Post("/refresh", h.refresh)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := LowStockFilter{
		Threshold: DefaultThreshold,
		Search:    strings.TrimSpace(q.Get("q")),
		Page:      httpx.IntQuery(r, "page", 1),
		PageSize:  httpx.IntQuery(r, "page_size", 10),
	}
	if raw := strings.TrimSpace(q.Get("threshold")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid threshold", shared.ErrValidation))
			return
		}
		filter.Threshold = v
	}
	page, err := h.service.LowStock(r.Context(), filter)
	if err != nil {
		h.logger.Warn("low-stock report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) salesSummary(w http.ResponseWriter, r *http.Request) {
	from, err := parseBound(r.URL.Query().Get("date_from"), false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := parseBound(r.URL.Query().Get("date_to"), true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.SalesSummary(r.Context(), from, to)
	if err != nil {
		h.logger.Warn("sales summary report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.logger.Error("refresh report cache", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var boundLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// parseBound accepts a date or a timestamp. A bare date used as an upper bound covers the whole
// day; timestamps without a zone are read as UTC.
func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if day, err := time.Parse(dateLayout, raw); err == nil {
		if upper {
			return day.Add(24*time.Hour - time.Second), nil
		}
		return day, nil
	}
	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad datetime format: %s", shared.ErrValidation, raw)
}
