package documents

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
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

// Handler serves document downloads and the combined register.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	register *Register
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service, register *Register) *Handler {
	return &Handler{logger: logger, service: service, register: register}
}

// MountInvoiceRoutes registers the invoice PDF route under an invoices router.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.Get("/{id}/pdf", h.invoicePDF)
}

// MountWarehouseRoutes registers the goods-issue note PDF route under a warehouse documents router.
func (h *Handler) MountWarehouseRoutes(r chi.Router) {
	r.Get("/{id}/pdf", h.warehousePDF)
}

// MountRegisterRoutes registers the combined document listing.
func (h *Handler) MountRegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) invoicePDF(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.service.InvoicePDF(r.Context(), id)
	if err != nil {
		h.logger.Error("render invoice pdf", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	writePDF(w, "faktura-"+strconv.FormatInt(id, 10)+".pdf", pdf)
}

func (h *Handler) warehousePDF(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.service.WarehousePDF(r.Context(), id)
	if err != nil {
		h.logger.Error("render warehouse pdf", slog.Int64("doc_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	writePDF(w, WarehouseNumber(id)+".pdf", pdf)
}

func writePDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Kind:    strings.ToLower(strings.TrimSpace(q.Get("type"))),
		Buyer:   strings.TrimSpace(q.Get("buyer")),
		Status:  warehouse.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		SortBy:  q.Get("sort_by"),
		Desc:    !strings.EqualFold(q.Get("order"), "asc"),
		Page:    httpx.IntQuery(r, "page", 1),
		PerPage: httpx.IntQuery(r, "page_size", 10),
	}
	for key, dst := range map[string]*time.Time{"date_from": &filter.From, "date_to": &filter.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: bad datetime %q", shared.ErrValidation, raw))
			return
		}
		*dst = t
	}
	entries, page, err := h.register.List(r.Context(), filter)
	if err != nil {
		h.logger.Warn("list documents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries, "pagination": page})
}
