package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/cart"
	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/stock"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// HealthCheck tests one dependency. A failing critical check turns /healthz into a 503; other
// failures only mark the service degraded.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	CatalogHandler     *catalog.Handler
	StockHandler       *stock.Handler
	InvoicingHandler   *invoicing.Handler
	OrdersHandler      *orders.Handler
	WarehouseHandler   *warehouse.Handler
	FulfillmentHandler *fulfillment.Handler
	DocumentsHandler   *documents.Handler
	CartHandler        *cart.Handler
	AuditHandler       *audit.Handler
	ReportsHandler     *reports.Handler
	JobHandler         *jobs.Handler
	HealthChecks       []HealthCheck
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.HealthChecks, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.CatalogHandler != nil {
			r.Route("/products", params.CatalogHandler.MountRoutes)
		}
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		r.Route("/invoices", func(r chi.Router) {
			if params.InvoicingHandler != nil {
				params.InvoicingHandler.MountRoutes(r)
			}
			if params.DocumentsHandler != nil {
				params.DocumentsHandler.MountInvoiceRoutes(r)
			}
		})
		r.Route("/orders", func(r chi.Router) {
			if params.OrdersHandler != nil {
				params.OrdersHandler.MountRoutes(r)
			}
			if params.FulfillmentHandler != nil {
				params.FulfillmentHandler.MountOrderRoutes(r)
			}
		})
		r.Route("/warehouse-documents", func(r chi.Router) {
			if params.WarehouseHandler != nil {
				params.WarehouseHandler.MountRoutes(r)
			}
			if params.DocumentsHandler != nil {
				params.DocumentsHandler.MountWarehouseRoutes(r)
			}
		})
		if params.DocumentsHandler != nil {
			r.Route("/documents", params.DocumentsHandler.MountRegisterRoutes)
		}
		if params.CartHandler != nil {
			r.Route("/cart", params.CartHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/logs", params.AuditHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.FulfillmentHandler != nil {
		r.Route("/payu", params.FulfillmentHandler.MountWebhookRoutes)
	}

	return r
}

func healthHandler(checks []HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			if err := c.Check(ctx); err != nil {
				results[c.Name] = err.Error()
				if logger != nil {
					logger.Warn("health check failed", slog.String("check", c.Name), slog.Any("error", err))
				}
				if c.Critical {
					status, code = "unavailable", http.StatusServiceUnavailable
				} else if code == http.StatusOK {
					status = "degraded"
				}
				continue
			}
			results[c.Name] = "ok"
		}
		httpx.JSON(w, code, map[string]any{"status": status, "checks": results})
	}
}
