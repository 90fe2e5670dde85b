package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP layer and the ledger core.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stockMovements  *prometheus.CounterVec
	fulfillments    *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	invoices        *prometheus.CounterVec
	docTransitions  *prometheus.CounterVec
}

// NewMetrics initialises the registry and all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_stock_movements_total",
		Help: "Committed stock movements by type.",
	}, []string{"type"})
	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_fulfillments_total",
		Help: "Order fulfillment attempts by result (fulfilled, duplicate, failed).",
	}, []string{"result"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_fulfillment_alerts_total",
		Help: "Paid orders that could not be fulfilled and need manual handling, by reason.",
	}, []string{"reason"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_invoices_total",
		Help: "Issued invoices by kind (invoice, correction).",
	}, []string{"kind"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_warehouse_transitions_total",
		Help: "Warehouse document status changes by target status.",
	}, []string{"status"})
	registry.MustRegister(requests, duration, movements, fulfillments, alerts, invoices, transitions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		stockMovements:  movements,
		fulfillments:    fulfillments,
		alerts:          alerts,
		invoices:        invoices,
		docTransitions:  transitions,
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// StockMovement counts a committed movement.
func (m *Metrics) StockMovement(movementType string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(movementType).Inc()
}

// Fulfillment counts a fulfillment outcome.
func (m *Metrics) Fulfillment(result string) {
	if m == nil {
		return
	}
	m.fulfillments.WithLabelValues(result).Inc()
}

// FulfillmentAlert counts a paid order left for manual fulfillment.
func (m *Metrics) FulfillmentAlert(reason string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(reason).Inc()
}

// InvoiceIssued counts an issued invoice.
func (m *Metrics) InvoiceIssued(kind string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(kind).Inc()
}

// WarehouseTransition counts a warehouse document status change.
func (m *Metrics) WarehouseTransition(status string) {
	if m == nil {
		return
	}
	m.docTransitions.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
