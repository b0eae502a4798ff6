package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the back-office.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ordersPlaced    prometheus.Counter
	transitions     *prometheus.CounterVec
	shortfalls      *prometheus.CounterVec
	lowStock        prometheus.Gauge
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_orders_placed_total",
		Help: "Orders committed.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_order_transitions_total",
		Help: "Order status transitions by resulting status.",
	}, []string{"status"})
	shortfalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_stock_shortfalls_total",
		Help: "Orders refused for insufficient stock, by the phase that caught it.",
	}, []string{"phase"})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backoffice_inventory_low_stock_items",
		Help: "Stock items below the low-stock threshold at the last scan.",
	})
	registry.MustRegister(requests, duration, placed, transitions, shortfalls, lowStock)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ordersPlaced:    placed,
		transitions:     transitions,
		shortfalls:      shortfalls,
		lowStock:        lowStock,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
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

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// OrderPlaced counts a committed order.
func (m *Metrics) OrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// OrderTransitioned counts a status change.
func (m *Metrics) OrderTransitioned(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// StockShortfall counts a refused order. phase is "validate" for the
// pre-check and "commit" for the locked check.
func (m *Metrics) StockShortfall(phase string) {
	if m == nil {
		return
	}
	m.shortfalls.WithLabelValues(phase).Inc()
}

// SetLowStockItems records the result of a low-stock scan.
func (m *Metrics) SetLowStockItems(n int) {
	if m == nil {
		return
	}
	m.lowStock.Set(float64(n))
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
