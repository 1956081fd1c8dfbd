package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atlas-auth/internal/event"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	inFlight        prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		authEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_auth_events_total",
				Help: "Authentication, tenant and RBAC events by type.",
			},
			[]string{"type"},
		),
	}

	m.registry.MustRegister(
		m.inFlight,
		m.requestsTotal,
		m.requestDuration,
		m.authEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records in-flight count, totals and latency. The route label is
// the chi pattern, so path parameters do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// Consume counts every event from the bus and writes an audit line for it
// until ctx is cancelled or the subscription closes.
func (m *Metrics) Consume(ctx context.Context, bus event.Bus, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.Observe(e)
			logger.Info("audit",
				"event_id", e.ID,
				"type", string(e.Type),
				"tenant", e.Tenant,
				"actor_id", e.ActorID,
				"at", e.Timestamp,
			)
		}
	}
}

func (m *Metrics) Observe(e event.Event) {
	m.authEvents.WithLabelValues(string(e.Type)).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
