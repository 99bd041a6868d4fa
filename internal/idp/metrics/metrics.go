// Package metrics defines the Prometheus collectors of the identity provider.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	AuditEvents  *prometheus.CounterVec
	TokensIssued *prometheus.CounterVec
	Lockouts     prometheus.Counter
	MFAResults   *prometheus.CounterVec
}

// New registers every collector on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_audit_events_total",
			Help: "Audit events by type.",
		}, []string{"type"}),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_tokens_issued_total",
			Help: "Token responses by grant type.",
		}, []string{"grant_type"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_lockouts_total",
			Help: "Subject/IP pairs locked out.",
		}),
		MFAResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_mfa_verifications_total",
			Help: "MFA verifications by factor and result.",
		}, []string{"factor", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.AuditEvents, m.TokensIssued, m.Lockouts, m.MFAResults,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records request count, latency and in-flight requests. The
// path label is the matched ServeMux pattern to bound cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
