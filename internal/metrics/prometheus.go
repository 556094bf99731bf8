// Package metrics provides Prometheus metrics for the mediation host
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name when no namespace is given
const DefaultNamespace = "mediation"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Ad event metrics
	AdEvents        *prometheus.CounterVec
	PrepareRequests *prometheus.CounterVec
	BackoffSkips    *prometheus.CounterVec

	// Event queue metrics
	EventsFlushed *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec
	TickDuration  prometheus.Histogram
	PendingEvents *prometheus.GaugeVec

	// Auth metrics
	AuthFailures prometheus.Counter

	// Adapter metrics
	AdapterEnabled *prometheus.GaugeVec
	ConsentSignals *prometheus.CounterVec

	// Revenue metrics
	Impressions       *prometheus.CounterVec
	ImpressionRevenue *prometheus.CounterVec
}

// NewMetrics creates metrics registered with the default registry
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics registered with reg
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		// Request metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		// Ad event metrics
		AdEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_events_total",
				Help:      "Ad events delivered to subscribers",
			},
			[]string{"network", "ad_type", "event"},
		),
		PrepareRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prepare_requests_total",
				Help:      "Load requests sent to vendor SDKs",
			},
			[]string{"network", "ad_type"},
		),
		BackoffSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backoff_skips_total",
				Help:      "Prepare requests suppressed by an active load-failure cooldown",
			},
			[]string{"network", "ad_type"},
		),

		// Event queue metrics
		EventsFlushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_flushed_total",
				Help:      "Queued events delivered by adapter flushes",
			},
			[]string{"network"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_duration_seconds",
				Help:      "Time spent delivering one adapter's queued events",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"network"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Time spent ticking every adapter once",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .016, .05},
			},
		),

		PendingEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_events",
				Help:      "Events queued by an adapter at the start of a tick",
			},
			[]string{"network"},
		),

		// Auth metrics
		AuthFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Admin API requests rejected for a missing or invalid API key",
			},
		),

		// Adapter metrics
		AdapterEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "adapter_enabled",
				Help:      "Whether a network adapter is enabled (1) or inert (0)",
			},
			[]string{"network"},
		),
		ConsentSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consent_signals_total",
				Help:      "Personalized-ads consent changes broadcast to adapters",
			},
			[]string{"consent"},
		),

		// Revenue metrics
		Impressions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "impressions_total",
				Help:      "Impressions reported by vendor SDKs",
			},
			[]string{"network", "ad_unit"},
		),
		ImpressionRevenue: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "impression_revenue_total",
				Help:      "Impression-level revenue reported by vendor SDKs (USD)",
			},
			[]string{"network", "ad_unit"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.AdEvents,
		m.PrepareRequests,
		m.BackoffSkips,
		m.EventsFlushed,
		m.FlushDuration,
		m.TickDuration,
		m.PendingEvents,
		m.AuthFailures,
		m.AdapterEnabled,
		m.ConsentSignals,
		m.Impressions,
		m.ImpressionRevenue,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving the metrics of g
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware that records request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordAdEvent counts a delivered ad event.
// Implements mediation.Recorder.
func (m *Metrics) RecordAdEvent(network, adType, event string) {
	m.AdEvents.WithLabelValues(network, adType, event).Inc()
}

// RecordFlush records one adapter flush
func (m *Metrics) RecordFlush(network string, delivered int, duration time.Duration) {
	m.EventsFlushed.WithLabelValues(network).Add(float64(delivered))
	m.FlushDuration.WithLabelValues(network).Observe(duration.Seconds())
}

// RecordPrepare counts a vendor load request
func (m *Metrics) RecordPrepare(network, adType string) {
	m.PrepareRequests.WithLabelValues(network, adType).Inc()
}

// RecordBackoffSkip counts a prepare suppressed by the cooldown
func (m *Metrics) RecordBackoffSkip(network, adType string) {
	m.BackoffSkips.WithLabelValues(network, adType).Inc()
}

// RecordTick records the duration of one host tick
func (m *Metrics) RecordTick(duration time.Duration) {
	m.TickDuration.Observe(duration.Seconds())
}

// SetPendingEvents records an adapter's event queue depth
func (m *Metrics) SetPendingEvents(network string, n int) {
	m.PendingEvents.WithLabelValues(network).Set(float64(n))
}

// SetAdapterEnabled records whether a network adapter is enabled
func (m *Metrics) SetAdapterEnabled(network string, enabled bool) {
	var value float64
	if enabled {
		value = 1
	}
	m.AdapterEnabled.WithLabelValues(network).Set(value)
}

// RecordConsentSignal records a consent broadcast
func (m *Metrics) RecordConsentSignal(personalized bool) {
	consent := "no"
	if personalized {
		consent = "yes"
	}
	m.ConsentSignals.WithLabelValues(consent).Inc()
}

// IncAuthFailures counts a rejected admin request.
// Implements middleware.AuthMetrics.
func (m *Metrics) IncAuthFailures() {
	m.AuthFailures.Inc()
}

// RecordImpression records an impression and its revenue.
// Implements ironsource.ImpressionRecorder.
func (m *Metrics) RecordImpression(network, adUnit string, revenue float64) {
	m.Impressions.WithLabelValues(network, adUnit).Inc()
	if revenue > 0 {
		m.ImpressionRevenue.WithLabelValues(network, adUnit).Add(revenue)
	}
}
