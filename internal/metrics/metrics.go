// Package metrics exposes Prometheus metrics for the signup pipeline.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the launch site.
type Metrics struct {
	// Signup pipeline counters
	SignupRequestsTotal    *prometheus.CounterVec // outcome: subscribed, unconfigured, rate_limited, malformed, invalid, timeout, upstream_error
	SignupDurationSeconds  prometheus.Histogram
	RateLimitExceededTotal prometheus.Counter

	// Provider call counters
	ProviderRequestsTotal *prometheus.CounterVec // provider, operation, result

	// HTTP metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry  *prometheus.Registry
	startTime time.Time
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SignupRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchsite_signup_requests_total",
				Help: "Total number of signup requests by outcome",
			},
			[]string{"outcome"},
		),
		SignupDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "launchsite_signup_duration_seconds",
				Help:    "End-to-end signup request processing time",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		RateLimitExceededTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "launchsite_rate_limit_exceeded_total",
				Help: "Total number of signup requests rejected by the rate limiter",
			},
		),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchsite_provider_requests_total",
				Help: "Total number of provider operations by result",
			},
			[]string{"provider", "operation", "result"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchsite_api_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "launchsite_api_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchsite_api_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "launchsite_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "launchsite_goroutines",
				Help: "Number of goroutines",
			},
		),
		registry:  reg,
		startTime: time.Now(),
	}

	reg.MustRegister(
		m.SignupRequestsTotal,
		m.SignupDurationSeconds,
		m.RateLimitExceededTotal,
		m.ProviderRequestsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the metrics registry for the scrape handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackSignup records one signup request outcome.
func (m *Metrics) TrackSignup(outcome string, duration time.Duration) {
	m.SignupRequestsTotal.WithLabelValues(outcome).Inc()
	m.SignupDurationSeconds.Observe(duration.Seconds())
}

// TrackProviderCall records one provider operation.
func (m *Metrics) TrackProviderCall(provider, operation string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, result).Inc()
}

// UpdateSystemMetrics refreshes the gauges; called from the scrape server.
func (m *Metrics) UpdateSystemMetrics() {
	m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
	m.Goroutines.Set(float64(runtime.NumGoroutine()))
}

// SetGlobal installs the process-wide metrics instance.
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the process-wide metrics instance, or nil when metrics are
// disabled.
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
