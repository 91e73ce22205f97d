// Package metrics exposes Prometheus metrics for the engine and its HTTP
// surface.
package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Metrics holds all application metrics.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	engineOperations    *prometheus.CounterVec
	engineDuration      *prometheus.HistogramVec
	engineErrors        *prometheus.CounterVec
	engineBytes         *prometheus.CounterVec
	kdfDuration         *prometheus.HistogramVec
	selfTestPassed      prometheus.Gauge
	activeConnections   prometheus.Gauge
	goroutines          prometheus.Gauge
	memoryAllocBytes    prometheus.Gauge
	memorySysBytes      prometheus.Gauge
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(defaultRegistry)
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		engineOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcipher_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"operation", "classification", "algorithm"},
		),
		engineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldcipher_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation", "classification"},
		),
		engineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcipher_errors_total",
				Help: "Total number of engine operation errors",
			},
			[]string{"operation", "error_kind"},
		),
		engineBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcipher_bytes_total",
				Help: "Total plaintext bytes processed",
			},
			[]string{"operation"},
		),
		kdfDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldcipher_kdf_duration_seconds",
				Help:    "Key derivation duration in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"classification"},
		),
		selfTestPassed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldcipher_selftest_passed",
				Help: "Whether the last engine self-test passed (1) or failed (0)",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active HTTP connections",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// RecordOperation records an engine operation metric.
func (m *Metrics) RecordOperation(operation, classification, algorithm string, duration time.Duration, bytes int64) {
	m.engineOperations.WithLabelValues(operation, classification, algorithm).Inc()
	m.engineDuration.WithLabelValues(operation, classification).Observe(duration.Seconds())
	m.engineBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordError records an engine operation error.
func (m *Metrics) RecordError(operation, errorKind string) {
	m.engineErrors.WithLabelValues(operation, errorKind).Inc()
}

// RecordKDFDuration records a key derivation duration.
func (m *Metrics) RecordKDFDuration(classification string, duration time.Duration) {
	m.kdfDuration.WithLabelValues(classification).Observe(duration.Seconds())
}

// RecordSelfTest records the outcome of an engine self-test.
func (m *Metrics) RecordSelfTest(passed bool) {
	if passed {
		m.selfTestPassed.Set(1)
	} else {
		m.selfTestPassed.Set(0)
	}
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
