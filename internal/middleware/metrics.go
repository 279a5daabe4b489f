// Package middleware provides metrics for HTTP middleware components.
package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPRequestSizeBytes  = "http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
)

// Metrics contains Prometheus metrics for HTTP middleware operations.
// All operations are thread-safe.
type Metrics struct {
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1.0, 2.0},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequestsTotal,
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestSizeBytes,
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8), // 100 B to ~100 MB
			},
			[]string{"method", "path", "status"},
		),
		httpResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPResponseSizeBytes,
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8), // 100 B to ~100 MB
			},
			[]string{"method", "path", "status"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.httpRequestSize,
		m.httpResponseSize,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveHTTPRequest records the metrics for one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, durationSeconds float64, requestSize, responseSize int64) {
	m.httpRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestSize.WithLabelValues(method, path, status).Observe(float64(requestSize))
	m.httpResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
}
