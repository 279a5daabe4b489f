package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to
// prevent cardinality explosion in metrics.
func normalizePath(path string) string {
	// Exact matches for static routes (no normalization needed)
	staticRoutes := map[string]bool{
		"/":              true,
		"/users/me/stats": true,
		"/watch/events":  true,
		"/health":        true,
		"/ready":         true,
		"/metrics":       true,
	}

	if staticRoutes[path] {
		return path
	}

	// Fallback: return as-is for unknown patterns so new routes keep
	// producing metrics until they are added above.
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer for middleware that stacks wrappers.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health check endpoints (/health, /ready) are excluded from metrics to
// avoid cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			duration := time.Since(start).Seconds()
			normalizedPath := normalizePath(r.URL.Path)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
