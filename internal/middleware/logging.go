package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code, response
// size, and handler context updates for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
	ctx         context.Context
}

// WriteHeader captures the status code before writing it.
// Only the first call sets the status code; subsequent calls are ignored
// to match http.ResponseWriter behavior where only the first status is sent.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap exposes the underlying writer for middleware that stacks wrappers.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// newResponseWriter creates a new responseWriter with default 200 status.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// NewLogger creates an slog.Logger based on the environment.
// In production (env == "production"), it returns a JSON handler.
// Otherwise, it returns a text handler for development.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging is a middleware that logs HTTP requests with structured fields.
// It captures: method, path, status, latency (ms), request ID, user ID (if
// present), response size, and error_code (for error responses).
//
// Note: If a handler panics, the log entry will not be written. To ensure
// logging even on panics, place a recovery middleware outside of the logging
// middleware.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			latency := time.Since(start).Milliseconds()

			// Prefer the context handlers stored via UpdateResponseContext;
			// it carries error codes set after the request context forked.
			ctx := r.Context()
			if rw.ctx != nil {
				ctx = rw.ctx
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", latency),
				slog.Int("size", rw.size),
			}

			if requestID := GetRequestID(ctx); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if userID := GetUserID(ctx); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}
			if rw.statusCode >= 400 {
				if errorCode := GetErrorCode(ctx); errorCode != "" {
					attrs = append(attrs, slog.String("error_code", errorCode))
				}
			}

			if rw.statusCode >= 500 {
				logger.LogAttrs(ctx, slog.LevelError, "request completed", attrs...)
			} else if rw.statusCode >= 400 {
				logger.LogAttrs(ctx, slog.LevelWarn, "request completed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}
		})
	}
}
