package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/vidclass/vidclass/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// idempotencyKeyContextKey is the context key for storing the idempotency key.
type idempotencyKeyContextKey struct{}

// idempotencyResponseWriter captures the response so it can be replayed for
// retried requests.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func newIdempotencyResponseWriter(w http.ResponseWriter) *idempotencyResponseWriter {
	return &idempotencyResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

// WriteHeader captures the status code.
func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write captures the response body.
func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b)
	return n, err
}

// Unwrap returns the underlying response writer.
func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// SetIdempotencyKey stores the idempotency key in the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey retrieves the idempotency key from context. Returns empty string if not present.
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// writeIdempotencyError writes an error response without importing the api
// package (which depends on this one).
func writeIdempotencyError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}

// Idempotency returns middleware that makes retried POST requests safe for
// the configured routes. The Idempotency-Key header is optional: without it
// the request passes straight through; with it, a duplicate submission
// returns the originally recorded response instead of appending again.
func Idempotency(repo idempotency.Repository, routes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !routes[r.URL.Path] || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				code := "invalid_idempotency_key"
				message := "Invalid Idempotency-Key format"
				if err == idempotency.ErrKeyTooLong {
					code = "idempotency_key_too_long"
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				ctx := SetErrorCode(r.Context(), code)
				writeIdempotencyError(w, ctx, http.StatusBadRequest, code, message)
				return
			}

			// Store key in context for potential use by handlers
			ctx := SetIdempotencyKey(r.Context(), key)
			r = r.WithContext(ctx)

			existing, err := repo.Get(key)
			if err == nil {
				slog.InfoContext(ctx, "idempotency key found, returning cached response",
					"key", key,
					"status", existing.ResponseStatusCode,
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.ResponseStatusCode)
				_, _ = w.Write([]byte(existing.ResponseBody))
				return
			}

			if err != idempotency.ErrKeyNotFound {
				// Unexpected error - log and continue without idempotency
				slog.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			captureWriter := newIdempotencyResponseWriter(w)
			next.ServeHTTP(captureWriter, r)

			// Only cache successful responses (2xx status codes)
			if captureWriter.statusCode >= 200 && captureWriter.statusCode < 300 {
				responseBody := captureWriter.body.String()

				record := &idempotency.IdempotencyKey{
					Key:                key,
					Method:             r.Method,
					Route:              r.URL.Path,
					ResponseHash:       idempotency.ComputeResponseHash(responseBody),
					Status:             idempotency.StatusCompleted,
					ResponseBody:       responseBody,
					ResponseStatusCode: captureWriter.statusCode,
				}

				if err := repo.Store(record); err != nil {
					// Response already sent; nothing to do but log
					slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
				}
			}
		})
	}
}
