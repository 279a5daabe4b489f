package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vidclass/vidclass/internal/middleware"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	dbChecker    HealthChecker
	redisChecker HealthChecker
}

// HealthHandlersConfig configures the health check handlers.
// Checkers are optional; a nil checker reports "ok" for its dependency.
type HealthHandlersConfig struct {
	DBChecker    HealthChecker
	RedisChecker HealthChecker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:    config.DBChecker,
		redisChecker: config.RedisChecker,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Returns 200 if the application is running and can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	// Liveness check is simple - if we can respond, we're alive
	response := HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// Ready handles GET /ready (readiness probe).
// Returns 200 if the application is ready to serve traffic, 503 if any
// configured dependency is unavailable.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.dbChecker != nil {
		if err := h.dbChecker.HealthCheck(ctx); err != nil {
			checks["database"] = "error"
			healthy = false
			slog.WarnContext(ctx, "database health check failed", "error", err)
		} else {
			checks["database"] = "ok"
		}
	} else {
		// Database not configured (using in-memory repos)
		checks["database"] = "ok"
	}

	if h.redisChecker != nil {
		if err := h.redisChecker.HealthCheck(ctx); err != nil {
			checks["redis"] = "error"
			healthy = false
			slog.WarnContext(ctx, "redis health check failed", "error", err)
		} else {
			checks["redis"] = "ok"
		}
	} else {
		// Redis not configured - stats are computed fresh on every request
		checks["redis"] = "ok"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode readiness response", "error", err)
	}
}
