// Package api provides HTTP handlers for the Vidclass API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vidclass/vidclass/internal/middleware"
	"github.com/vidclass/vidclass/internal/validate"
	"github.com/vidclass/vidclass/internal/watch"
)

// WatchHandlers holds dependencies for watch-log and stats HTTP handlers.
type WatchHandlers struct {
	repo   watch.EventRepository
	engine *watch.Engine
	cache  *watch.StatsCache // optional; nil disables caching
}

// NewWatchHandlers creates a new WatchHandlers instance.
func NewWatchHandlers(repo watch.EventRepository, engine *watch.Engine, cache *watch.StatsCache) *WatchHandlers {
	return &WatchHandlers{
		repo:   repo,
		engine: engine,
		cache:  cache,
	}
}

// GetMyStats handles GET /users/me/stats - computes the authenticated user's
// leveling figures and daily watch-time series.
//
// Query parameters start_time and end_time (milliseconds since epoch) select
// the histogram window; when absent the current Monday-start UTC calendar
// week is used. Supplying only one bound is a validation error.
func (h *WatchHandlers) GetMyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	// Get user ID from context (set by auth middleware)
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	window, err := parseWindow(r.URL.Query().Get("start_time"), r.URL.Query().Get("end_time"))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	// Serve from cache when available; a miss or Redis outage falls through
	// to a fresh computation.
	if h.cache != nil {
		if stats, ok := h.cache.Get(r.Context(), userID, window); ok {
			writeStats(w, r, stats)
			return
		}
	}

	events, err := h.repo.ListByOwner(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list watch events", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load watch history")
		return
	}

	stats, err := h.engine.ComputeStats(r.Context(), userID, events, window)
	if err != nil {
		switch {
		case errors.Is(err, watch.ErrMalformedHistory):
			slog.ErrorContext(r.Context(), "malformed watch history", "error", err, "user_id", userID)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeMalformedHistory)
			WriteError(w, ctx, http.StatusUnprocessableEntity, ErrCodeMalformedHistory, "Watch history could not be processed")
		case errors.Is(err, watch.ErrMissingOwner), errors.Is(err, watch.ErrInvalidWindow):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to compute stats", "error", err, "user_id", userID)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to compute stats")
		}
		return
	}

	if h.cache != nil {
		h.cache.Set(r.Context(), userID, window, stats)
	}

	writeStats(w, r, stats)
}

// RecordEventRequest represents the request body for appending a playback event.
type RecordEventRequest struct {
	VideoID         string `json:"video_id"`
	Kind            string `json:"kind"`
	PositionMs      int64  `json:"position_ms"`
	SkipTargetMs    *int64 `json:"skip_target_ms,omitempty"`
	OccurredAtMs    *int64 `json:"occurred_at_ms,omitempty"`
	ExperienceValue int64  `json:"experience_value"`
}

// RecordEventResponse represents the response body for a recorded event.
type RecordEventResponse struct {
	ID         string `json:"id"`
	VideoID    string `json:"video_id"`
	Kind       string `json:"kind"`
	OccurredAt string `json:"occurred_at"`
}

// RecordEvent handles POST /watch/events - appends a playback event to the
// authenticated user's watch log. Structural invariants (known kind,
// skip_target_ms present iff kind is skip) are enforced as a hard 400 so a
// bad producer can never poison the stored log.
func (h *WatchHandlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	videoID, err := validate.ID(req.VideoID)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, fmt.Sprintf("video_id is invalid: %v", err))
		return
	}
	if req.PositionMs < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "position_ms must be non-negative")
		return
	}
	if req.ExperienceValue < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "experience_value must be non-negative")
		return
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAtMs != nil {
		if *req.OccurredAtMs < 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "occurred_at_ms must be non-negative")
			return
		}
		occurredAt = time.UnixMilli(*req.OccurredAtMs).UTC()
	}

	event := &watch.Event{
		OwnerID:         userID,
		VideoID:         videoID,
		Kind:            watch.EventKind(req.Kind),
		PositionMs:      req.PositionMs,
		SkipTargetMs:    req.SkipTargetMs,
		OccurredAt:      occurredAt,
		ExperienceValue: req.ExperienceValue,
	}

	if err := event.Validate(); err != nil {
		var malformed *watch.MalformedEventError
		if errors.As(err, &malformed) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, malformed.Reason.Error())
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := h.repo.Record(r.Context(), event); err != nil {
		slog.ErrorContext(r.Context(), "failed to record watch event", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record event")
		return
	}

	response := RecordEventResponse{
		ID:         event.ID,
		VideoID:    event.VideoID,
		Kind:       string(event.Kind),
		OccurredAt: event.OccurredAt.Format(time.RFC3339Nano),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode event response", "error", err)
	}
}

// parseWindow resolves the optional start_time/end_time query parameters into
// a stats window, defaulting to the current calendar week.
func parseWindow(startParam, endParam string) (watch.Window, error) {
	if startParam == "" && endParam == "" {
		return watch.CurrentWeekWindow(time.Now()), nil
	}
	if startParam == "" || endParam == "" {
		return watch.Window{}, errors.New("start_time and end_time must be supplied together")
	}

	startMs, err := strconv.ParseInt(startParam, 10, 64)
	if err != nil {
		return watch.Window{}, errors.New("start_time must be an integer millisecond timestamp")
	}
	endMs, err := strconv.ParseInt(endParam, 10, 64)
	if err != nil {
		return watch.Window{}, errors.New("end_time must be an integer millisecond timestamp")
	}

	window := watch.Window{StartMs: startMs, EndMs: endMs}
	if err := window.Validate(); err != nil {
		return watch.Window{}, err
	}
	return window, nil
}

func writeStats(w http.ResponseWriter, r *http.Request, stats *watch.UserStats) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode stats response", "error", err)
	}
}
