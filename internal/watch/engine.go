package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Input validation errors. These are distinct from ErrMalformedHistory so
// callers can render "invalid request" and "your activity history could not
// be processed" differently.
var (
	// ErrMissingOwner is returned when the owner identity is absent.
	ErrMissingOwner = errors.New("owner identity is required")

	// ErrInvalidWindow is returned when the stats window is malformed.
	ErrInvalidWindow = errors.New("invalid stats window")
)

// Window is a caller-supplied [StartMs, EndMs) time range in milliseconds
// since epoch.
type Window struct {
	StartMs int64
	EndMs   int64
}

// Validate checks that the window is non-negative and non-empty.
func (w Window) Validate() error {
	if w.StartMs < 0 || w.EndMs < 0 {
		return fmt.Errorf("%w: bounds must be non-negative", ErrInvalidWindow)
	}
	if w.StartMs >= w.EndMs {
		return fmt.Errorf("%w: start must precede end", ErrInvalidWindow)
	}
	return nil
}

// CurrentWeekWindow returns the window covering the calendar week containing
// now, in UTC, starting on Monday. It is the default window when the caller
// does not supply one.
func CurrentWeekWindow(now time.Time) Window {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// time.Weekday puts Sunday at 0; shift so Monday is the week start.
	daysSinceMonday := (int(midnight.Weekday()) + 6) % 7
	weekStart := midnight.AddDate(0, 0, -daysSinceMonday)

	return Window{
		StartMs: weekStart.UnixMilli(),
		EndMs:   weekStart.AddDate(0, 0, 7).UnixMilli(),
	}
}

// UserStats is the engine's output: leveling figures for a progress bar and
// a dense per-day watch-time series for a bar chart. It is computed fresh on
// every call and never persisted by the engine.
type UserStats struct {
	CumulativeExperience  int64       `json:"cumulative_experience"`
	Level                 int         `json:"level"`
	LevelFloor            int64       `json:"level_floor"`
	LevelCeiling          int64       `json:"level_ceiling"`
	ExperienceToNextLevel int64       `json:"experience_to_next_level"`
	DailyWatchTime        []DayBucket `json:"daily_watch_time"`
}

// Config carries the engine's injectable configuration.
type Config struct {
	// Levels is the ascending experience threshold table.
	Levels LevelTable

	// MinWatched is the cumulative watch time a video needs before its
	// experience is awarded. Zero means DefaultMinWatched.
	MinWatched time.Duration

	// Metrics, when non-nil, receives computation outcome observations.
	Metrics *Metrics
}

// Engine computes user watch statistics from a playback event log. It is a
// pure, synchronous, single-pass computation with no internal concurrency
// and no shared mutable state, so one Engine may serve concurrent requests
// for different users without coordination.
type Engine struct {
	levels       LevelTable
	minWatchedMs int64
	metrics      *Metrics
}

// NewEngine validates the configuration and returns a ready engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Levels.Validate(); err != nil {
		return nil, err
	}

	minWatched := cfg.MinWatched
	if minWatched <= 0 {
		minWatched = DefaultMinWatched
	}

	return &Engine{
		levels:       cfg.Levels,
		minWatchedMs: minWatched.Milliseconds(),
		metrics:      cfg.Metrics,
	}, nil
}

// ComputeStats reconstructs watch sessions from the owner's full event log
// and assembles the resulting stats for the given window. The computation is
// deterministic and all-or-nothing: any validation or reconstruction failure
// returns a nil result with no partial output.
//
// Events may arrive in any order; the engine sorts them by occurrence time
// before processing and never trusts storage order.
func (e *Engine) ComputeStats(ctx context.Context, ownerID string, events []*Event, window Window) (*UserStats, error) {
	start := time.Now()

	stats, err := e.computeStats(ownerID, events, window)
	if e.metrics != nil {
		e.metrics.ObserveComputation(err, time.Since(start), len(events))
	}
	return stats, err
}

func (e *Engine) computeStats(ownerID string, events []*Event, window Window) (*UserStats, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	aggregates, contributions, err := reconstructSessions(events)
	if err != nil {
		return nil, err
	}

	experience := totalExperience(aggregates, e.minWatchedMs)
	progress := e.levels.ProgressFor(experience)

	return &UserStats{
		CumulativeExperience:  experience,
		Level:                 progress.Level,
		LevelFloor:            progress.Floor,
		LevelCeiling:          progress.Ceiling,
		ExperienceToNextLevel: progress.ToNext,
		DailyWatchTime:        buildDailyHistogram(contributions, window.StartMs, window.EndMs),
	}, nil
}
