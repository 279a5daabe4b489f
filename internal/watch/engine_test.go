package watch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		Levels:     LevelTable{100, 250, 500},
		MinWatched: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewEngine() returned error: %v", err)
	}
	return engine
}

func TestNewEngine_RejectsInvalidLevelTable(t *testing.T) {
	_, err := NewEngine(Config{Levels: LevelTable{500, 100}})
	if !errors.Is(err, ErrInvalidLevelTable) {
		t.Errorf("NewEngine() error = %v, want ErrInvalidLevelTable", err)
	}
}

func TestWindow_Validate(t *testing.T) {
	tests := []struct {
		name    string
		window  Window
		wantErr bool
	}{
		{name: "valid window", window: Window{StartMs: 0, EndMs: DayMs}},
		{name: "start equals end", window: Window{StartMs: 1000, EndMs: 1000}, wantErr: true},
		{name: "start after end", window: Window{StartMs: 2000, EndMs: 1000}, wantErr: true},
		{name: "negative start", window: Window{StartMs: -1, EndMs: 1000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.window.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("Validate() = %v, want ErrInvalidWindow", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() returned unexpected error: %v", err)
			}
		})
	}
}

func TestCurrentWeekWindow(t *testing.T) {
	// Wednesday 2026-01-07 15:04:05 UTC; the containing week starts on
	// Monday 2026-01-05.
	now := time.Date(2026, 1, 7, 15, 4, 5, 0, time.UTC)
	window := CurrentWeekWindow(now)

	wantStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC).UnixMilli()
	if window.StartMs != wantStart {
		t.Errorf("window start = %d, want %d", window.StartMs, wantStart)
	}
	if window.EndMs-window.StartMs != 7*DayMs {
		t.Errorf("window span = %d, want exactly 7 days", window.EndMs-window.StartMs)
	}

	// A Monday is its own week start.
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if got := CurrentWeekWindow(monday); got.StartMs != wantStart {
		t.Errorf("Monday window start = %d, want %d", got.StartMs, wantStart)
	}

	// Sunday still belongs to the week that began the previous Monday.
	sunday := time.Date(2026, 1, 11, 23, 59, 59, 0, time.UTC)
	if got := CurrentWeekWindow(sunday); got.StartMs != wantStart {
		t.Errorf("Sunday window start = %d, want %d", got.StartMs, wantStart)
	}
}

func TestComputeStats_FullComposition(t *testing.T) {
	engine := newTestEngine(t)

	events := []*Event{
		eventAt(KindStart, 0, DayMs+1000),
		eventAt(KindEnd, 500, DayMs+1000),
	}

	stats, err := engine.ComputeStats(context.Background(), "owner-1", events, Window{StartMs: 0, EndMs: 3 * DayMs})
	if err != nil {
		t.Fatalf("ComputeStats() returned error: %v", err)
	}

	if stats.CumulativeExperience != 100 {
		t.Errorf("cumulative experience = %d, want 100", stats.CumulativeExperience)
	}
	if stats.Level != 1 {
		t.Errorf("level = %d, want 1", stats.Level)
	}
	if stats.LevelFloor != 100 || stats.LevelCeiling != 250 {
		t.Errorf("level bounds = [%d, %d], want [100, 250]", stats.LevelFloor, stats.LevelCeiling)
	}
	if stats.ExperienceToNextLevel != 150 {
		t.Errorf("experience to next level = %d, want 150", stats.ExperienceToNextLevel)
	}

	want := []int64{0, 500, 0}
	if len(stats.DailyWatchTime) != len(want) {
		t.Fatalf("expected %d day buckets, got %d", len(want), len(stats.DailyWatchTime))
	}
	for i, bucket := range stats.DailyWatchTime {
		if bucket.WatchedMs != want[i] {
			t.Errorf("day %d watched ms = %d, want %d", i, bucket.WatchedMs, want[i])
		}
	}
}

func TestComputeStats_Determinism(t *testing.T) {
	engine := newTestEngine(t)

	events := []*Event{
		eventAt(KindStart, 0, 1000),
		skipEventAt(100, 400, 1500),
		eventAt(KindEnd, 600, 2000),
		eventAt(KindClose, 700, 3000),
	}
	window := Window{StartMs: 0, EndMs: 2 * DayMs}

	first, err := engine.ComputeStats(context.Background(), "owner-1", events, window)
	if err != nil {
		t.Fatalf("ComputeStats() returned error: %v", err)
	}
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for i := 0; i < 5; i++ {
		repeat, err := engine.ComputeStats(context.Background(), "owner-1", events, window)
		if err != nil {
			t.Fatalf("ComputeStats() run %d returned error: %v", i, err)
		}
		repeatJSON, err := json.Marshal(repeat)
		if err != nil {
			t.Fatalf("marshal run %d: %v", i, err)
		}
		if string(firstJSON) != string(repeatJSON) {
			t.Fatalf("run %d produced a different result:\n%s\n%s", i, firstJSON, repeatJSON)
		}
	}
}

func TestComputeStats_ExperienceMonotonicity(t *testing.T) {
	engine := newTestEngine(t)
	window := Window{StartMs: 0, EndMs: DayMs}

	qualified := []*Event{
		eventAt(KindStart, 0, 1000),
		eventAt(KindEnd, 500, 2000),
	}
	extended := append(append([]*Event{}, qualified...),
		eventAt(KindStart, 500, 3000),
		eventAt(KindEnd, 900, 4000),
	)

	base, err := engine.ComputeStats(context.Background(), "owner-1", qualified, window)
	if err != nil {
		t.Fatalf("ComputeStats(qualified) returned error: %v", err)
	}
	more, err := engine.ComputeStats(context.Background(), "owner-1", extended, window)
	if err != nil {
		t.Fatalf("ComputeStats(extended) returned error: %v", err)
	}

	if base.CumulativeExperience != more.CumulativeExperience {
		t.Errorf("more watch time on a qualified video changed experience: %d != %d",
			base.CumulativeExperience, more.CumulativeExperience)
	}
}

func TestComputeStats_ValidationErrors(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.ComputeStats(context.Background(), "", nil, Window{StartMs: 0, EndMs: DayMs})
	if !errors.Is(err, ErrMissingOwner) {
		t.Errorf("missing owner error = %v, want ErrMissingOwner", err)
	}

	_, err = engine.ComputeStats(context.Background(), "owner-1", nil, Window{StartMs: 5, EndMs: 5})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("invalid window error = %v, want ErrInvalidWindow", err)
	}
}

func TestComputeStats_MalformedHistoryReturnsNoResult(t *testing.T) {
	engine := newTestEngine(t)

	events := []*Event{
		eventAt(KindStart, 0, 1000),
		{ID: "bad", OwnerID: "owner-1", VideoID: "v1", Kind: "INVALID", OccurredAt: time.UnixMilli(1500)},
	}

	stats, err := engine.ComputeStats(context.Background(), "owner-1", events, Window{StartMs: 0, EndMs: DayMs})
	if stats != nil {
		t.Error("expected nil stats for malformed history")
	}
	if !errors.Is(err, ErrMalformedHistory) {
		t.Errorf("error = %v, want ErrMalformedHistory", err)
	}
}

func TestComputeStats_EmptyLog(t *testing.T) {
	engine := newTestEngine(t)

	stats, err := engine.ComputeStats(context.Background(), "owner-1", nil, Window{StartMs: 0, EndMs: 2 * DayMs})
	if err != nil {
		t.Fatalf("ComputeStats() returned error: %v", err)
	}

	if stats.CumulativeExperience != 0 {
		t.Errorf("cumulative experience = %d, want 0", stats.CumulativeExperience)
	}
	if stats.Level != 0 {
		t.Errorf("level = %d, want 0", stats.Level)
	}
	if len(stats.DailyWatchTime) != 2 {
		t.Errorf("expected 2 zero-filled buckets, got %d", len(stats.DailyWatchTime))
	}
}
