package watch

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStatsCache_Key(t *testing.T) {
	cache := NewStatsCache(nil, 0, nil)

	key := cache.Key("owner-1", Window{StartMs: 0, EndMs: DayMs})
	if key != "watch:stats:owner-1:0:86400000" {
		t.Errorf("Key() = %q", key)
	}

	other := cache.Key("owner-1", Window{StartMs: DayMs, EndMs: 2 * DayMs})
	if key == other {
		t.Error("different windows produced the same key")
	}
}

// TestStatsCache_RoundTrip exercises the cache against a real Redis instance
// on localhost:6379. Skip if Redis is not available.
func TestStatsCache_RoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	cache := NewStatsCache(client, time.Minute, nil)
	ownerID := "cache-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	window := Window{StartMs: 0, EndMs: 2 * DayMs}

	if _, ok := cache.Get(context.Background(), ownerID, window); ok {
		t.Fatal("expected a miss for a fresh owner")
	}

	stats := &UserStats{
		CumulativeExperience:  140,
		Level:                 1,
		LevelFloor:            100,
		LevelCeiling:          250,
		ExperienceToNextLevel: 110,
		DailyWatchTime: []DayBucket{
			{StartMs: 0, WatchedMs: 500},
			{StartMs: DayMs, WatchedMs: 0},
		},
	}
	cache.Set(context.Background(), ownerID, window, stats)

	cached, ok := cache.Get(context.Background(), ownerID, window)
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if cached.CumulativeExperience != stats.CumulativeExperience {
		t.Errorf("cached experience = %d, want %d", cached.CumulativeExperience, stats.CumulativeExperience)
	}
	if len(cached.DailyWatchTime) != len(stats.DailyWatchTime) {
		t.Errorf("cached series length = %d, want %d", len(cached.DailyWatchTime), len(stats.DailyWatchTime))
	}

	// A different window is a different entry.
	if _, ok := cache.Get(context.Background(), ownerID, Window{StartMs: DayMs, EndMs: 3 * DayMs}); ok {
		t.Error("expected a miss for a different window")
	}
}
