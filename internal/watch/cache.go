package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStatsTTL is the default lifetime of a cached stats result. Stats
// are cheap to recompute, so the TTL only needs to absorb profile-page
// refresh bursts.
const DefaultStatsTTL = 30 * time.Second

// StatsCache caches computed UserStats per (owner, window) in Redis.
// The computation is deterministic, so a cached result is exactly what a
// recomputation would produce until new events arrive. The cache fails
// open: any Redis error is treated as a miss.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatsCache creates a new StatsCache. A ttl of zero means
// DefaultStatsTTL.
func NewStatsCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Key returns the cache key for an owner's stats over a window.
func (c *StatsCache) Key(ownerID string, window Window) string {
	return fmt.Sprintf("watch:stats:%s:%d:%d", ownerID, window.StartMs, window.EndMs)
}

// Get returns the cached stats for the owner and window, or (nil, false) on
// a miss or any Redis failure.
func (c *StatsCache) Get(ctx context.Context, ownerID string, window Window) (*UserStats, bool) {
	data, err := c.client.Get(ctx, c.Key(ownerID, window)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("stats cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	var stats UserStats
	if err := json.Unmarshal(data, &stats); err != nil {
		c.logger.Warn("stats cache entry corrupt", slog.String("error", err.Error()))
		return nil, false
	}
	return &stats, true
}

// Set stores the stats for the owner and window. Failures are logged and
// otherwise ignored; the cache is an optimization, not a source of truth.
func (c *StatsCache) Set(ctx context.Context, ownerID string, window Window, stats *UserStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn("stats cache marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, c.Key(ownerID, window), data, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache write failed", slog.String("error", err.Error()))
	}
}
