package watch

// DayMs is the width of one histogram bucket in milliseconds.
const DayMs int64 = 24 * 60 * 60 * 1000

// DayBucket is one entry of the daily watch-time series. StartMs is the
// bucket's start as milliseconds since epoch; WatchedMs is the total watch
// time whose closing events fell inside the bucket.
type DayBucket struct {
	StartMs   int64 `json:"start_ms"`
	WatchedMs int64 `json:"watched_ms"`
}

// buildDailyHistogram re-buckets contributions by the wall-clock day of
// their closing event, relative to the caller's [startMs, endMs) window.
// The result is dense: one bucket per whole day in the window, in ascending
// order, with explicit zeros for days without activity. Contributions
// outside the window, or inside a trailing partial day, are discarded.
//
// Bucketing uses the event's real-world occurrence time, not any in-video
// position: the series answers "when did the user watch", not "what part of
// the video did they watch".
func buildDailyHistogram(contributions []contribution, startMs, endMs int64) []DayBucket {
	days := (endMs - startMs) / DayMs
	if days <= 0 {
		return []DayBucket{}
	}

	buckets := make([]DayBucket, days)
	for i := range buckets {
		buckets[i].StartMs = startMs + int64(i)*DayMs
	}

	for _, c := range contributions {
		occurredMs := c.occurredAt.UnixMilli()
		if occurredMs < startMs || occurredMs >= endMs {
			continue
		}
		idx := (occurredMs - startMs) / DayMs
		if idx >= days {
			continue
		}
		buckets[idx].WatchedMs += c.watchedMs
	}

	return buckets
}
