package watch

import (
	"sort"
	"time"
)

// contribution is a single counted watch-time delta, stamped with the
// wall-clock time of the closing event that produced it. Contributions feed
// the daily histogram.
type contribution struct {
	occurredAt time.Time
	watchedMs  int64
}

// videoAggregate accumulates watch time for one video within a single
// computation run. Aggregates are request-scoped and discarded on return;
// they are never shared across users or runs.
type videoAggregate struct {
	videoID         string
	experienceValue int64
	watchedMs       int64

	// last is the most recently processed event for this video, of any kind.
	// A closing event contributes a delta only when last is an opening
	// marker, which is what makes duplicate closes contribute nothing.
	last *Event
}

// reconstructSessions walks one user's events in chronological order and
// converts adjacent open/close pairs into watch-time deltas, grouped by
// video. It returns the per-video aggregates and the flat contribution list
// for histogram bucketing.
//
// The input slice is not modified; events are sorted into a scratch copy
// because storage insertion order is not trusted. Closes without a preceding
// opener and non-positive deltas are tolerated as zero-contribution, but an
// event failing Validate aborts the whole reconstruction.
func reconstructSessions(events []*Event) (map[string]*videoAggregate, []contribution, error) {
	sorted := make([]*Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	aggregates := make(map[string]*videoAggregate)
	var contributions []contribution

	for _, event := range sorted {
		if err := event.Validate(); err != nil {
			return nil, nil, err
		}

		agg, ok := aggregates[event.VideoID]
		if !ok {
			agg = &videoAggregate{
				videoID:         event.VideoID,
				experienceValue: event.ExperienceValue,
			}
			aggregates[event.VideoID] = agg
		}

		if event.Kind.Closing() && agg.last != nil && agg.last.Kind.Opening() {
			origin := agg.last.PositionMs
			if agg.last.Kind == KindSkip {
				origin = *agg.last.SkipTargetMs
			}
			delta := event.PositionMs - origin

			// Negative or zero deltas are clock-skew / out-of-order skip
			// artifacts and must not corrupt the totals.
			if delta > 0 {
				agg.watchedMs += delta
				contributions = append(contributions, contribution{
					occurredAt: event.OccurredAt,
					watchedMs:  delta,
				})
			}
		}

		// Recorded unconditionally: a closing event consumes at most the one
		// opening marker immediately before it, so consecutive closes cancel
		// each other's contribution potential.
		agg.last = event
	}

	return aggregates, contributions, nil
}
