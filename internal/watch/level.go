package watch

import (
	"errors"
	"time"
)

// DefaultMinWatched is the minimum cumulative watch time a video needs
// before its experience value is awarded. The default means any positive
// watch time counts; deployments override it through Config.
const DefaultMinWatched = time.Millisecond

// ErrInvalidLevelTable is returned when a level table is empty or its
// thresholds are not strictly ascending.
var ErrInvalidLevelTable = errors.New("level thresholds must be non-empty and strictly ascending")

// LevelTable is an ascending sequence of experience thresholds. Index i
// holds the minimum experience at which a user outgrows level i. The table
// is loaded once from configuration and injected; it is never mutated.
type LevelTable []int64

// Validate checks that the table is non-empty and strictly ascending.
func (t LevelTable) Validate() error {
	if len(t) == 0 {
		return ErrInvalidLevelTable
	}
	for i, threshold := range t {
		if threshold <= 0 {
			return ErrInvalidLevelTable
		}
		if i > 0 && threshold <= t[i-1] {
			return ErrInvalidLevelTable
		}
	}
	return nil
}

// Progress describes a user's position within the level ladder.
type Progress struct {
	// Level is the index of the user's current level.
	Level int
	// Floor is the experience at which the current level begins.
	Floor int64
	// Ceiling is the experience required to reach the next level.
	Ceiling int64
	// ToNext is the experience still needed to reach the next level.
	// Zero when the user has maxed out the table.
	ToNext int64
}

// ProgressFor maps total experience to a level and its bounds. The current
// level is the index of the first threshold strictly greater than the
// experience. When experience meets or exceeds every threshold the result
// is clamped to the top level with ToNext == 0, so a maxed-out user renders
// as a full progress bar instead of undefined bounds.
func (t LevelTable) ProgressFor(experience int64) Progress {
	for i, threshold := range t {
		if experience < threshold {
			floor := int64(0)
			if i > 0 {
				floor = t[i-1]
			}
			return Progress{
				Level:   i,
				Floor:   floor,
				Ceiling: threshold,
				ToNext:  threshold - experience,
			}
		}
	}

	top := len(t) - 1
	floor := int64(0)
	if top > 0 {
		floor = t[top-1]
	}
	return Progress{
		Level:   top,
		Floor:   floor,
		Ceiling: t[top],
		ToNext:  0,
	}
}

// totalExperience sums the experience of every video whose cumulative watch
// time reached minWatchedMs. A video contributes its value at most once no
// matter how many sessions were reconstructed for it; videos with no
// configured experience value contribute zero.
func totalExperience(aggregates map[string]*videoAggregate, minWatchedMs int64) int64 {
	var total int64
	for _, agg := range aggregates {
		if agg.watchedMs >= minWatchedMs {
			total += agg.experienceValue
		}
	}
	return total
}
