// Package watch provides the watch session analytics engine for the Vidclass
// API. It reconstructs continuous viewing sessions from an append-only log of
// discrete playback events and derives cumulative engagement, level
// progression, and a day-bucketed watch-time series per user.
package watch

import (
	"errors"
	"fmt"
	"time"
)

// EventKind identifies the type of a playback event.
// The set of kinds is closed; events carrying any other value make the
// whole history unprocessable.
type EventKind string

const (
	// KindStart marks playback starting or resuming at a position.
	KindStart EventKind = "start"
	// KindSkip marks the user seeking from one position to another.
	KindSkip EventKind = "skip"
	// KindPause marks playback being paused.
	KindPause EventKind = "pause"
	// KindClose marks the player being closed.
	KindClose EventKind = "close"
	// KindEnd marks playback reaching the end of the video.
	KindEnd EventKind = "end"
)

// Valid reports whether k is one of the five recognized event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindStart, KindSkip, KindPause, KindClose, KindEnd:
		return true
	}
	return false
}

// Opening reports whether k begins a countable watch segment.
func (k EventKind) Opening() bool {
	return k == KindStart || k == KindSkip
}

// Closing reports whether k ends a countable watch segment.
func (k EventKind) Closing() bool {
	return k == KindPause || k == KindClose || k == KindEnd
}

// Malformed-history errors. The engine deliberately favors all-or-nothing
// correctness: a history containing an unrecognized kind or a skip event
// without a target aborts the whole computation rather than producing a
// partially wrong aggregate.
var (
	// ErrMalformedHistory is the umbrella error matched by errors.Is for any
	// event that makes the history unprocessable.
	ErrMalformedHistory = errors.New("watch history is malformed")

	// ErrUnknownEventKind is returned when an event carries an unrecognized kind.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrMissingSkipTarget is returned when a skip event has no skip target.
	ErrMissingSkipTarget = errors.New("skip event missing skip target")

	// ErrUnexpectedSkipTarget is returned when a non-skip event carries a skip target.
	ErrUnexpectedSkipTarget = errors.New("skip target set on non-skip event")
)

// MalformedEventError wraps the kind-specific reason an event was rejected
// together with the offending event's ID. It matches ErrMalformedHistory
// via errors.Is so callers can distinguish a bad history from bad input.
type MalformedEventError struct {
	EventID string
	Reason  error
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed watch event %s: %v", e.EventID, e.Reason)
}

// Unwrap returns the kind-specific reason.
func (e *MalformedEventError) Unwrap() error {
	return e.Reason
}

// Is matches ErrMalformedHistory in addition to the wrapped reason.
func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedHistory
}

// Event represents a single playback event in a user's append-only watch log.
// Events are immutable once recorded; the engine never rewrites the log.
type Event struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	VideoID string `json:"video_id"`

	Kind EventKind `json:"kind"`

	// PositionMs is the playback position within the video, in milliseconds,
	// at the moment the event occurred.
	PositionMs int64 `json:"position_ms"`

	// SkipTargetMs is the position the user skipped to. Set if and only if
	// Kind is KindSkip.
	SkipTargetMs *int64 `json:"skip_target_ms,omitempty"`

	// OccurredAt is the wall-clock time of the event. It establishes global
	// ordering and calendar-day bucketing. Storage order is not trusted; the
	// engine re-sorts by this field before processing.
	OccurredAt time.Time `json:"occurred_at"`

	// ExperienceValue is the experience nominally awardable for this event's
	// video, denormalized onto the event at write time.
	ExperienceValue int64 `json:"experience_value"`
}

// Validate checks the event's kind and the skip-target invariant
// (SkipTargetMs is set iff Kind is KindSkip). It returns a
// *MalformedEventError describing the first violation found.
func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return &MalformedEventError{EventID: e.ID, Reason: ErrUnknownEventKind}
	}
	if e.Kind == KindSkip && e.SkipTargetMs == nil {
		return &MalformedEventError{EventID: e.ID, Reason: ErrMissingSkipTarget}
	}
	if e.Kind != KindSkip && e.SkipTargetMs != nil {
		return &MalformedEventError{EventID: e.ID, Reason: ErrUnexpectedSkipTarget}
	}
	return nil
}

// Clone returns a deep copy of the event. Repositories return clones so
// callers can never mutate stored state through a shared pointer.
func (e *Event) Clone() *Event {
	clone := *e
	if e.SkipTargetMs != nil {
		target := *e.SkipTargetMs
		clone.SkipTargetMs = &target
	}
	return &clone
}
