package watch

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// EventRepository defines the interface for the append-only playback event
// store. The engine only ever reads from it; events are never updated or
// deleted.
type EventRepository interface {
	// Record appends a playback event to the owner's log. The event must
	// pass Validate: the write path enforces the skip-target invariant as a
	// hard error, unlike the tolerant read path.
	Record(ctx context.Context, event *Event) error

	// ListByOwner retrieves the full event log for one owner. Results are
	// returned in chronological order as a convenience, but callers must not
	// rely on it; the engine re-sorts defensively.
	ListByOwner(ctx context.Context, ownerID string) ([]*Event, error)
}

// InMemoryEventRepository is an in-memory implementation of EventRepository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string][]*Event // owner_id -> events in insertion order
}

// NewInMemoryEventRepository creates a new in-memory event repository.
func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{
		events: make(map[string][]*Event),
	}
}

// Record appends a playback event to the owner's log.
func (r *InMemoryEventRepository) Record(_ context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	stored := event.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[stored.OwnerID] = append(r.events[stored.OwnerID], stored)

	// Report the generated ID back to the caller.
	event.ID = stored.ID
	return nil
}

// ListByOwner retrieves the full event log for one owner, sorted by
// occurrence time.
func (r *InMemoryEventRepository) ListByOwner(_ context.Context, ownerID string) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.events[ownerID]
	result := make([]*Event, 0, len(stored))
	for _, e := range stored {
		result = append(result, e.Clone())
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result, nil
}
