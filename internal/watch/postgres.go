package watch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vidclass/vidclass/internal/tracing"
)

// PostgresEventRepository implements EventRepository over the append-only
// watch_events table.
type PostgresEventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresEventRepository creates a new PostgresEventRepository.
func NewPostgresEventRepository(db *sql.DB, logger *slog.Logger) *PostgresEventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresEventRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends a playback event to the owner's log.
func (r *PostgresEventRepository) Record(ctx context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "watch_events", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO watch_events (id, owner_id, video_id, kind, position_ms, skip_target_ms, occurred_at, experience_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var skipTarget sql.NullInt64
	if event.SkipTargetMs != nil {
		skipTarget = sql.NullInt64{Int64: *event.SkipTargetMs, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.OwnerID,
		event.VideoID,
		string(event.Kind),
		event.PositionMs,
		skipTarget,
		event.OccurredAt.UTC(),
		event.ExperienceValue,
	)
	if err != nil {
		r.logger.Error("failed to record watch event",
			slog.String("error", err.Error()),
			slog.String("owner_id", event.OwnerID),
			slog.String("video_id", event.VideoID))
		err = fmt.Errorf("failed to record watch event: %w", err)
		return err
	}
	return nil
}

// ListByOwner retrieves the full event log for one owner, ordered by
// occurrence time with the event ID as a tie-breaker.
func (r *PostgresEventRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Event, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "watch_events", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `
		SELECT id, owner_id, video_id, kind, position_ms, skip_target_ms, occurred_at, experience_value
		FROM watch_events
		WHERE owner_id = $1
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("failed to list watch events",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID))
		err = fmt.Errorf("failed to list watch events: %w", err)
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.Warn("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	var events []*Event
	for rows.Next() {
		var (
			event      Event
			kind       string
			skipTarget sql.NullInt64
		)
		if err = rows.Scan(
			&event.ID,
			&event.OwnerID,
			&event.VideoID,
			&kind,
			&event.PositionMs,
			&skipTarget,
			&event.OccurredAt,
			&event.ExperienceValue,
		); err != nil {
			err = fmt.Errorf("failed to scan watch event: %w", err)
			return nil, err
		}
		event.Kind = EventKind(kind)
		if skipTarget.Valid {
			target := skipTarget.Int64
			event.SkipTargetMs = &target
		}
		event.OccurredAt = event.OccurredAt.UTC()
		events = append(events, &event)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("failed to iterate watch events: %w", err)
		return nil, err
	}

	return events, nil
}
