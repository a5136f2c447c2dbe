package postgres

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type TimelineRepository struct {
	store *Store
}

func NewTimelineRepository(store *Store) ports.TimelineRepository {
	return &TimelineRepository{store: store}
}

func (r *TimelineRepository) RecordStart(ctx context.Context, session domain.SessionID, startedAt time.Time) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO session_timeline (session_id, started_at, ended_at, duration_ms)
		VALUES ($1, $2, NULL, NULL)
		ON CONFLICT (session_id) DO UPDATE SET
			started_at  = EXCLUDED.started_at,
			ended_at    = NULL,
			duration_ms = NULL`,
		session, startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

func (r *TimelineRepository) RecordEnd(ctx context.Context, session domain.SessionID, endedAt time.Time, duration time.Duration) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE session_timeline SET ended_at = $2, duration_ms = $3
		WHERE session_id = $1`,
		session, endedAt, duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}
