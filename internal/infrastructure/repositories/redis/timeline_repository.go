package redis

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// TimelineRepository records canonical start/end timestamps in a per-session
// hash. A new lifetime overwrites the previous entry.
type TimelineRepository struct {
	client *redis.Client
}

func NewTimelineRepository(client *redis.Client) ports.TimelineRepository {
	return &TimelineRepository{client: client}
}

func timelineKey(session domain.SessionID) string {
	return fmt.Sprintf("huddle:session:%s:timeline", session)
}

func (r *TimelineRepository) RecordStart(ctx context.Context, session domain.SessionID, startedAt time.Time) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, timelineKey(session))
	pipe.HSet(ctx, timelineKey(session), "started_at_ms", startedAt.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record session start in Redis: %w", err)
	}
	return nil
}

func (r *TimelineRepository) RecordEnd(ctx context.Context, session domain.SessionID, endedAt time.Time, duration time.Duration) error {
	err := r.client.HSet(ctx, timelineKey(session),
		"ended_at_ms", endedAt.UnixMilli(),
		"duration_ms", duration.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to record session end in Redis: %w", err)
	}
	return nil
}
