package memory

import (
	"context"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type timelineEntry struct {
	StartedAt time.Time
	EndedAt   *time.Time
	Duration  time.Duration
}

// TimelineRepository records session start/end timestamps in memory. Each
// lifetime overwrites the previous one; the most recent start wins.
type TimelineRepository struct {
	entries map[domain.SessionID]*timelineEntry
	mu      sync.Mutex
}

func NewTimelineRepository() ports.TimelineRepository {
	return &TimelineRepository{
		entries: make(map[domain.SessionID]*timelineEntry),
	}
}

func (r *TimelineRepository) RecordStart(ctx context.Context, session domain.SessionID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[session] = &timelineEntry{StartedAt: startedAt}
	return nil
}

func (r *TimelineRepository) RecordEnd(ctx context.Context, session domain.SessionID, endedAt time.Time, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[session]
	if !ok {
		entry = &timelineEntry{StartedAt: endedAt.Add(-duration)}
		r.entries[session] = entry
	}
	end := endedAt
	entry.EndedAt = &end
	entry.Duration = duration
	return nil
}
