package ports

import (
	"context"
	"time"

	"huddle/internal/core/domain"
)

// ParticipantRepository is the durable backing store for participant records.
// Upsert is keyed by (session, participant); at most one row exists per pair.
type ParticipantRepository interface {
	Upsert(ctx context.Context, p *domain.Participant) error
	Get(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*domain.Participant, error)
	FindActive(ctx context.Context, session domain.SessionID) ([]*domain.Participant, error)
	MarkLeft(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, at time.Time) error
	MarkAllLeft(ctx context.Context, session domain.SessionID, at time.Time) error
}

// BanRepository stores per-session exclusions. There is no removal path;
// bans last for the lifetime of the store.
type BanRepository interface {
	Ban(ctx context.Context, ban *domain.BanRecord) error
	IsBanned(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error)
}

// TimelineRepository records canonical session start and end timestamps.
type TimelineRepository interface {
	RecordStart(ctx context.Context, session domain.SessionID, startedAt time.Time) error
	RecordEnd(ctx context.Context, session domain.SessionID, endedAt time.Time, duration time.Duration) error
}
