package memory

import (
	"context"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type seatKey struct {
	session     domain.SessionID
	participant domain.ParticipantID
}

// ParticipantRepository is the in-memory durable-store stand-in used for
// single-node deployments and tests.
type ParticipantRepository struct {
	records map[seatKey]*domain.Participant
	mu      sync.RWMutex
}

func NewParticipantRepository() ports.ParticipantRepository {
	return &ParticipantRepository{
		records: make(map[seatKey]*domain.Participant),
	}
}

func (r *ParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *p
	r.records[seatKey{p.SessionID, p.ID}] = &clone
	return nil
}

func (r *ParticipantRepository) Get(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.records[seatKey{session, participant}]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}

	clone := *p
	return &clone, nil
}

func (r *ParticipantRepository) FindActive(ctx context.Context, session domain.SessionID) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*domain.Participant
	for key, p := range r.records {
		if key.session == session && p.Active() {
			clone := *p
			active = append(active, &clone)
		}
	}
	return active, nil
}

func (r *ParticipantRepository) MarkLeft(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.records[seatKey{session, participant}]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.LeftAt == nil {
		left := at
		p.LeftAt = &left
	}
	return nil
}

func (r *ParticipantRepository) MarkAllLeft(ctx context.Context, session domain.SessionID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, p := range r.records {
		if key.session == session && p.LeftAt == nil {
			left := at
			p.LeftAt = &left
		}
	}
	return nil
}
