package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// ParticipantRepository stores participant records as JSON values keyed by
// (session, participant), with a per-session set tracking active seats.
type ParticipantRepository struct {
	client *redis.Client
}

func NewParticipantRepository(client *redis.Client) ports.ParticipantRepository {
	return &ParticipantRepository{client: client}
}

func participantKey(session domain.SessionID, participant domain.ParticipantID) string {
	return fmt.Sprintf("huddle:session:%s:participant:%s", session, participant)
}

func activeSetKey(session domain.SessionID) string {
	return fmt.Sprintf("huddle:session:%s:active", session)
}

func (r *ParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, participantKey(p.SessionID, p.ID), data, 0)
	if p.Active() {
		pipe.SAdd(ctx, activeSetKey(p.SessionID), string(p.ID))
	} else {
		pipe.SRem(ctx, activeSetKey(p.SessionID), string(p.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert participant in Redis: %w", err)
	}
	return nil
}

func (r *ParticipantRepository) Get(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*domain.Participant, error) {
	data, err := r.client.Get(ctx, participantKey(session, participant)).Result()
	if err == redis.Nil {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant from Redis: %w", err)
	}

	var p domain.Participant
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
	}
	return &p, nil
}

func (r *ParticipantRepository) FindActive(ctx context.Context, session domain.SessionID) ([]*domain.Participant, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active set from Redis: %w", err)
	}

	var active []*domain.Participant
	for _, id := range ids {
		p, err := r.Get(ctx, session, domain.ParticipantID(id))
		if err != nil {
			// Skip records that vanished between the set read and the get.
			continue
		}
		if p.Active() {
			active = append(active, p)
		}
	}
	return active, nil
}

func (r *ParticipantRepository) MarkLeft(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, at time.Time) error {
	p, err := r.Get(ctx, session, participant)
	if err != nil {
		return err
	}
	if p.LeftAt == nil {
		left := at
		p.LeftAt = &left
	}
	return r.Upsert(ctx, p)
}

func (r *ParticipantRepository) MarkAllLeft(ctx context.Context, session domain.SessionID, at time.Time) error {
	active, err := r.FindActive(ctx, session)
	if err != nil {
		return err
	}

	for _, p := range active {
		left := at
		p.LeftAt = &left
		if err := r.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return r.client.Del(ctx, activeSetKey(session)).Err()
}
