package redis

import (
	"context"
	"fmt"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// BanRepository keeps per-session exclusions in a Redis set. Entries carry
// no TTL; a ban is permanent for the lifetime of the store.
type BanRepository struct {
	client *redis.Client
}

func NewBanRepository(client *redis.Client) ports.BanRepository {
	return &BanRepository{client: client}
}

func banSetKey(session domain.SessionID) string {
	return fmt.Sprintf("huddle:session:%s:banned", session)
}

func (r *BanRepository) Ban(ctx context.Context, ban *domain.BanRecord) error {
	if err := r.client.SAdd(ctx, banSetKey(ban.SessionID), string(ban.ParticipantID)).Err(); err != nil {
		return fmt.Errorf("failed to add ban in Redis: %w", err)
	}
	return nil
}

func (r *BanRepository) IsBanned(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error) {
	banned, err := r.client.SIsMember(ctx, banSetKey(session), string(participant)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check ban in Redis: %w", err)
	}
	return banned, nil
}
