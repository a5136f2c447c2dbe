package memory

import (
	"context"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// BanRepository keeps per-session exclusions in memory. Bans last until the
// process restarts; no removal path exists.
type BanRepository struct {
	banned map[seatKey]*domain.BanRecord
	mu     sync.RWMutex
}

func NewBanRepository() ports.BanRepository {
	return &BanRepository{
		banned: make(map[seatKey]*domain.BanRecord),
	}
}

func (r *BanRepository) Ban(ctx context.Context, ban *domain.BanRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seatKey{ban.SessionID, ban.ParticipantID}
	if _, exists := r.banned[key]; !exists {
		clone := *ban
		r.banned[key] = &clone
	}
	return nil
}

func (r *BanRepository) IsBanned(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, banned := r.banned[seatKey{session, participant}]
	return banned, nil
}
