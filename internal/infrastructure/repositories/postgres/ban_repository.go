package postgres

import (
	"context"
	"fmt"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type BanRepository struct {
	store *Store
}

func NewBanRepository(store *Store) ports.BanRepository {
	return &BanRepository{store: store}
}

func (r *BanRepository) Ban(ctx context.Context, ban *domain.BanRecord) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO session_bans (session_id, participant_id, banned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, participant_id) DO NOTHING`,
		ban.SessionID, ban.ParticipantID, ban.BannedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ban: %w", err)
	}
	return nil
}

func (r *BanRepository) IsBanned(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error) {
	var banned bool
	err := r.store.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM session_bans
			WHERE session_id = $1 AND participant_id = $2
		)`,
		session, participant,
	).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("failed to check ban: %w", err)
	}
	return banned, nil
}
