package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// ParticipantRepository persists participant records with a unique
// constraint on (session_id, participant_id). A rejoin after a leave clears
// the leave timestamp on the same row instead of inserting a duplicate.
type ParticipantRepository struct {
	store *Store
}

func NewParticipantRepository(store *Store) ports.ParticipantRepository {
	return &ParticipantRepository{store: store}
}

func (r *ParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO participants
			(session_id, participant_id, display_name, is_host, muted, video_enabled, screen_sharing, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, participant_id) DO UPDATE SET
			display_name   = EXCLUDED.display_name,
			is_host        = EXCLUDED.is_host,
			muted          = EXCLUDED.muted,
			video_enabled  = EXCLUDED.video_enabled,
			screen_sharing = EXCLUDED.screen_sharing,
			joined_at      = EXCLUDED.joined_at,
			left_at        = EXCLUDED.left_at`,
		p.SessionID, p.ID, p.DisplayName, p.Host,
		p.Flags.Muted, p.Flags.VideoEnabled, p.Flags.ScreenSharing,
		p.JoinedAt, p.LeftAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepository) Get(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*domain.Participant, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT session_id, participant_id, display_name, is_host, muted, video_enabled, screen_sharing, joined_at, left_at
		FROM participants
		WHERE session_id = $1 AND participant_id = $2`,
		session, participant,
	)

	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func (r *ParticipantRepository) FindActive(ctx context.Context, session domain.SessionID) ([]*domain.Participant, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT session_id, participant_id, display_name, is_host, muted, video_enabled, screen_sharing, joined_at, left_at
		FROM participants
		WHERE session_id = $1 AND left_at IS NULL
		ORDER BY joined_at`,
		session,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active participants: %w", err)
	}
	defer rows.Close()

	var active []*domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		active = append(active, p)
	}
	return active, rows.Err()
}

func (r *ParticipantRepository) MarkLeft(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, at time.Time) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE participants SET left_at = $3
		WHERE session_id = $1 AND participant_id = $2 AND left_at IS NULL`,
		session, participant, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}
	return nil
}

func (r *ParticipantRepository) MarkAllLeft(ctx context.Context, session domain.SessionID, at time.Time) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE participants SET left_at = $2
		WHERE session_id = $1 AND left_at IS NULL`,
		session, at,
	)
	if err != nil {
		return fmt.Errorf("failed to close session participants: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParticipant(row rowScanner) (*domain.Participant, error) {
	var p domain.Participant
	var leftAt sql.NullTime

	err := row.Scan(
		&p.SessionID, &p.ID, &p.DisplayName, &p.Host,
		&p.Flags.Muted, &p.Flags.VideoEnabled, &p.Flags.ScreenSharing,
		&p.JoinedAt, &leftAt,
	)
	if err != nil {
		return nil, err
	}
	if leftAt.Valid {
		p.LeftAt = &leftAt.Time
	}
	return &p, nil
}
