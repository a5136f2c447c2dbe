package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store wraps the shared database handle for the postgres repositories.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to postgres")
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS participants (
			id             BIGSERIAL PRIMARY KEY,
			session_id     TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			display_name   TEXT NOT NULL DEFAULT '',
			is_host        BOOLEAN NOT NULL DEFAULT FALSE,
			muted          BOOLEAN NOT NULL DEFAULT FALSE,
			video_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
			screen_sharing BOOLEAN NOT NULL DEFAULT FALSE,
			joined_at      TIMESTAMPTZ NOT NULL,
			left_at        TIMESTAMPTZ,
			UNIQUE (session_id, participant_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_session_active
			ON participants (session_id) WHERE left_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS session_bans (
			session_id     TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			banned_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, participant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS session_timeline (
			session_id  TEXT PRIMARY KEY,
			started_at  TIMESTAMPTZ NOT NULL,
			ended_at    TIMESTAMPTZ,
			duration_ms BIGINT
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
