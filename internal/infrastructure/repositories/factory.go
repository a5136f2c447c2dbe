package repositories

import (
	"fmt"

	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/repositories/memory"
	"huddle/internal/infrastructure/repositories/postgres"
	redisrepo "huddle/internal/infrastructure/repositories/redis"
	"huddle/pkg/config"

	"go.uber.org/zap"
)

// Set bundles the repository implementations selected by configuration.
type Set struct {
	Participants ports.ParticipantRepository
	Bans         ports.BanRepository
	Timeline     ports.TimelineRepository

	closer func() error
}

// Close releases any underlying store connections.
func (s *Set) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// New builds the repository set for the configured backend.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Set, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return &Set{
			Participants: memory.NewParticipantRepository(),
			Bans:         memory.NewBanRepository(),
			Timeline:     memory.NewTimelineRepository(),
		}, nil

	case config.StoreRedis:
		client, err := redisrepo.NewClient(
			cfg.Store.Redis.Address,
			cfg.Store.Redis.Password,
			cfg.Store.Redis.DB,
			cfg.Store.Redis.PoolSize,
			logger,
		)
		if err != nil {
			return nil, err
		}
		return &Set{
			Participants: redisrepo.NewParticipantRepository(client),
			Bans:         redisrepo.NewBanRepository(client),
			Timeline:     redisrepo.NewTimelineRepository(client),
			closer:       client.Close,
		}, nil

	case config.StorePostgres:
		store, err := postgres.NewStore(cfg.Store.Postgres.DSN, logger)
		if err != nil {
			return nil, err
		}
		return &Set{
			Participants: postgres.NewParticipantRepository(store),
			Bans:         postgres.NewBanRepository(store),
			Timeline:     postgres.NewTimelineRepository(store),
			closer:       store.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
