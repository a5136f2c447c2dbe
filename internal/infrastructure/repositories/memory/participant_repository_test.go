package memory

import (
	"context"
	"testing"
	"time"

	"huddle/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seat(session domain.SessionID, id domain.ParticipantID) *domain.Participant {
	return &domain.Participant{
		SessionID:   session,
		ID:          id,
		DisplayName: string(id),
		Flags:       domain.DefaultMediaFlags(),
		JoinedAt:    time.Now(),
	}
}

func TestParticipantRepository_UpsertAndGet(t *testing.T) {
	repo := NewParticipantRepository()
	ctx := context.Background()

	original := seat("room", "alice")
	require.NoError(t, repo.Upsert(ctx, original))

	// The store keeps its own copy; mutating the caller's struct must not
	// leak through.
	original.DisplayName = "changed"

	got, err := repo.Get(ctx, "room", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.DisplayName)
	assert.Nil(t, got.LeftAt)
}

func TestParticipantRepository_GetUnknown(t *testing.T) {
	repo := NewParticipantRepository()

	_, err := repo.Get(context.Background(), "room", "ghost")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestParticipantRepository_FindActiveSkipsLeft(t *testing.T) {
	repo := NewParticipantRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, seat("room", "alice")))
	require.NoError(t, repo.Upsert(ctx, seat("room", "bob")))
	require.NoError(t, repo.Upsert(ctx, seat("other", "carol")))
	require.NoError(t, repo.MarkLeft(ctx, "room", "bob", time.Now()))

	active, err := repo.FindActive(ctx, "room")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.ParticipantID("alice"), active[0].ID)
}

func TestParticipantRepository_MarkLeftKeepsFirstTimestamp(t *testing.T) {
	repo := NewParticipantRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, seat("room", "alice")))

	first := time.Now()
	require.NoError(t, repo.MarkLeft(ctx, "room", "alice", first))
	require.NoError(t, repo.MarkLeft(ctx, "room", "alice", first.Add(time.Hour)))

	got, err := repo.Get(ctx, "room", "alice")
	require.NoError(t, err)
	require.NotNil(t, got.LeftAt)
	assert.True(t, got.LeftAt.Equal(first))
}

func TestParticipantRepository_MarkLeftUnknown(t *testing.T) {
	repo := NewParticipantRepository()

	err := repo.MarkLeft(context.Background(), "room", "ghost", time.Now())
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestParticipantRepository_MarkAllLeft(t *testing.T) {
	repo := NewParticipantRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, seat("room", "alice")))
	require.NoError(t, repo.Upsert(ctx, seat("room", "bob")))
	require.NoError(t, repo.Upsert(ctx, seat("other", "carol")))

	require.NoError(t, repo.MarkAllLeft(ctx, "room", time.Now()))

	active, err := repo.FindActive(ctx, "room")
	require.NoError(t, err)
	assert.Empty(t, active)

	other, err := repo.FindActive(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, other, 1, "other sessions untouched")
}

func TestParticipantRepository_RejoinReopensSeat(t *testing.T) {
	repo := NewParticipantRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, seat("room", "alice")))
	require.NoError(t, repo.MarkLeft(ctx, "room", "alice", time.Now()))
	require.NoError(t, repo.Upsert(ctx, seat("room", "alice")))

	active, err := repo.FindActive(ctx, "room")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
