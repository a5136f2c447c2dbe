package services

import (
	"context"
	"testing"
	"time"

	"huddle/internal/core/domain"
	"huddle/pkg/retry"
	"huddle/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func newTestRoomService(t *testing.T) (*RoomService, *MockParticipantRepository, *MockBanRepository, *MockTimelineRepository) {
	t.Helper()

	participants := new(MockParticipantRepository)
	bans := new(MockBanRepository)
	timeline := new(MockTimelineRepository)

	logger := zap.NewNop().Sugar()
	timing := NewTimingService(timeline, fastRetry(), logger)
	rooms := NewRoomService(participants, bans, timing, logger)
	return rooms, participants, bans, timeline
}

func allowStoreWrites(participants *MockParticipantRepository, timeline *MockTimelineRepository) {
	participants.On("Upsert", mock.Anything, mock.Anything).Return(nil).Maybe()
	participants.On("MarkLeft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	participants.On("MarkAllLeft", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	timeline.On("RecordStart", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	timeline.On("RecordEnd", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

func TestJoin_FirstParticipantStartsSession(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	result, err := rooms.Join(context.Background(), "room", "alice", "Alice", true)
	require.NoError(t, err)

	assert.False(t, result.Rejoin)
	require.NotNil(t, result.Started, "first join should open the session")
	assert.Equal(t, domain.SessionID("room"), result.Started.SessionID)
	require.Len(t, result.Snapshot, 1)
	assert.Equal(t, domain.ParticipantID("alice"), result.Snapshot[0].ID)
	assert.True(t, result.Snapshot[0].Host)
	assert.False(t, result.Snapshot[0].Flags.Muted)
	assert.True(t, result.Snapshot[0].Flags.VideoEnabled)
	assert.False(t, result.Snapshot[0].Flags.ScreenSharing)
}

func TestJoin_SecondParticipantDoesNotRestart(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	_, err := rooms.Join(ctx, "room", "alice", "Alice", true)
	require.NoError(t, err)

	result, err := rooms.Join(ctx, "room", "bob", "Bob", false)
	require.NoError(t, err)

	assert.Nil(t, result.Started)
	require.Len(t, result.Snapshot, 2)
	assert.Equal(t, domain.ParticipantID("alice"), result.Snapshot[0].ID)
	assert.Equal(t, domain.ParticipantID("bob"), result.Snapshot[1].ID)
}

func TestJoin_SameIdentityIsRejoin(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	_, err := rooms.Join(ctx, "room", "alice", "Alice", false)
	require.NoError(t, err)

	result, err := rooms.Join(ctx, "room", "alice", "Alice", false)
	require.NoError(t, err)

	assert.True(t, result.Rejoin)
	assert.Nil(t, result.Started, "a rejoin never reopens the session")
	assert.Len(t, result.Snapshot, 1)
}

func TestJoin_BannedIdentityRejected(t *testing.T) {
	rooms, _, bans, _ := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, domain.SessionID("room"), domain.ParticipantID("mallory")).Return(true, nil)

	result, err := rooms.Join(context.Background(), "room", "mallory", "Mallory", false)
	assert.ErrorIs(t, err, domain.ErrBanned)
	assert.Nil(t, result)
}

func TestLeave_LastParticipantEndsSession(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	_, err := rooms.Join(ctx, "room", "alice", "Alice", false)
	require.NoError(t, err)
	_, err = rooms.Join(ctx, "room", "bob", "Bob", false)
	require.NoError(t, err)

	result, err := rooms.Leave(ctx, "room", "alice")
	require.NoError(t, err)
	assert.True(t, result.Left)
	assert.Nil(t, result.Ended, "session still has a participant")

	result, err = rooms.Leave(ctx, "room", "bob")
	require.NoError(t, err)
	assert.True(t, result.Left)
	require.NotNil(t, result.Ended)
	assert.Equal(t, domain.SessionID("room"), result.Ended.SessionID)
	assert.GreaterOrEqual(t, result.Ended.Duration, time.Duration(0))
}

func TestLeave_IsIdempotent(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	_, err := rooms.Join(ctx, "room", "alice", "Alice", false)
	require.NoError(t, err)

	first, err := rooms.Leave(ctx, "room", "alice")
	require.NoError(t, err)
	assert.True(t, first.Left)
	require.NotNil(t, first.Ended)

	second, err := rooms.Leave(ctx, "room", "alice")
	require.NoError(t, err)
	assert.False(t, second.Left, "second leave must be a no-op")
	assert.Nil(t, second.Ended)
}

func TestLeave_UnknownSessionIsNoOp(t *testing.T) {
	rooms, _, _, _ := newTestRoomService(t)

	result, err := rooms.Leave(context.Background(), "ghost", "alice")
	require.NoError(t, err)
	assert.False(t, result.Left)
}

func TestSessionLifetime_EndsOncePerTransition(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	starts, ends := 0, 0

	for i := 0; i < 3; i++ {
		join, err := rooms.Join(ctx, "room", "alice", "Alice", false)
		require.NoError(t, err)
		if join.Started != nil {
			starts++
		}
		leave, err := rooms.Leave(ctx, "room", "alice")
		require.NoError(t, err)
		if leave.Ended != nil {
			ends++
		}
	}

	assert.Equal(t, 3, starts, "each empty-to-occupied transition starts a lifetime")
	assert.Equal(t, 3, ends, "each occupied-to-empty transition ends it")
}

func TestUpdateStatus_PartialPatchKeepsOtherFlags(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	_, err := rooms.Join(ctx, "room", "alice", "Alice", false)
	require.NoError(t, err)

	muted := true
	flags, err := rooms.UpdateStatus(ctx, "room", "alice", domain.FlagPatch{Muted: &muted})
	require.NoError(t, err)

	assert.True(t, flags.Muted)
	assert.True(t, flags.VideoEnabled, "untouched flag must keep its value")
	assert.False(t, flags.ScreenSharing)

	sharing := true
	flags, err = rooms.UpdateStatus(ctx, "room", "alice", domain.FlagPatch{ScreenSharing: &sharing})
	require.NoError(t, err)
	assert.True(t, flags.Muted, "earlier patch survives later ones")
	assert.True(t, flags.ScreenSharing)
}

func TestUpdateStatus_UnknownParticipant(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	_, err := rooms.Join(ctx, "room", "alice", "Alice", false)
	require.NoError(t, err)

	muted := true
	_, err = rooms.UpdateStatus(ctx, "room", "ghost", domain.FlagPatch{Muted: &muted})
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)

	_, err = rooms.UpdateStatus(ctx, "nowhere", "alice", domain.FlagPatch{Muted: &muted})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSnapshot_OrderedByJoinTime(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	utils.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	defer func() { utils.Now = time.Now }()

	ctx := context.Background()
	for _, id := range []domain.ParticipantID{"carol", "alice", "bob"} {
		_, err := rooms.Join(ctx, "room", id, string(id), false)
		require.NoError(t, err)
	}

	snapshot, err := rooms.Snapshot(ctx, "room")
	require.NoError(t, err)
	require.Len(t, snapshot, 3)
	assert.Equal(t, domain.ParticipantID("carol"), snapshot[0].ID)
	assert.Equal(t, domain.ParticipantID("alice"), snapshot[1].ID)
	assert.Equal(t, domain.ParticipantID("bob"), snapshot[2].ID)
}

func TestActiveSessions(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	allowStoreWrites(participants, timeline)

	ctx := context.Background()
	_, err := rooms.Join(ctx, "beta", "bob", "Bob", false)
	require.NoError(t, err)
	_, err = rooms.Join(ctx, "alpha", "alice", "Alice", false)
	require.NoError(t, err)

	sessions := rooms.ActiveSessions(ctx)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.SessionID("alpha"), sessions[0].ID)
	assert.Equal(t, domain.SessionID("beta"), sessions[1].ID)

	_, err = rooms.Leave(ctx, "alpha", "alice")
	require.NoError(t, err)
	assert.Len(t, rooms.ActiveSessions(ctx), 1)
}

func TestTimingWrites_FailuresDoNotBlockLifecycle(t *testing.T) {
	rooms, participants, bans, timeline := newTestRoomService(t)
	bans.On("IsBanned", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	participants.On("Upsert", mock.Anything, mock.Anything).Return(nil).Maybe()
	participants.On("MarkLeft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	timeline.On("RecordStart", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	timeline.On("RecordEnd", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	ctx := context.Background()
	join, err := rooms.Join(ctx, "room", "alice", "Alice", false)
	require.NoError(t, err)
	assert.NotNil(t, join.Started, "event fires even when the write fails")

	leave, err := rooms.Leave(ctx, "room", "alice")
	require.NoError(t, err)
	assert.NotNil(t, leave.Ended)
}
