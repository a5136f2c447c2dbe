package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/monitoring"
	"huddle/internal/infrastructure/repositories/memory"
	"huddle/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Prometheus collectors register globally; one instance serves every test.
var testMetrics = monitoring.NewCollector()

type testEnv struct {
	t      *testing.T
	server *httptest.Server
	auth   services.AuthService
	rooms  *services.RoomService
	bans   ports.BanRepository
	ws     *WebSocketServer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop().Sugar()
	auth := services.NewAuthService("test-secret", time.Hour)
	bans := memory.NewBanRepository()
	timing := services.NewTimingService(memory.NewTimelineRepository(), retry.Config{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}, logger)
	rooms := services.NewRoomService(memory.NewParticipantRepository(), bans, timing, logger)
	host := services.NewHostService(rooms, bans, logger)

	ws := NewWebSocketServer(rooms, host, auth, testMetrics, Options{
		PingInterval:    50 * time.Millisecond,
		PongTimeout:     5 * time.Second,
		WriteTimeout:    time.Second,
		MaxMessageBytes: 64 * 1024,
		ReactionWindow:  1234 * time.Millisecond,
	}, logger)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(server.Close)

	return &testEnv{t: t, server: server, auth: auth, rooms: rooms, bans: bans, ws: ws}
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(session domain.SessionID, participant domain.ParticipantID, host bool) *testClient {
	e.t.Helper()

	token, err := e.auth.GenerateJoinToken(session, participant, string(participant), host)
	require.NoError(e.t, err)

	endpoint := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { conn.Close() })

	payload, _ := json.Marshal(JoinPayload{Token: token})
	require.NoError(e.t, conn.WriteJSON(Envelope{Type: TypeJoin, Session: session, Payload: payload}))

	return &testClient{t: e.t, conn: conn}
}

func (c *testClient) read() (Envelope, error) {
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Envelope
	err := c.conn.ReadJSON(&msg)
	return msg, err
}

func (c *testClient) expect(msgType string) Envelope {
	c.t.Helper()
	msg, err := c.read()
	require.NoError(c.t, err, "expected %s frame", msgType)
	require.Equal(c.t, msgType, msg.Type)
	return msg
}

func (c *testClient) send(msg Envelope) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func snapshotOf(t *testing.T, msg Envelope) SnapshotPayload {
	t.Helper()
	var payload SnapshotPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload
}

func TestFirstJoin_SnapshotThenSessionStarted(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)

	snap := snapshotOf(t, alice.expect(TypeParticipantSnapshot))
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, domain.ParticipantID("alice"), snap.Participants[0].Participant)
	assert.True(t, snap.Participants[0].IsHost)

	started := alice.expect(TypeSessionStarted)
	var payload SessionStartedPayload
	require.NoError(t, json.Unmarshal(started.Payload, &payload))
	assert.Greater(t, payload.StartedAtMs, int64(0))
}

func TestSecondJoin_ArrivalBroadcast(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	snap := snapshotOf(t, bob.expect(TypeParticipantSnapshot))
	assert.Len(t, snap.Participants, 2, "joiner sees everyone including itself")

	arrived := alice.expect(TypeParticipantArrived)
	var info ParticipantInfo
	require.NoError(t, json.Unmarshal(arrived.Payload, &info))
	assert.Equal(t, domain.ParticipantID("bob"), info.Participant)
	assert.False(t, info.IsHost)
}

func TestBannedJoin_SilentlyClosed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.bans.Ban(context.Background(), &domain.BanRecord{
		SessionID: "room", ParticipantID: "mallory", BannedAt: time.Now(),
	}))

	mallory := env.dial("room", "mallory", false)

	// No error frame, no snapshot: the connection just dies.
	msg, err := mallory.read()
	assert.Error(t, err, "banned client must receive nothing, got %+v", msg)
}

func TestInvalidToken_Closed(t *testing.T) {
	env := newTestEnv(t)

	endpoint := "ws" + strings.TrimPrefix(env.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	defer conn.Close()

	payload, _ := json.Marshal(JoinPayload{Token: "garbage"})
	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeJoin, Session: "room", Payload: payload}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Envelope
	assert.Error(t, conn.ReadJSON(&msg))
}

func TestNegotiate_RelayedVerbatim(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	bob.expect(TypeParticipantSnapshot)
	alice.expect(TypeParticipantArrived)

	blob := json.RawMessage(`{"kind":"offer","sdp":{"type":"offer","sdp":"v=0 fake"}}`)
	alice.send(Envelope{Type: TypeNegotiate, Session: "room", To: "bob", Payload: blob})

	msg := bob.expect(TypeNegotiate)
	assert.Equal(t, domain.ParticipantID("alice"), msg.From)
	assert.Equal(t, domain.ParticipantID("bob"), msg.To)
	assert.JSONEq(t, string(blob), string(msg.Payload))
}

func TestNegotiate_AbsentTargetDropped(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	alice.send(Envelope{Type: TypeNegotiate, Session: "room", To: "ghost", Payload: json.RawMessage(`{}`)})

	// The channel stays healthy: a follow-up reaction still round-trips.
	reaction, _ := json.Marshal(ReactionPayload{Symbol: "wave"})
	alice.send(Envelope{Type: TypeReaction, Session: "room", Payload: reaction})

	msg := alice.expect(TypeReaction)
	var payload ReactionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "wave", payload.Symbol)
}

func TestReaction_ServerStampsDisplayWindow(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	reaction, _ := json.Marshal(ReactionPayload{Symbol: "clap", DisplayMs: 999999})
	alice.send(Envelope{Type: TypeReaction, Session: "room", Payload: reaction})

	msg := alice.expect(TypeReaction)
	var payload ReactionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "clap", payload.Symbol)
	assert.Equal(t, int64(1234), payload.DisplayMs, "client-supplied window is overwritten")
}

func TestStatusUpdate_BroadcastToAll(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	bob.expect(TypeParticipantSnapshot)
	alice.expect(TypeParticipantArrived)

	patch, _ := json.Marshal(map[string]bool{"muted": true})
	bob.send(Envelope{Type: TypeStatusUpdate, Session: "room", Payload: patch})

	for _, c := range []*testClient{alice, bob} {
		msg := c.expect(TypeStatusChanged)
		var payload StatusChangedPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, domain.ParticipantID("bob"), payload.Participant)
		assert.True(t, payload.Flags.Muted)
		assert.True(t, payload.Flags.VideoEnabled, "full flag set is carried, not the patch")
	}
}

func TestHostCommand_FromNonHostDropped(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	bob.expect(TypeParticipantSnapshot)
	alice.expect(TypeParticipantArrived)

	cmd, _ := json.Marshal(HostCommandPayload{Command: domain.CommandMuteAll})
	bob.send(Envelope{Type: TypeHostCommand, Session: "room", Payload: cmd})

	// Nothing is broadcast and nothing is echoed; a later reaction arrives
	// first on both channels.
	reaction, _ := json.Marshal(ReactionPayload{Symbol: "ok"})
	bob.send(Envelope{Type: TypeReaction, Session: "room", Payload: reaction})
	alice.expect(TypeReaction)
	bob.expect(TypeReaction)
}

func TestHostCommand_RemoveUserDetachesTarget(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	bob.expect(TypeParticipantSnapshot)
	alice.expect(TypeParticipantArrived)

	cmd, _ := json.Marshal(HostCommandPayload{Command: domain.CommandRemoveUser, Target: "bob"})
	alice.send(Envelope{Type: TypeHostCommand, Session: "room", Payload: cmd})

	// The target sees the command that removes it, then loses the transport.
	msg := bob.expect(TypeHostCommand)
	var payload HostCommandPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, domain.CommandRemoveUser, payload.Command)
	assert.Equal(t, domain.ParticipantID("bob"), payload.Target)

	_, err := bob.read()
	assert.Error(t, err, "removed participant's transport is closed")

	alice.expect(TypeHostCommand)

	snapshot, err := env.rooms.Snapshot(context.Background(), "room")
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
}

func TestHostCommand_EndMeetingClosesEveryone(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	bob.expect(TypeParticipantSnapshot)
	alice.expect(TypeParticipantArrived)

	cmd, _ := json.Marshal(HostCommandPayload{Command: domain.CommandEndMeeting})
	alice.send(Envelope{Type: TypeHostCommand, Session: "room", Payload: cmd})

	for _, c := range []*testClient{alice, bob} {
		c.expect(TypeHostCommand)
		ended := c.expect(TypeSessionEnded)
		var payload SessionEndedPayload
		require.NoError(t, json.Unmarshal(ended.Payload, &payload))
		assert.GreaterOrEqual(t, payload.DurationMs, int64(0))

		_, err := c.read()
		assert.Error(t, err)
	}

	assert.Empty(t, env.rooms.ActiveSessions(context.Background()))
}

func TestDisconnect_BroadcastsLeft(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	bob.expect(TypeParticipantSnapshot)
	alice.expect(TypeParticipantArrived)

	bob.conn.Close()

	msg := alice.expect(TypeParticipantLeft)
	var payload LeftPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, domain.ParticipantID("bob"), payload.Participant)
}

func TestLastLeave_EndsSession(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	alice.send(Envelope{Type: TypeLeave, Session: "room"})

	require.Eventually(t, func() bool {
		return len(env.rooms.ActiveSessions(context.Background())) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLeaveWithQueuedFrames_ReaderGoroutineExits(t *testing.T) {
	env := newTestEnv(t)
	base := runtime.NumGoroutine()

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	// A leave with a burst of frames queued behind it: the per-connection
	// reader must not stay parked on a full message buffer after the
	// dispatch loop has returned.
	alice.send(Envelope{Type: TypeLeave, Session: "room"})
	patch, _ := json.Marshal(map[string]bool{"muted": true})
	for i := 0; i < 24; i++ {
		_ = alice.conn.WriteJSON(Envelope{Type: TypeStatusUpdate, Session: "room", Payload: patch})
	}

	require.Eventually(t, func() bool {
		return len(env.rooms.ActiveSessions(context.Background())) == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= base+2
	}, 2*time.Second, 10*time.Millisecond, "connection goroutines must wind down after leave")
}

func TestRejoin_SupersedesTransportWithoutArrival(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial("room", "alice", true)
	alice.expect(TypeParticipantSnapshot)
	alice.expect(TypeSessionStarted)

	bob := env.dial("room", "bob", false)
	bob.expect(TypeParticipantSnapshot)
	alice.expect(TypeParticipantArrived)

	// Bob reconnects over a fresh transport while the old one lingers.
	bob2 := env.dial("room", "bob", false)
	snap := snapshotOf(t, bob2.expect(TypeParticipantSnapshot))
	assert.Len(t, snap.Participants, 2)

	// The superseded transport is closed by the server.
	_, err := bob.read()
	assert.Error(t, err)

	// No duplicate arrival reaches alice, and bob is still seated: a status
	// update flows through the new transport.
	patch, _ := json.Marshal(map[string]bool{"muted": true})
	bob2.send(Envelope{Type: TypeStatusUpdate, Session: "room", Payload: patch})

	msg := alice.expect(TypeStatusChanged)
	var status StatusChangedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &status))
	assert.Equal(t, domain.ParticipantID("bob"), status.Participant)
}
