package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/monitoring"
	"huddle/pkg/tracing"
	"huddle/pkg/utils"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tunes the per-connection transport behavior.
type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageBytes   int64
	ReactionWindow    time.Duration
	RateLimitEnabled  bool
	MessagesPerSecond float64
	Burst             int
}

// WebSocketServer owns the duplex signaling channel: one goroutine-driven
// read loop per connected transport, dispatching the typed message catalogue
// against the room, host and relay paths.
type WebSocketServer struct {
	rooms     ports.RoomService
	host      ports.HostService
	auth      services.AuthService
	directory *Directory
	metrics   *monitoring.Collector

	opts   Options
	logger *zap.SugaredLogger
}

func NewWebSocketServer(rooms ports.RoomService, host ports.HostService, auth services.AuthService, metrics *monitoring.Collector, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 * 1024
	}
	if opts.ReactionWindow <= 0 {
		opts.ReactionWindow = 5 * time.Second
	}

	return &WebSocketServer{
		rooms:     rooms,
		host:      host,
		auth:      auth,
		directory: NewDirectory(),
		metrics:   metrics,
		opts:      opts,
		logger:    logger,
	}
}

// Directory exposes the broadcast group, mainly for tests.
func (s *WebSocketServer) Directory() *Directory {
	return s.directory
}

// HandleWebSocket upgrades the transport and runs the connection lifecycle.
// The first frame must be a join carrying a valid token; identity and host
// status come from the signed claims, never from the client message.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(ws, s.opts.WriteTimeout)

	ws.SetReadLimit(s.opts.MaxMessageBytes)
	ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	claims, ok := s.awaitJoin(ws, conn)
	if !ok {
		conn.Close()
		return
	}

	session, participant := claims.Session, claims.Participant
	ctx := context.Background()

	result, err := s.rooms.Join(ctx, session, participant, claims.DisplayName, claims.Host)
	if err != nil {
		if errors.Is(err, domain.ErrBanned) {
			// Intentionally indistinguishable from a dead connection so the
			// banned client learns nothing.
			s.metrics.RecordBannedJoin()
			s.logger.Infow("banned identity dropped", "session", session, "participant", participant)
		} else {
			s.logger.Errorw("join failed", "session", session, "participant", participant, "error", err)
		}
		conn.Close()
		return
	}

	if prev := s.directory.Register(session, participant, conn); prev != nil {
		s.logger.Infow("closing superseded transport for reconnecting participant", "session", session, "participant", participant)
		prev.Close()
	}

	s.metrics.ParticipantConnected()
	s.metrics.RecordJoin(result.Rejoin)
	s.logger.Infow("participant connected", "session", session, "participant", participant, "rejoin", result.Rejoin)

	s.sendSnapshot(conn, session, result.Snapshot)
	if result.Started != nil {
		s.announceStart(result.Started)
	}
	if !result.Rejoin {
		s.directory.Broadcast(session, participant, &Envelope{
			Type:    TypeParticipantArrived,
			Session: session,
			Payload: mustMarshal(participantInfo(result.Participant)),
		})
	}

	s.readLoop(ctx, claims, ws, conn)

	// A single cleanup path serves explicit leave, host removal and
	// transport loss alike; Unregister keeps it one-shot per transport.
	s.finishLeave(ctx, session, participant, conn)
	s.metrics.ParticipantDisconnected()
	conn.Close()
	s.logger.Infow("participant disconnected", "session", session, "participant", participant)
}

func (s *WebSocketServer) awaitJoin(ws *websocket.Conn, conn *Conn) (*services.JoinClaims, bool) {
	var msg Envelope
	if err := ws.ReadJSON(&msg); err != nil {
		return nil, false
	}
	if msg.Type != TypeJoin {
		s.logger.Warnw("first frame was not a join", "type", msg.Type)
		return nil, false
	}

	var payload JoinPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Token == "" {
		s.logger.Warnw("join without token dropped")
		return nil, false
	}

	claims, err := s.auth.ValidateJoinToken(payload.Token)
	if err != nil {
		s.logger.Warnw("join token rejected", "error", err)
		return nil, false
	}
	if msg.Session != "" && msg.Session != claims.Session {
		s.logger.Warnw("join session mismatch", "claimed", claims.Session, "message", msg.Session)
		return nil, false
	}
	return claims, true
}

func (s *WebSocketServer) readLoop(ctx context.Context, claims *services.JoinClaims, ws *websocket.Conn, conn *Conn) {
	var limiter *rate.Limiter
	if s.opts.RateLimitEnabled {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}

	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan Envelope, 16)
	errorChan := make(chan error, 1)
	readerDone := make(chan struct{})
	defer close(readerDone)

	// The reader must never block on a channel send once the loop below has
	// returned, a leave frame with queued messages behind it would otherwise
	// park this goroutine forever.
	go func() {
		for {
			var msg Envelope
			if err := ws.ReadJSON(&msg); err != nil {
				select {
				case errorChan <- err:
				case <-readerDone:
				}
				return
			}
			ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
			select {
			case messageChan <- msg:
			case <-readerDone:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.logger.Warnw("message rate limit exceeded, dropping", "session", claims.Session, "participant", claims.Participant, "type", msg.Type)
				continue
			}
			if done := s.handleMessage(ctx, claims, conn, msg); done {
				return
			}

		case <-pingTicker.C:
			if err := conn.Ping(); err != nil {
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("transport read error", "session", claims.Session, "participant", claims.Participant, "error", err)
			}
			return
		}
	}
}

// handleMessage dispatches one inbound frame. Malformed or unauthorized
// frames are logged and dropped; nothing a single client sends can take the
// shared session state down. Returns true when the connection should close.
func (s *WebSocketServer) handleMessage(ctx context.Context, claims *services.JoinClaims, conn *Conn, msg Envelope) bool {
	session, participant := claims.Session, claims.Participant

	switch msg.Type {
	case TypeLeave:
		s.finishLeave(ctx, session, participant, conn)
		return true

	case TypeStatusUpdate:
		s.handleStatusUpdate(ctx, session, participant, msg)

	case TypeNegotiate:
		s.relay(session, participant, msg)

	case TypeHostCommand:
		s.handleHostCommand(ctx, session, participant, msg)

	case TypeReaction:
		s.handleReaction(session, participant, msg)

	case TypeJoin:
		s.logger.Debugw("duplicate join frame ignored", "session", session, "participant", participant)

	default:
		s.logger.Debugw("unknown message type dropped", "session", session, "type", msg.Type)
	}
	return false
}

func (s *WebSocketServer) handleStatusUpdate(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, msg Envelope) {
	var patch domain.FlagPatch
	if err := json.Unmarshal(msg.Payload, &patch); err != nil || patch.Empty() {
		s.logger.Debugw("invalid status update dropped", "session", session, "participant", participant)
		return
	}

	flags, err := s.rooms.UpdateStatus(ctx, session, participant, patch)
	if err != nil {
		s.logger.Warnw("status update failed", "session", session, "participant", participant, "error", err)
		return
	}

	s.directory.Broadcast(session, "", &Envelope{
		Type:    TypeStatusChanged,
		Session: session,
		Payload: mustMarshal(StatusChangedPayload{Participant: participant, Flags: *flags}),
	})
}

// relay forwards a negotiation payload to exactly one named endpoint. The
// payload is opaque: no inspection, no validation, no storage. A missing
// target transport drops the message; the next snapshot exchange
// self-corrects the sender's view.
func (s *WebSocketServer) relay(session domain.SessionID, from domain.ParticipantID, msg Envelope) {
	if msg.To == "" {
		s.logger.Debugw("negotiate without target dropped", "session", session, "from", from)
		s.metrics.RecordRelayDrop()
		return
	}

	target, ok := s.directory.Lookup(session, msg.To)
	if !ok {
		s.logger.Debugw("negotiate target not connected, dropping", "session", session, "from", from, "to", msg.To)
		s.metrics.RecordRelayDrop()
		return
	}

	err := target.Send(&Envelope{
		Type:    TypeNegotiate,
		Session: session,
		From:    from,
		To:      msg.To,
		Payload: msg.Payload,
	})
	if err != nil {
		s.metrics.RecordRelayDrop()
		return
	}
	s.metrics.RecordRelay()
}

func (s *WebSocketServer) handleHostCommand(ctx context.Context, session domain.SessionID, issuer domain.ParticipantID, msg Envelope) {
	var payload HostCommandPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Debugw("invalid host command dropped", "session", session, "issuer", issuer)
		return
	}

	ctx, span := tracing.StartSpan(ctx, "signal.host_command")
	span.SetAttributes(
		attribute.String("session", string(session)),
		attribute.String("command", string(payload.Command)),
	)
	defer span.End()

	result, err := s.host.Issue(ctx, session, issuer, payload.Command, payload.Target)
	if err != nil {
		// Rejections are not echoed back; a compromised client learns
		// nothing about the enforcement internals.
		tracing.RecordError(ctx, err)
		s.logger.Warnw("host command dropped", "session", session, "issuer", issuer, "command", payload.Command, "error", err)
		return
	}

	s.metrics.RecordHostCommand(string(result.Type))

	s.directory.Broadcast(session, "", &Envelope{
		Type:    TypeHostCommand,
		Session: session,
		From:    issuer,
		Payload: mustMarshal(HostCommandPayload{Command: result.Type, Target: result.Target}),
	})
	if result.Ended != nil {
		s.announceEnd(result.Ended)
	}
	for _, id := range result.Detach {
		if conn := s.directory.Detach(session, id); conn != nil {
			conn.Close()
		}
	}
}

func (s *WebSocketServer) handleReaction(session domain.SessionID, participant domain.ParticipantID, msg Envelope) {
	var payload ReactionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Symbol == "" {
		return
	}

	payload.DisplayMs = s.opts.ReactionWindow.Milliseconds()
	s.metrics.RecordReaction()
	s.directory.Broadcast(session, "", &Envelope{
		Type:    TypeReaction,
		Session: session,
		From:    participant,
		Payload: mustMarshal(payload),
	})
}

// finishLeave runs the shared leave path. The Unregister guard makes it
// idempotent per transport and keeps a superseded connection's death from
// tearing down the seat its successor now holds.
func (s *WebSocketServer) finishLeave(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, conn *Conn) {
	if !s.directory.Unregister(session, participant, conn) {
		return
	}

	result, err := s.rooms.Leave(ctx, session, participant)
	if err != nil {
		s.logger.Errorw("leave failed", "session", session, "participant", participant, "error", err)
		return
	}
	if !result.Left {
		return
	}

	s.directory.Broadcast(session, participant, &Envelope{
		Type:    TypeParticipantLeft,
		Session: session,
		Payload: mustMarshal(LeftPayload{Participant: participant}),
	})
	if result.Ended != nil {
		s.announceEnd(result.Ended)
	}
}

func (s *WebSocketServer) sendSnapshot(conn *Conn, session domain.SessionID, snapshot []*domain.Participant) {
	payload := SnapshotPayload{Participants: make([]ParticipantInfo, 0, len(snapshot))}
	for _, p := range snapshot {
		payload.Participants = append(payload.Participants, participantInfo(p))
	}

	err := conn.Send(&Envelope{
		Type:    TypeParticipantSnapshot,
		Session: session,
		Payload: mustMarshal(payload),
	})
	if err != nil {
		s.logger.Debugw("snapshot send failed", "session", session, "error", err)
	}
}

func (s *WebSocketServer) announceStart(event *domain.StartEvent) {
	s.metrics.RecordSessionStarted()
	s.directory.Broadcast(event.SessionID, "", &Envelope{
		Type:    TypeSessionStarted,
		Session: event.SessionID,
		Payload: mustMarshal(SessionStartedPayload{StartedAtMs: utils.Millis(event.StartedAt)}),
	})
}

func (s *WebSocketServer) announceEnd(event *domain.EndEvent) {
	s.metrics.RecordSessionEnded(event.Duration)
	s.directory.Broadcast(event.SessionID, "", &Envelope{
		Type:    TypeSessionEnded,
		Session: event.SessionID,
		Payload: mustMarshal(SessionEndedPayload{
			EndedAtMs:  utils.Millis(event.EndedAt),
			DurationMs: event.Duration.Milliseconds(),
		}),
	})
}

// HealthCheck reports transport liveness for load balancers.
func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": s.directory.ConnectionCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
