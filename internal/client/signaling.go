package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/infrastructure/signal"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers receives server-pushed events. Nil handlers are skipped. All
// handlers run on the read loop goroutine; they must not block.
type Handlers struct {
	OnSnapshot       func(participants []signal.ParticipantInfo)
	OnArrived        func(participant signal.ParticipantInfo)
	OnLeft           func(participant domain.ParticipantID)
	OnStatusChanged  func(update signal.StatusChangedPayload)
	OnNegotiate      func(from domain.ParticipantID, payload json.RawMessage)
	OnHostCommand    func(from domain.ParticipantID, command signal.HostCommandPayload)
	OnReaction       func(from domain.ParticipantID, reaction signal.ReactionPayload)
	OnSessionStarted func(event signal.SessionStartedPayload)
	OnSessionEnded   func(event signal.SessionEndedPayload)
}

// Client is the signaling side of a session participant: one websocket to
// the coordination server carrying the typed message catalogue.
type Client struct {
	conn    *websocket.Conn
	session domain.SessionID
	local   domain.ParticipantID

	handlers Handlers

	writeMu sync.Mutex
	closed  bool

	logger *zap.SugaredLogger
}

// Dial connects to the signaling endpoint and performs the join handshake.
// Identity comes entirely from the token; session and local are only used to
// label outgoing frames and must match the token's claims.
func Dial(ctx context.Context, endpoint string, session domain.SessionID, local domain.ParticipantID, token string, logger *zap.SugaredLogger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling endpoint: %w", err)
	}

	c := &Client{
		conn:    conn,
		session: session,
		local:   local,
		logger:  logger,
	}

	join, _ := json.Marshal(signal.JoinPayload{Token: token})
	if err := c.send(&signal.Envelope{
		Type:    signal.TypeJoin,
		Session: session,
		Payload: join,
	}); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// SetHandlers must be called before Run.
func (c *Client) SetHandlers(handlers Handlers) {
	c.handlers = handlers
}

func (c *Client) Session() domain.SessionID   { return c.session }
func (c *Client) Local() domain.ParticipantID { return c.local }

// Run reads server frames until the connection closes or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		var msg signal.Envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg signal.Envelope) {
	switch msg.Type {
	case signal.TypeParticipantSnapshot:
		var payload signal.SnapshotPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.logger.Warnw("malformed snapshot", "error", err)
			return
		}
		if c.handlers.OnSnapshot != nil {
			c.handlers.OnSnapshot(payload.Participants)
		}

	case signal.TypeParticipantArrived:
		var payload signal.ParticipantInfo
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnArrived != nil {
			c.handlers.OnArrived(payload)
		}

	case signal.TypeParticipantLeft:
		var payload signal.LeftPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnLeft != nil {
			c.handlers.OnLeft(payload.Participant)
		}

	case signal.TypeStatusChanged:
		var payload signal.StatusChangedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnStatusChanged != nil {
			c.handlers.OnStatusChanged(payload)
		}

	case signal.TypeNegotiate:
		if c.handlers.OnNegotiate != nil {
			c.handlers.OnNegotiate(msg.From, msg.Payload)
		}

	case signal.TypeHostCommand:
		var payload signal.HostCommandPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnHostCommand != nil {
			c.handlers.OnHostCommand(msg.From, payload)
		}

	case signal.TypeReaction:
		var payload signal.ReactionPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnReaction != nil {
			c.handlers.OnReaction(msg.From, payload)
		}

	case signal.TypeSessionStarted:
		var payload signal.SessionStartedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnSessionStarted != nil {
			c.handlers.OnSessionStarted(payload)
		}

	case signal.TypeSessionEnded:
		var payload signal.SessionEndedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnSessionEnded != nil {
			c.handlers.OnSessionEnded(payload)
		}

	default:
		c.logger.Debugw("unknown server frame ignored", "type", msg.Type)
	}
}

// SendNegotiate relays an opaque negotiation payload to one participant.
func (c *Client) SendNegotiate(to domain.ParticipantID, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(&signal.Envelope{
		Type:    signal.TypeNegotiate,
		Session: c.session,
		To:      to,
		Payload: raw,
	})
}

func (c *Client) SendStatusUpdate(patch domain.FlagPatch) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return c.send(&signal.Envelope{
		Type:    signal.TypeStatusUpdate,
		Session: c.session,
		Payload: raw,
	})
}

func (c *Client) SendHostCommand(cmd domain.HostCommand, target domain.ParticipantID) error {
	raw, err := json.Marshal(signal.HostCommandPayload{Command: cmd, Target: target})
	if err != nil {
		return err
	}
	return c.send(&signal.Envelope{
		Type:    signal.TypeHostCommand,
		Session: c.session,
		Payload: raw,
	})
}

func (c *Client) SendReaction(symbol string) error {
	raw, err := json.Marshal(signal.ReactionPayload{Symbol: symbol})
	if err != nil {
		return err
	}
	return c.send(&signal.Envelope{
		Type:    signal.TypeReaction,
		Session: c.session,
		Payload: raw,
	})
}

// Leave announces departure and closes the transport.
func (c *Client) Leave() error {
	err := c.send(&signal.Envelope{
		Type:    signal.TypeLeave,
		Session: c.session,
	})
	c.Close()
	return err
}

func (c *Client) Close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.conn.Close()
}

func (c *Client) send(msg *signal.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return domain.ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}
