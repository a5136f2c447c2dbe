package signal

import (
	"encoding/json"

	"huddle/internal/core/domain"
)

// Message types on the duplex channel. Client-originated kinds are handled
// by the per-connection read loop; the rest are server-originated.
const (
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeStatusUpdate = "status-update"
	TypeNegotiate    = "negotiate"
	TypeHostCommand  = "host-command"
	TypeReaction     = "reaction"

	TypeParticipantSnapshot = "participant-snapshot"
	TypeParticipantArrived  = "participant-arrived"
	TypeParticipantLeft     = "participant-left"
	TypeStatusChanged       = "status-changed"
	TypeSessionStarted      = "session-started"
	TypeSessionEnded        = "session-ended"
)

// Envelope is the wire frame for every message in both directions. The
// negotiation payload is never inspected by the server.
type Envelope struct {
	Type    string               `json:"type"`
	Session domain.SessionID     `json:"session,omitempty"`
	From    domain.ParticipantID `json:"from,omitempty"`
	To      domain.ParticipantID `json:"to,omitempty"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

type JoinPayload struct {
	Token string `json:"token"`
}

// ParticipantInfo describes one seat in snapshot and arrival messages.
type ParticipantInfo struct {
	Participant domain.ParticipantID `json:"participant"`
	DisplayName string               `json:"displayName"`
	IsHost      bool                 `json:"isHost"`
	Flags       domain.MediaFlags    `json:"flags"`
	JoinedAtMs  int64                `json:"joinedAtMs"`
}

type SnapshotPayload struct {
	Participants []ParticipantInfo `json:"participants"`
}

type LeftPayload struct {
	Participant domain.ParticipantID `json:"participant"`
}

type StatusChangedPayload struct {
	Participant domain.ParticipantID `json:"participant"`
	Flags       domain.MediaFlags    `json:"flags"`
}

type HostCommandPayload struct {
	Command domain.HostCommand   `json:"command"`
	Target  domain.ParticipantID `json:"target,omitempty"`
}

type ReactionPayload struct {
	Symbol string `json:"symbol"`
	// DisplayMs is stamped by the server so clients expire the reaction
	// after a uniform window. Reactions are never persisted.
	DisplayMs int64 `json:"displayMs,omitempty"`
}

type SessionStartedPayload struct {
	StartedAtMs int64 `json:"startedAtMs"`
}

type SessionEndedPayload struct {
	EndedAtMs  int64 `json:"endedAtMs"`
	DurationMs int64 `json:"durationMs"`
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func participantInfo(p *domain.Participant) ParticipantInfo {
	return ParticipantInfo{
		Participant: p.ID,
		DisplayName: p.DisplayName,
		IsHost:      p.Host,
		Flags:       p.Flags,
		JoinedAtMs:  p.JoinedAt.UnixMilli(),
	}
}
