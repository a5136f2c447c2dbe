package ports

import (
	"context"

	"huddle/internal/core/domain"
)

// JoinResult describes everything the transport layer needs to fan out after
// a successful join.
type JoinResult struct {
	Participant *domain.Participant
	// Rejoin is set when an active record already existed for the identity;
	// the arrival broadcast is suppressed in that case.
	Rejoin bool
	// Snapshot is the ordered list of active participants, including the
	// joiner, sent back to the joining client.
	Snapshot []*domain.Participant
	// Started is non-nil when this join opened the session lifetime.
	Started *domain.StartEvent
}

// LeaveResult describes the fan-out after a leave or disconnect.
type LeaveResult struct {
	// Left is false when the record was already inactive; the caller must
	// produce no side effects in that case.
	Left bool
	// Ended is non-nil when this leave emptied the session.
	Ended *domain.EndEvent
}

// CommandResult describes the fan-out after an authorized host command.
type CommandResult struct {
	Type   domain.HostCommand
	Target domain.ParticipantID
	// Detach lists participants whose transports must be removed from the
	// session broadcast group after the command broadcast.
	Detach []domain.ParticipantID
	// Ended is non-nil for end-meeting.
	Ended *domain.EndEvent
}

// RoomService is the authoritative participant registry for live sessions.
type RoomService interface {
	Join(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, displayName string, host bool) (*JoinResult, error)
	Leave(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*LeaveResult, error)
	UpdateStatus(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, patch domain.FlagPatch) (*domain.MediaFlags, error)
	Snapshot(ctx context.Context, session domain.SessionID) ([]*domain.Participant, error)
	ActiveSessions(ctx context.Context) []*domain.Session
}

// HostService validates and applies privileged session control commands.
type HostService interface {
	Issue(ctx context.Context, session domain.SessionID, issuer domain.ParticipantID, cmd domain.HostCommand, target domain.ParticipantID) (*CommandResult, error)
}
