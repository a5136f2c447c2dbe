package domain

import "time"

// StartEvent is emitted exactly once per session lifetime, when the active
// participant count transitions from zero to one.
type StartEvent struct {
	SessionID SessionID
	StartedAt time.Time
}

// EndEvent is emitted exactly once per session lifetime, when the active
// participant count transitions back to zero or a host ends the meeting.
type EndEvent struct {
	SessionID SessionID
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}
