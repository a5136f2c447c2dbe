package domain

import "time"

type SessionID string
type ParticipantID string

// Session is the in-memory record of one meeting lifetime. It is created on
// the first join and deleted when the active participant set empties; a later
// rejoin produces a fresh Session with a fresh start timestamp.
type Session struct {
	ID        SessionID
	StartedAt time.Time
	EndedAt   *time.Time
}

// MediaFlags are the three independent capability flags every participant
// carries. New participants start unmuted with video on and no screen share.
type MediaFlags struct {
	Muted         bool `json:"muted"`
	VideoEnabled  bool `json:"videoEnabled"`
	ScreenSharing bool `json:"screenSharing"`
}

func DefaultMediaFlags() MediaFlags {
	return MediaFlags{Muted: false, VideoEnabled: true, ScreenSharing: false}
}

// FlagPatch is a partial update of MediaFlags. Nil fields are left untouched.
type FlagPatch struct {
	Muted         *bool `json:"muted,omitempty"`
	VideoEnabled  *bool `json:"videoEnabled,omitempty"`
	ScreenSharing *bool `json:"screenSharing,omitempty"`
}

// Apply mutates only the supplied subset of flags and returns the result.
func (p FlagPatch) Apply(flags MediaFlags) MediaFlags {
	if p.Muted != nil {
		flags.Muted = *p.Muted
	}
	if p.VideoEnabled != nil {
		flags.VideoEnabled = *p.VideoEnabled
	}
	if p.ScreenSharing != nil {
		flags.ScreenSharing = *p.ScreenSharing
	}
	return flags
}

func (p FlagPatch) Empty() bool {
	return p.Muted == nil && p.VideoEnabled == nil && p.ScreenSharing == nil
}

// Participant is one identity's presence within a session. At most one active
// record (LeftAt == nil) may exist per (session, participant) pair; a rejoin
// updates the existing record instead of creating a duplicate.
type Participant struct {
	SessionID     SessionID     `json:"session_id"`
	ID            ParticipantID `json:"participant_id"`
	DisplayName   string        `json:"display_name"`
	Host          bool          `json:"host"`
	Flags         MediaFlags    `json:"flags"`
	JoinedAt      time.Time     `json:"joined_at"`
	LeftAt        *time.Time    `json:"left_at,omitempty"`
}

// Active reports whether the participant currently holds a seat in the
// session, i.e. no leave timestamp has been recorded.
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// BanRecord excludes an identity from a session. Bans are created only by a
// host ban command and never expire on their own.
type BanRecord struct {
	SessionID     SessionID     `json:"session_id"`
	ParticipantID ParticipantID `json:"participant_id"`
	BannedAt      time.Time     `json:"banned_at"`
}
