package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/utils"

	"go.uber.org/zap"
)

// sessionState is the lock-guarded in-memory record of one live session.
// It is created on the first join and discarded when the active set empties;
// gone marks a state that has been removed from the manager map so that a
// racing join re-fetches instead of mutating a dead record.
type sessionState struct {
	mu        sync.Mutex
	id        domain.SessionID
	startedAt time.Time
	active    map[domain.ParticipantID]*domain.Participant
	gone      bool
}

// RoomService is the authoritative participant registry. Live state lives in
// per-session structs guarded by their own mutex; the durable store is
// written through on every mutation so late queries survive a restart.
type RoomService struct {
	participants ports.ParticipantRepository
	bans         ports.BanRepository
	timing       *TimingService

	mu       sync.Mutex
	sessions map[domain.SessionID]*sessionState

	logger *zap.SugaredLogger
}

func NewRoomService(participants ports.ParticipantRepository, bans ports.BanRepository, timing *TimingService, logger *zap.SugaredLogger) *RoomService {
	return &RoomService{
		participants: participants,
		bans:         bans,
		timing:       timing,
		sessions:     make(map[domain.SessionID]*sessionState),
		logger:       logger,
	}
}

// Join admits a participant into a session. A ban rejects the join without
// mutating any state; the caller surfaces nothing to the banned client. An
// already-active identity is treated as a rejoin: the caller must suppress
// the arrival broadcast but still deliver the snapshot.
func (s *RoomService) Join(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, displayName string, host bool) (*ports.JoinResult, error) {
	banned, err := s.bans.IsBanned(ctx, session, participant)
	if err != nil {
		s.logger.Warnw("ban lookup failed, denying join", "session", session, "participant", participant, "error", err)
		return nil, err
	}
	if banned {
		return nil, domain.ErrBanned
	}

	for {
		st := s.state(session, true)

		st.mu.Lock()
		if st.gone {
			st.mu.Unlock()
			continue
		}

		result := &ports.JoinResult{}

		if existing, ok := st.active[participant]; ok {
			// Same identity reconnecting over a fresh transport. The rest of
			// the session already knows this participant.
			result.Rejoin = true
			result.Participant = existing
		} else {
			now := utils.Now()
			if len(st.active) == 0 {
				st.startedAt = now
				result.Started = s.timing.SessionStarted(ctx, session, now)
			}

			p := &domain.Participant{
				SessionID:   session,
				ID:          participant,
				DisplayName: displayName,
				Host:        host,
				Flags:       domain.DefaultMediaFlags(),
				JoinedAt:    now,
			}
			st.active[participant] = p
			result.Participant = p

			if err := s.participants.Upsert(ctx, p); err != nil {
				s.logger.Errorw("participant upsert failed", "session", session, "participant", participant, "error", err)
			}
		}

		result.Snapshot = st.snapshotLocked()
		st.mu.Unlock()
		return result, nil
	}
}

// Leave marks the participant inactive. It is idempotent: a second leave for
// an already-inactive record reports Left=false and the caller produces no
// side effects. Emptying the session emits the end event exactly once.
func (s *RoomService) Leave(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*ports.LeaveResult, error) {
	st := s.state(session, false)
	if st == nil {
		return &ports.LeaveResult{Left: false}, nil
	}

	st.mu.Lock()
	p, ok := st.active[participant]
	if !ok {
		st.mu.Unlock()
		return &ports.LeaveResult{Left: false}, nil
	}

	now := utils.Now()
	p.LeftAt = &now
	delete(st.active, participant)

	if err := s.participants.MarkLeft(ctx, session, participant, now); err != nil {
		s.logger.Errorw("participant leave write failed", "session", session, "participant", participant, "error", err)
	}

	result := &ports.LeaveResult{Left: true}
	if len(st.active) == 0 {
		result.Ended = s.timing.SessionEnded(ctx, session, st.startedAt, now)
		st.gone = true
	}
	st.mu.Unlock()

	if result.Ended != nil {
		s.dropState(session, st)
	}
	return result, nil
}

// UpdateStatus applies a partial flag update and returns the full updated
// flag set for broadcast.
func (s *RoomService) UpdateStatus(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, patch domain.FlagPatch) (*domain.MediaFlags, error) {
	st := s.state(session, false)
	if st == nil {
		return nil, domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	p, ok := st.active[participant]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}

	p.Flags = patch.Apply(p.Flags)
	if err := s.participants.Upsert(ctx, p); err != nil {
		s.logger.Errorw("participant status write failed", "session", session, "participant", participant, "error", err)
	}

	flags := p.Flags
	return &flags, nil
}

// Snapshot returns the active participants ordered by join time.
func (s *RoomService) Snapshot(ctx context.Context, session domain.SessionID) ([]*domain.Participant, error) {
	st := s.state(session, false)
	if st == nil {
		return nil, domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked(), nil
}

// ActiveSessions lists sessions currently holding at least one participant.
func (s *RoomService) ActiveSessions(ctx context.Context) []*domain.Session {
	s.mu.Lock()
	states := make([]*sessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		states = append(states, st)
	}
	s.mu.Unlock()

	sessions := make([]*domain.Session, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		if !st.gone && len(st.active) > 0 {
			sessions = append(sessions, &domain.Session{ID: st.id, StartedAt: st.startedAt})
		}
		st.mu.Unlock()
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions
}

// state fetches the session record, creating it when create is set. The
// manager lock is never held together with a state lock.
func (s *RoomService) state(session domain.SessionID, create bool) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[session]
	if !ok && create {
		st = &sessionState{
			id:     session,
			active: make(map[domain.ParticipantID]*domain.Participant),
		}
		s.sessions[session] = st
	}
	return st
}

// dropState removes the emptied session record, but only if the map still
// points at the same state (a new lifetime may already have replaced it).
func (s *RoomService) dropState(session domain.SessionID, st *sessionState) {
	s.mu.Lock()
	if s.sessions[session] == st {
		delete(s.sessions, session)
	}
	s.mu.Unlock()
}

// isHost reports whether the participant is an active host of the session.
func (s *RoomService) isHost(session domain.SessionID, participant domain.ParticipantID) bool {
	st := s.state(session, false)
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.active[participant]
	return ok && p.Host
}

// applyToOthers patches the flags of every active participant except the
// issuer. The issuing host keeps independent control of its own flags.
func (s *RoomService) applyToOthers(ctx context.Context, session domain.SessionID, issuer domain.ParticipantID, patch domain.FlagPatch) error {
	st := s.state(session, false)
	if st == nil {
		return domain.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	for id, p := range st.active {
		if id == issuer {
			continue
		}
		p.Flags = patch.Apply(p.Flags)
		if err := s.participants.Upsert(ctx, p); err != nil {
			s.logger.Errorw("participant status write failed", "session", session, "participant", id, "error", err)
		}
	}
	return nil
}

// endMeeting marks every active participant left, records the end event and
// discards the session record. Returns the participants that held seats so
// the transport layer can detach them.
func (s *RoomService) endMeeting(ctx context.Context, session domain.SessionID) (*domain.EndEvent, []domain.ParticipantID, error) {
	st := s.state(session, false)
	if st == nil {
		return nil, nil, domain.ErrSessionNotFound
	}

	st.mu.Lock()
	now := utils.Now()
	members := make([]domain.ParticipantID, 0, len(st.active))
	for id, p := range st.active {
		left := now
		p.LeftAt = &left
		members = append(members, id)
	}
	st.active = make(map[domain.ParticipantID]*domain.Participant)

	if err := s.participants.MarkAllLeft(ctx, session, now); err != nil {
		s.logger.Errorw("session close write failed", "session", session, "error", err)
	}

	ended := s.timing.SessionEnded(ctx, session, st.startedAt, now)
	st.gone = true
	st.mu.Unlock()

	s.dropState(session, st)

	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return ended, members, nil
}

// snapshotLocked returns the active participants ordered by join time.
// Callers must hold st.mu.
func (st *sessionState) snapshotLocked() []*domain.Participant {
	list := make([]*domain.Participant, 0, len(st.active))
	for _, p := range st.active {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}
