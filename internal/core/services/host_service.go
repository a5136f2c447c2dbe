package services

import (
	"context"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"go.uber.org/zap"
)

// HostService validates privileged session commands and applies their state
// side effects. State mutates before anything is broadcast so the removed
// or banned client still receives the command that terminates it.
type HostService struct {
	rooms  *RoomService
	bans   ports.BanRepository
	logger *zap.SugaredLogger
}

func NewHostService(rooms *RoomService, bans ports.BanRepository, logger *zap.SugaredLogger) *HostService {
	return &HostService{
		rooms:  rooms,
		bans:   bans,
		logger: logger,
	}
}

// Issue enforces a host command. A non-host issuer or malformed command is
// rejected with an error the transport layer logs and drops; nothing is
// echoed back to the issuer.
func (h *HostService) Issue(ctx context.Context, session domain.SessionID, issuer domain.ParticipantID, cmd domain.HostCommand, target domain.ParticipantID) (*ports.CommandResult, error) {
	if !cmd.Known() {
		return nil, domain.ErrUnknownCommand
	}
	if cmd.Targeted() && target == "" {
		return nil, domain.ErrTargetRequired
	}
	if !h.rooms.isHost(session, issuer) {
		h.logger.Warnw("host command from non-host dropped", "session", session, "issuer", issuer, "command", cmd)
		return nil, domain.ErrNotHost
	}

	result := &ports.CommandResult{Type: cmd, Target: target}
	muted := true
	videoOff := false

	switch cmd {
	case domain.CommandMute:
		if _, err := h.rooms.UpdateStatus(ctx, session, target, domain.FlagPatch{Muted: &muted}); err != nil {
			return nil, err
		}

	case domain.CommandStopVideo:
		if _, err := h.rooms.UpdateStatus(ctx, session, target, domain.FlagPatch{VideoEnabled: &videoOff}); err != nil {
			return nil, err
		}

	case domain.CommandMuteAll:
		if err := h.rooms.applyToOthers(ctx, session, issuer, domain.FlagPatch{Muted: &muted}); err != nil {
			return nil, err
		}

	case domain.CommandStopVideoAll:
		if err := h.rooms.applyToOthers(ctx, session, issuer, domain.FlagPatch{VideoEnabled: &videoOff}); err != nil {
			return nil, err
		}

	case domain.CommandRemoveUser:
		left, err := h.rooms.Leave(ctx, session, target)
		if err != nil {
			return nil, err
		}
		result.Ended = left.Ended
		result.Detach = []domain.ParticipantID{target}

	case domain.CommandBanUser:
		ban := &domain.BanRecord{SessionID: session, ParticipantID: target, BannedAt: time.Now()}
		if err := h.bans.Ban(ctx, ban); err != nil {
			h.logger.Errorw("ban write failed", "session", session, "target", target, "error", err)
			return nil, err
		}
		left, err := h.rooms.Leave(ctx, session, target)
		if err != nil {
			return nil, err
		}
		result.Ended = left.Ended
		result.Detach = []domain.ParticipantID{target}

	case domain.CommandEndMeeting:
		ended, members, err := h.rooms.endMeeting(ctx, session)
		if err != nil {
			return nil, err
		}
		result.Ended = ended
		result.Detach = members
	}

	h.logger.Infow("host command enforced", "session", session, "issuer", issuer, "command", cmd, "target", target)
	return result, nil
}
