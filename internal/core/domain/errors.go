package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrBanned              = errors.New("participant is banned")
	ErrNotHost             = errors.New("issuer is not a session host")
	ErrUnknownCommand      = errors.New("unknown host command")
	ErrTargetRequired      = errors.New("command requires a target")
	ErrNotConnected        = errors.New("participant has no live transport")
)
