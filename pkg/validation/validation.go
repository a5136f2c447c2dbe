package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// SessionIDRegex validates session identifier format.
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ParticipantIDRegex validates participant identifier format.
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateSessionID validates a session identifier.
func ValidateSessionID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("session id is too long (max 100 characters)")
	}
	if !SessionIDRegex.MatchString(id) {
		return fmt.Errorf("session id may only contain letters, digits, dash and underscore")
	}
	return nil
}

// ValidateParticipantID validates a participant identifier.
func ValidateParticipantID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("participant id is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("participant id is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(id) {
		return fmt.Errorf("participant id may only contain letters, digits, dash and underscore")
	}
	return nil
}

// ValidateDisplayName validates a participant display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	return nil
}
