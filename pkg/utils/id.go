package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateConnectionID generates a unique transport connection ID.
func GenerateConnectionID() string {
	return fmt.Sprintf("conn_%s", uuid.NewString())
}

// GenerateRequestID generates a unique request ID for log correlation.
func GenerateRequestID() string {
	return fmt.Sprintf("req_%s", uuid.NewString())
}

// GenerateParticipantID generates a participant identifier for callers that
// do not bring their own.
func GenerateParticipantID() string {
	return fmt.Sprintf("p_%s", uuid.NewString())
}
