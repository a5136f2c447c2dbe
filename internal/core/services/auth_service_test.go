package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinToken_RoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)

	token, err := auth.GenerateJoinToken("room", "alice", "Alice", true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateJoinToken(token)
	require.NoError(t, err)

	assert.Equal(t, "room", string(claims.Session))
	assert.Equal(t, "alice", string(claims.Participant))
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.True(t, claims.Host, "host flag travels in the signed claims")
}

func TestJoinToken_ExpiredRejected(t *testing.T) {
	auth := NewAuthService("test-secret", -time.Minute)

	token, err := auth.GenerateJoinToken("room", "alice", "Alice", false)
	require.NoError(t, err)

	_, err = auth.ValidateJoinToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJoinToken_WrongSecretRejected(t *testing.T) {
	minter := NewAuthService("secret-a", time.Hour)
	validator := NewAuthService("secret-b", time.Hour)

	token, err := minter.GenerateJoinToken("room", "alice", "Alice", false)
	require.NoError(t, err)

	_, err = validator.ValidateJoinToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJoinToken_GarbageRejected(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)

	_, err := auth.ValidateJoinToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
