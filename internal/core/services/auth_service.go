package services

import (
	"errors"
	"time"

	"huddle/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// AuthService mints and validates join tokens. The account system is an
// external collaborator: it asks this server for a token binding an identity
// to a session, and the websocket join presents that token. The host flag
// travels in the signed claims, never in the client's join message.
type AuthService interface {
	GenerateJoinToken(session domain.SessionID, participant domain.ParticipantID, displayName string, host bool) (string, error)
	ValidateJoinToken(tokenString string) (*JoinClaims, error)
}

type JoinClaims struct {
	Session     domain.SessionID     `json:"session_id"`
	Participant domain.ParticipantID `json:"participant_id"`
	DisplayName string               `json:"display_name"`
	Host        bool                 `json:"host"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret    []byte
	joinTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, joinTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:    []byte(jwtSecret),
		joinTokenTTL: joinTokenTTL,
	}
}

func (s *authService) GenerateJoinToken(session domain.SessionID, participant domain.ParticipantID, displayName string, host bool) (string, error) {
	claims := &JoinClaims{
		Session:     session,
		Participant: participant,
		DisplayName: displayName,
		Host:        host,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.joinTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateJoinToken(tokenString string) (*JoinClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Session == "" || claims.Participant == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
