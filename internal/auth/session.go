package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// SessionClaims are the JWT claims carried by a session token.
type SessionClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies signed session tokens for authenticated users.
//
// Tokens use HS256 and are time-boxed: expiry mirrors the wrapped
// credential's access-token lifetime, capped by the configured session TTL.
type Sessions struct {
	secret []byte
	maxTTL time.Duration
	now    func() time.Time
}

// NewSessions creates a Sessions signer from the security configuration.
// Fails with [shared.ErrMissingConfig] when the signing secret is unset.
func NewSessions(cfg shared.SecurityConfig) (*Sessions, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: security.jwt_secret must be set", shared.ErrMissingConfig)
	}

	return &Sessions{
		secret: []byte(cfg.JWTSecret),
		maxTTL: cfg.SessionTTL(),
		now:    time.Now,
	}, nil
}

// Issue wraps a credential's identity in a signed session token.
func (s *Sessions) Issue(cred *models.Credential) (string, error) {
	now := s.now()

	expiry := cred.ExpiresAt
	if limit := now.Add(s.maxTTL); expiry.After(limit) {
		expiry = limit
	}

	claims := &SessionClaims{
		UserID:    cred.UserID,
		SessionID: shared.GenerateID(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, nil
}

// Verify parses and validates a session token.
//
// Expired tokens fail with [shared.ErrSessionExpired]; anything else wrong
// with the token (bad signature, wrong algorithm, malformed, missing user)
// fails with [shared.ErrInvalidSession].
func (s *Sessions) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, shared.ErrInvalidSession
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", shared.ErrInvalidSession)
	}

	return claims, nil
}
