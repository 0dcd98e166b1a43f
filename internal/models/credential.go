package models

import (
	"time"

	"github.com/harmonium-app/harmonium/internal/shared"
)

// DefaultExpiryLeeway is the soft threshold before expiry at which a
// credential is considered expiring and eligible for refresh.
const DefaultExpiryLeeway = 5 * time.Minute

// Credential holds a user's OAuth token pair and its absolute expiry.
//
// AccessToken and RefreshToken are plaintext in memory; the repository
// encrypts them before they touch disk. ExpiresAt always describes the
// token pair stored with it.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCredential creates a Credential from a token exchange response.
func NewCredential(userID, accessToken, refreshToken string, expiresAt time.Time) *Credential {
	now := time.Now()
	return &Credential{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Key returns the user ID that owns this credential.
func (c *Credential) Key() string { return c.UserID }

// Validate checks that the credential carries everything needed to call the API.
func (c *Credential) Validate() error {
	if c.UserID == "" {
		return shared.ErrInvalidInput
	}
	if c.AccessToken == "" {
		return shared.ErrMissingCredentials
	}
	if c.ExpiresAt.IsZero() {
		return shared.ErrInvalidInput
	}
	return nil
}

// Expired reports whether the access token is past its expiry at the given instant.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Expiring reports whether the access token is inside the soft-expiry window.
func (c *Credential) Expiring(now time.Time, leeway time.Duration) bool {
	if leeway <= 0 {
		leeway = DefaultExpiryLeeway
	}
	return !now.Add(leeway).Before(c.ExpiresAt)
}
