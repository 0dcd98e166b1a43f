package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// defaultScopes is the scope set requested at login.
var defaultScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-library-read",
	"user-top-read",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
	"user-read-playback-state",
}

// CredentialStore persists credentials for the manager.
// Implemented by repositories.CredentialRepository.
type CredentialStore interface {
	Upsert(cred *models.Credential) error
	Get(userID string) (*models.Credential, error)
	Delete(userID string) error
}

// Manager executes the authorization-code flow and the token lifecycle on top of [oauth2].
type Manager struct {
	config *oauth2.Config
	states *StateStore
	creds  CredentialStore
	logger *log.Logger
	now    func() time.Time
}

// NewManager creates a Manager from the Spotify credential configuration.
// Fails with [shared.ErrMissingConfig] when client credentials are unset.
func NewManager(cfg shared.SpotifyConfig, states *StateStore, creds CredentialStore, logger *log.Logger) (*Manager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret must be set", shared.ErrMissingConfig)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		return nil, fmt.Errorf("%w: spotify redirect_uri must be set", shared.ErrMissingConfig)
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       defaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &Manager{
		config: config,
		states: states,
		creds:  creds,
		logger: logger,
		now:    time.Now,
	}, nil
}

// BeginLogin issues a state token for userID and returns the authorization URL to redirect to.
func (m *Manager) BeginLogin(ctx context.Context, userID string) (string, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	if err := m.states.Set(ctx, state, userID); err != nil {
		return "", err
	}

	m.logger.Debug("login started", "user_id", userID)
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// HandleCallback validates the callback state, exchanges the code for a
// token pair, and persists the resulting credential.
//
// A state that was never issued, already redeemed, or past its TTL fails
// with [shared.ErrStateMismatch] and nothing is persisted. A rejected code
// exchange fails with [shared.ErrExchangeFailed].
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (*models.Credential, error) {
	userID, err := m.states.Pop(ctx, state)
	if err != nil {
		return nil, err
	}

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrExchangeFailed, err)
	}

	cred := models.NewCredential(userID, token.AccessToken, token.RefreshToken, m.expiry(token))
	if err := m.creds.Upsert(cred); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	m.logger.Info("credential stored", "user_id", userID, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// Refresh exchanges the credential's refresh token for a new access token
// and persists the updated pair.
//
// Fails with [shared.ErrRefreshFailed] when the refresh token is missing,
// invalid, or revoked; the caller must then force a re-login. On success
// the new expiry is strictly later than the previous one and the stored
// credential always matches the returned one.
func (m *Manager) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}

	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	updated := *cred
	updated.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		// Spotify rotates refresh tokens only occasionally; keep the old one otherwise.
		updated.RefreshToken = token.RefreshToken
	}
	updated.ExpiresAt = m.expiry(token)
	if !updated.ExpiresAt.After(cred.ExpiresAt) {
		updated.ExpiresAt = cred.ExpiresAt.Add(time.Second)
	}
	updated.UpdatedAt = m.now()

	if err := m.creds.Upsert(&updated); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.logger.Info("credential refreshed", "user_id", cred.UserID, "expires_at", updated.ExpiresAt)
	return &updated, nil
}

// EnsureFresh refreshes the credential when it is inside the soft-expiry
// window, otherwise returns it unchanged.
func (m *Manager) EnsureFresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	if !cred.Expiring(m.now(), models.DefaultExpiryLeeway) {
		return cred, nil
	}
	return m.Refresh(ctx, cred)
}

// Credential loads the stored credential for userID.
func (m *Manager) Credential(ctx context.Context, userID string) (*models.Credential, error) {
	return m.creds.Get(userID)
}

// Logout deletes the stored credential for userID.
func (m *Manager) Logout(ctx context.Context, userID string) error {
	if err := m.creds.Delete(userID); err != nil {
		return err
	}
	m.logger.Info("credential deleted", "user_id", userID)
	return nil
}

// expiry converts a token's expiry to an absolute timestamp, defaulting to
// one hour when the provider omits expires_in.
func (m *Manager) expiry(token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return m.now().Add(time.Hour)
	}
	return token.Expiry
}
