package server

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/auth"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// sessionBody is the JSON shape returned after login, callback, and refresh.
type sessionBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}

// AuthHandler serves the OAuth2 authorization code flow and session
// lifecycle endpoints. Implements the [Handler] interface.
type AuthHandler struct {
	manager  *auth.Manager
	sessions *auth.Sessions
	logger   *log.Logger
}

// NewAuthHandler creates the auth endpoint group.
func NewAuthHandler(manager *auth.Manager, sessions *auth.Sessions, logger *log.Logger) *AuthHandler {
	return &AuthHandler{manager: manager, sessions: sessions, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{
		"GET /api/auth/login",
		"GET /api/auth/callback",
		"POST /api/auth/refresh",
		"POST /api/auth/logout",
	}
}

// ServeHTTP dispatches to the endpoint matching the request path.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/login":
		h.login(w, r)
	case "/api/auth/callback":
		h.callback(w, r)
	case "/api/auth/refresh":
		h.refresh(w, r)
	case "/api/auth/logout":
		h.logout(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login redirects the browser to the provider's consent page. A state
// token tied to the caller survives the round trip for CSRF protection.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = shared.GenerateID()
	}

	authURL, err := h.manager.BeginLogin(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// callback completes the authorization code flow: validates state,
// exchanges the code, persists the credential, and issues a session token.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if upstream := query.Get("error"); upstream != "" {
		err := fmt.Errorf("%w: provider returned %q", shared.ErrExchangeFailed, upstream)
		respondError(w, h.logger, err)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		respondError(w, h.logger, fmt.Errorf("%w: code and state", shared.ErrMissingArgument))
		return
	}

	cred, err := h.manager.HandleCallback(r.Context(), code, state)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.respondSession(w, cred)
}

// refresh forces a provider token refresh for the authenticated caller
// and issues a new session bound to the refreshed expiry.
func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, h.logger, shared.ErrInvalidSession)
		return
	}

	cred, err := h.manager.Refresh(r.Context(), principal.Credential)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.respondSession(w, cred)
}

// logout deletes the caller's stored credential. The session token keeps
// its signature but no longer resolves to a credential.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, h.logger, shared.ErrInvalidSession)
		return
	}

	if err := h.manager.Logout(r.Context(), principal.UserID); err != nil {
		respondError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) respondSession(w http.ResponseWriter, cred *models.Credential) {
	token, err := h.sessions.Issue(cred)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionBody{
		AccessToken: token,
		TokenType:   "Bearer",
		UserID:      cred.UserID,
	})
}
