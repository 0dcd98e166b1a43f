package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/auth"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/shared"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID     string
	SessionID  string
	Credential *models.Credential
}

// WithPrincipal attaches a principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// RequestLogger logs each request with method, path, status, and duration.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", time.Since(start),
			)
		})
	}
}

// Recover converts handler panics into 500 responses instead of dropping
// the connection.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
					respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate validates the bearer session token, loads the caller's
// provider credential (refreshing it when close to expiry), and attaches
// the [Principal] to the request context. Paths under a public prefix are
// never rejected; a valid token still attaches a principal there so public
// endpoints can personalize.
func Authenticate(sessions *auth.Sessions, manager *auth.Manager, logger *log.Logger, publicPrefixes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			public := false
			for _, prefix := range publicPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					public = true
					break
				}
			}

			principal, err := resolvePrincipal(r, sessions, manager)
			if err != nil {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				respondError(w, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// resolvePrincipal verifies the bearer token and loads a fresh credential
// for its subject.
func resolvePrincipal(r *http.Request, sessions *auth.Sessions, manager *auth.Manager) (*Principal, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, shared.ErrInvalidSession
	}

	claims, err := sessions.Verify(token)
	if err != nil {
		return nil, err
	}

	cred, err := manager.Credential(r.Context(), claims.UserID)
	if err != nil {
		return nil, err
	}

	cred, err = manager.EnsureFresh(r.Context(), cred)
	if err != nil {
		return nil, err
	}

	return &Principal{
		UserID:     claims.UserID,
		SessionID:  claims.SessionID,
		Credential: cred,
	}, nil
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}

	return token, true
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
