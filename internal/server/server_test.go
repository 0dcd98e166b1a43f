package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/auth"
	"github.com/harmonium-app/harmonium/internal/cache"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/resilience"
	"github.com/harmonium-app/harmonium/internal/shared"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func testCredential(userID string) *models.Credential {
	return models.NewCredential(userID, "access_token", "refresh_token", time.Now().Add(time.Hour))
}

// fakeCredStore is an in-memory CredentialStore for middleware tests.
type fakeCredStore struct {
	creds map[string]*models.Credential
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{creds: make(map[string]*models.Credential)}
}

func (s *fakeCredStore) Upsert(cred *models.Credential) error {
	copied := *cred
	s.creds[cred.UserID] = &copied
	return nil
}

func (s *fakeCredStore) Get(userID string) (*models.Credential, error) {
	cred, ok := s.creds[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, userID)
	}
	copied := *cred
	return &copied, nil
}

func (s *fakeCredStore) Delete(userID string) error {
	delete(s.creds, userID)
	return nil
}

// asPrincipal injects a principal directly, bypassing the session check.
func asPrincipal(p *Principal) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrInvalidInput, http.StatusBadRequest},
		{shared.ErrMissingArgument, http.StatusBadRequest},
		{shared.ErrStateMismatch, http.StatusForbidden},
		{shared.ErrInvalidSession, http.StatusUnauthorized},
		{shared.ErrSessionExpired, http.StatusUnauthorized},
		{shared.ErrTokenExpired, http.StatusUnauthorized},
		{shared.ErrCredentialNotFound, http.StatusUnauthorized},
		{shared.ErrPlaylistNotFound, http.StatusNotFound},
		{shared.ErrTrackNotFound, http.StatusNotFound},
		{shared.ErrCircuitOpen, http.StatusServiceUnavailable},
		{shared.ErrUpstreamRejected, http.StatusBadGateway},
		{shared.ErrExchangeFailed, http.StatusBadGateway},
		{shared.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusFor(fmt.Errorf("wrapped: %w", tc.err)); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{"Valid", "Bearer abc123", "abc123", true},
		{"Case Insensitive Scheme", "bearer abc123", "abc123", true},
		{"Missing Header", "", "", false},
		{"Wrong Scheme", "Basic abc123", "", false},
		{"Empty Token", "Bearer ", "", false},
		{"No Space", "Bearerabc123", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			token, ok := bearerToken(r)
			if ok != tc.ok || token != tc.token {
				t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tc.header, token, ok, tc.token, tc.ok)
			}
		})
	}
}

func TestBasicRouter(t *testing.T) {
	t.Run("Routes By Method", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle("GET /things", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 for registered method, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/things", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405 for unregistered method, got %d", rec.Code)
		}
	})

	t.Run("Applies Middleware In Order", func(t *testing.T) {
		var order []string
		named := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(named("first"), named("second"))
		router.Handle("GET /", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		want := []string{"first", "second", "handler"}
		if len(order) != len(want) {
			t.Fatalf("expected %v, got %v", want, order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, order)
			}
		}
	})
}

func TestRecover(t *testing.T) {
	handler := Recover(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
}

func TestAuthenticate(t *testing.T) {
	logger := testLogger()

	sessions, err := auth.NewSessions(shared.SecurityConfig{JWTSecret: "test-signing-secret", SessionTTLSeconds: 3600})
	if err != nil {
		t.Fatalf("failed to create sessions: %v", err)
	}

	store := newFakeCredStore()
	manager, err := auth.NewManager(
		shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://localhost/cb"},
		auth.NewStateStore(cache.NewMemoryStore()),
		store,
		logger,
	)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	cred := testCredential("alice")
	if err := store.Upsert(cred); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}

	token, err := sessions.Issue(cred)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}

	echoPrincipal := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFrom(r.Context()); ok {
			fmt.Fprint(w, p.UserID)
			return
		}
		fmt.Fprint(w, "anonymous")
	})

	handler := Authenticate(sessions, manager, logger, "/api/public")(echoPrincipal)

	t.Run("Rejects Protected Path Without Token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/private", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("Rejects Garbage Token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("Attaches Principal For Valid Token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
			t.Errorf("expected principal alice, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("Public Path Passes Without Token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/thing", nil))

		if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
			t.Errorf("expected anonymous pass-through, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("Public Path Still Attaches Principal", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/public/thing", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Body.String() != "alice" {
			t.Errorf("expected principal on public path, got %q", rec.Body.String())
		}
	})

	t.Run("Rejects Token Without Stored Credential", func(t *testing.T) {
		ghost, err := sessions.Issue(testCredential("ghost"))
		if err != nil {
			t.Fatalf("failed to issue session: %v", err)
		}

		r := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		r.Header.Set("Authorization", "Bearer "+ghost)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 after logout, got %d", rec.Code)
		}
	})
}

func TestAuthHandler(t *testing.T) {
	logger := testLogger()

	sessions, err := auth.NewSessions(shared.SecurityConfig{JWTSecret: "test-signing-secret", SessionTTLSeconds: 3600})
	if err != nil {
		t.Fatalf("failed to create sessions: %v", err)
	}

	manager, err := auth.NewManager(
		shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://localhost/cb"},
		auth.NewStateStore(cache.NewMemoryStore()),
		newFakeCredStore(),
		logger,
	)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	router := NewBasicRouter()
	router.Handler(NewAuthHandler(manager, sessions, logger))

	t.Run("Login Redirects To Provider", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/login?user_id=alice", nil))

		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("expected 307, got %d", rec.Code)
		}

		location, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatalf("bad redirect location: %v", err)
		}
		if location.Host != "accounts.spotify.com" {
			t.Errorf("expected redirect to provider, got %s", location.Host)
		}
		if location.Query().Get("state") == "" {
			t.Error("expected a state parameter in the consent URL")
		}
	})

	t.Run("Callback Rejects Missing Parameters", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=abc", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing state, got %d", rec.Code)
		}
	})

	t.Run("Callback Surfaces Provider Error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/callback?error=access_denied", nil))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502 for provider error, got %d", rec.Code)
		}
	})

	t.Run("Callback Rejects Forged State", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=abc&state=forged", nil))

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403 for unknown state, got %d", rec.Code)
		}
	})

	t.Run("Refresh Requires Principal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("Logout Deletes The Credential", func(t *testing.T) {
		store := newFakeCredStore()
		manager, err := auth.NewManager(
			shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://localhost/cb"},
			auth.NewStateStore(cache.NewMemoryStore()),
			store,
			logger,
		)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cred := testCredential("alice")
		_ = store.Upsert(cred)

		router := NewBasicRouter()
		router.Use(asPrincipal(&Principal{UserID: "alice", Credential: cred}))
		router.Handler(NewAuthHandler(manager, sessions, logger))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if _, err := store.Get("alice"); !errors.Is(err, shared.ErrCredentialNotFound) {
			t.Error("expected credential to be deleted")
		}
	})
}

func TestHealthHandler(t *testing.T) {
	client := resilience.NewClient(resilience.Options{})
	router := NewBasicRouter()
	router.Handler(NewHealthHandler(client, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("expected ok with no tripped breakers, got %q", body.Status)
	}
}

func TestRequestLogger(t *testing.T) {
	handler := RequestLogger(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("logger middleware must not alter the response, got %d", rec.Code)
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, testLogger(), fmt.Errorf("%w: playlist xyz", shared.ErrPlaylistNotFound))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if !strings.Contains(body.Error, "playlist xyz") {
		t.Errorf("expected error detail in body, got %q", body.Error)
	}
}
