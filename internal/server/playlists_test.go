package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harmonium-app/harmonium/internal/cache"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/repositories"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// playlistTestEnv wires the handler to a real sqlite repository and an
// in-memory cache, with a fixed principal attached to every request.
func playlistTestEnv(t *testing.T, userID string) (*BasicRouter, *repositories.PlaylistRepository) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	repo := repositories.NewPlaylistRepository(db)
	store := cache.New(cache.NewMemoryStore(), testLogger())

	router := NewBasicRouter()
	router.Use(asPrincipal(&Principal{UserID: userID, Credential: testCredential(userID)}))
	router.Handler(NewPlaylistHandler(repo, store, shared.CacheConfig{}, testLogger()))

	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	r := httptest.NewRequest(method, target, reader)
	r.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestPlaylistHandler(t *testing.T) {
	t.Run("Requires Principal", func(t *testing.T) {
		bare := NewBasicRouter()
		bare.Handler(NewPlaylistHandler(nil, cache.New(cache.NewMemoryStore(), testLogger()), shared.CacheConfig{}, testLogger()))

		rec := httptest.NewRecorder()
		bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/playlists", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 without principal, got %d", rec.Code)
		}
	})

	t.Run("Create And Get", func(t *testing.T) {
		router, _ := playlistTestEnv(t, "alice")

		rec := doJSON(t, router, http.MethodPost, "/api/playlists", `{"name":"Road Trip","description":"open road"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var created models.Playlist
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to decode playlist: %v", err)
		}
		if created.ID == "" || created.Name != "Road Trip" {
			t.Errorf("unexpected created playlist: %+v", created)
		}

		rec = doJSON(t, router, http.MethodGet, "/api/playlists/"+created.ID, "")
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("Create Rejects Empty Name", func(t *testing.T) {
		router, _ := playlistTestEnv(t, "alice")

		rec := doJSON(t, router, http.MethodPost, "/api/playlists", `{"name":""}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for empty name, got %d", rec.Code)
		}
	})

	t.Run("List Sees Writes After Invalidation", func(t *testing.T) {
		router, _ := playlistTestEnv(t, "alice")

		_ = doJSON(t, router, http.MethodPost, "/api/playlists", `{"name":"First"}`)

		rec := doJSON(t, router, http.MethodGet, "/api/playlists", "")
		var playlists []*models.Playlist
		if err := json.Unmarshal(rec.Body.Bytes(), &playlists); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		if len(playlists) != 1 {
			t.Fatalf("expected 1 playlist, got %d", len(playlists))
		}

		// A second create must bust the cached list response.
		_ = doJSON(t, router, http.MethodPost, "/api/playlists", `{"name":"Second"}`)

		rec = doJSON(t, router, http.MethodGet, "/api/playlists", "")
		if err := json.Unmarshal(rec.Body.Bytes(), &playlists); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		if len(playlists) != 2 {
			t.Errorf("expected 2 playlists after invalidation, got %d", len(playlists))
		}
	})

	t.Run("List Filters Tracks By Genre", func(t *testing.T) {
		router, repo := playlistTestEnv(t, "alice")

		playlist := models.NewPlaylist("alice", "Mixed", "")
		playlist.AddTrack(models.PlaylistTrack{TrackID: "t1", Title: "One", Artist: "A", Genre: "rock"})
		playlist.AddTrack(models.PlaylistTrack{TrackID: "t2", Title: "Two", Artist: "B", Genre: "jazz"})
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		rec := doJSON(t, router, http.MethodGet, "/api/playlists?genre=rock", "")
		var playlists []*models.Playlist
		if err := json.Unmarshal(rec.Body.Bytes(), &playlists); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		if len(playlists) != 1 || len(playlists[0].Tracks) != 1 || playlists[0].Tracks[0].Genre != "rock" {
			t.Errorf("expected only rock tracks, got %+v", playlists)
		}
	})

	t.Run("Update", func(t *testing.T) {
		router, repo := playlistTestEnv(t, "alice")

		playlist := models.NewPlaylist("alice", "Old Name", "old")
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		rec := doJSON(t, router, http.MethodPut, "/api/playlists/"+playlist.ID, `{"name":"New Name","description":"new"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		updated, err := repo.Get(playlist.ID)
		if err != nil {
			t.Fatalf("failed to reload playlist: %v", err)
		}
		if updated.Name != "New Name" || updated.Description != "new" {
			t.Errorf("update did not persist: %+v", updated)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		router, repo := playlistTestEnv(t, "alice")

		playlist := models.NewPlaylist("alice", "Doomed", "")
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		rec := doJSON(t, router, http.MethodDelete, "/api/playlists/"+playlist.ID, "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}

		rec = doJSON(t, router, http.MethodGet, "/api/playlists/"+playlist.ID, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", rec.Code)
		}
	})

	t.Run("Hides Other Users Playlists", func(t *testing.T) {
		router, repo := playlistTestEnv(t, "alice")

		playlist := models.NewPlaylist("bob", "Bob's", "")
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			rec := doJSON(t, router, method, "/api/playlists/"+playlist.ID, `{"name":"x"}`)
			if rec.Code != http.StatusNotFound {
				t.Errorf("%s: expected 404 for foreign playlist, got %d", method, rec.Code)
			}
		}
	})

	t.Run("Add And Remove Track", func(t *testing.T) {
		router, repo := playlistTestEnv(t, "alice")

		playlist := models.NewPlaylist("alice", "Road Trip", "")
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		rec := doJSON(t, router, http.MethodPost, "/api/playlists/"+playlist.ID+"/tracks",
			`{"track_id":"t1","title":"One","artist":"A","genre":"rock"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var updated models.Playlist
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("failed to decode playlist: %v", err)
		}
		if len(updated.Tracks) != 1 {
			t.Fatalf("expected 1 track, got %d", len(updated.Tracks))
		}

		rec = doJSON(t, router, http.MethodDelete, "/api/playlists/"+playlist.ID+"/tracks/t1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("failed to decode playlist: %v", err)
		}
		if len(updated.Tracks) != 0 {
			t.Errorf("expected no tracks, got %+v", updated.Tracks)
		}

		rec = doJSON(t, router, http.MethodDelete, "/api/playlists/"+playlist.ID+"/tracks/t1", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 removing a missing track, got %d", rec.Code)
		}
	})

	t.Run("Add Track Rejects Missing ID", func(t *testing.T) {
		router, repo := playlistTestEnv(t, "alice")

		playlist := models.NewPlaylist("alice", "Road Trip", "")
		if err := repo.Create(playlist); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}

		rec := doJSON(t, router, http.MethodPost, "/api/playlists/"+playlist.ID+"/tracks", `{"title":"No ID"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing track id, got %d", rec.Code)
		}
	})
}
