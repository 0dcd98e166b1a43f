package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/cache"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/repositories"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// playlistBody is the JSON shape accepted when creating or updating a playlist.
type playlistBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PlaylistHandler serves CRUD and track management for user playlists.
// List responses are cached per user and invalidated on every write.
type PlaylistHandler struct {
	repo   *repositories.PlaylistRepository
	cache  *cache.Cache
	ttl    shared.CacheConfig
	logger *log.Logger
}

// NewPlaylistHandler creates the playlist endpoint group.
func NewPlaylistHandler(repo *repositories.PlaylistRepository, store *cache.Cache, ttl shared.CacheConfig, logger *log.Logger) *PlaylistHandler {
	return &PlaylistHandler{repo: repo, cache: store, ttl: ttl, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *PlaylistHandler) Routes() []string {
	return []string{
		"GET /api/playlists",
		"POST /api/playlists",
		"GET /api/playlists/{id}",
		"PUT /api/playlists/{id}",
		"DELETE /api/playlists/{id}",
		"POST /api/playlists/{id}/tracks",
		"DELETE /api/playlists/{id}/tracks/{track_id}",
	}
}

// ServeHTTP dispatches to the endpoint matching the request.
func (h *PlaylistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, h.logger, shared.ErrInvalidSession)
		return
	}

	id := r.PathValue("id")
	trackID := r.PathValue("track_id")

	switch {
	case id == "" && r.Method == http.MethodGet:
		h.list(w, r, principal)
	case id == "" && r.Method == http.MethodPost:
		h.create(w, r, principal)
	case trackID != "" && r.Method == http.MethodDelete:
		h.removeTrack(w, r, principal, id, trackID)
	case strings.HasSuffix(r.URL.Path, "/tracks") && r.Method == http.MethodPost:
		h.addTrack(w, r, principal, id)
	case r.Method == http.MethodGet:
		h.get(w, r, principal, id)
	case r.Method == http.MethodPut:
		h.update(w, r, principal, id)
	case r.Method == http.MethodDelete:
		h.delete(w, r, principal, id)
	default:
		http.NotFound(w, r)
	}
}

// list returns the caller's playlists, optionally filtering tracks by
// genre. Results are memoized per user and filter.
func (h *PlaylistHandler) list(w http.ResponseWriter, r *http.Request, principal *Principal) {
	genre := r.URL.Query().Get("genre")
	key := fmt.Sprintf("%s:%s", listKeyPrefix(principal.UserID), genre)

	body, err := h.cache.GetOrFetch(r.Context(), key, h.ttl.PlaylistTTL(), func(ctx context.Context) ([]byte, error) {
		playlists, err := h.repo.ListForUser(principal.UserID, genre)
		if err != nil {
			return nil, err
		}
		return json.Marshal(playlists)
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *PlaylistHandler) create(w http.ResponseWriter, r *http.Request, principal *Principal) {
	var body playlistBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	playlist := models.NewPlaylist(principal.UserID, body.Name, body.Description)
	if err := playlist.Validate(); err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.repo.Create(playlist); err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.invalidateLists(r.Context(), principal.UserID)
	respondJSON(w, http.StatusCreated, playlist)
}

func (h *PlaylistHandler) get(w http.ResponseWriter, r *http.Request, principal *Principal, id string) {
	playlist, err := h.owned(principal, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) update(w http.ResponseWriter, r *http.Request, principal *Principal, id string) {
	playlist, err := h.owned(principal, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var body playlistBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	if body.Name != "" {
		playlist.Name = body.Name
	}
	playlist.Description = body.Description

	if err := playlist.Validate(); err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.repo.Update(playlist); err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.invalidateLists(r.Context(), principal.UserID)
	respondJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) delete(w http.ResponseWriter, r *http.Request, principal *Principal, id string) {
	if _, err := h.owned(principal, id); err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.repo.Delete(id); err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.invalidateLists(r.Context(), principal.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlaylistHandler) addTrack(w http.ResponseWriter, r *http.Request, principal *Principal, id string) {
	if _, err := h.owned(principal, id); err != nil {
		respondError(w, h.logger, err)
		return
	}

	var track models.PlaylistTrack
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}
	if track.TrackID == "" {
		respondError(w, h.logger, fmt.Errorf("%w: track id", shared.ErrMissingArgument))
		return
	}

	playlist, err := h.repo.AddTrack(id, track)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.invalidateLists(r.Context(), principal.UserID)
	respondJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) removeTrack(w http.ResponseWriter, r *http.Request, principal *Principal, id, trackID string) {
	if _, err := h.owned(principal, id); err != nil {
		respondError(w, h.logger, err)
		return
	}

	playlist, err := h.repo.RemoveTrack(id, trackID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.invalidateLists(r.Context(), principal.UserID)
	respondJSON(w, http.StatusOK, playlist)
}

// owned loads a playlist and hides other users' playlists behind a 404.
func (h *PlaylistHandler) owned(principal *Principal, id string) (*models.Playlist, error) {
	playlist, err := h.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if playlist.UserID != principal.UserID {
		return nil, shared.ErrPlaylistNotFound
	}
	return playlist, nil
}

// invalidateLists drops every cached list response for the user. Failures
// are logged, not surfaced: the write already happened.
func (h *PlaylistHandler) invalidateLists(ctx context.Context, userID string) {
	if err := h.cache.Invalidate(ctx, listKeyPrefix(userID)); err != nil {
		h.logger.Warn("playlist cache invalidation failed", "user_id", userID, "error", err)
	}
}

func listKeyPrefix(userID string) string {
	return "playlists:" + userID
}
