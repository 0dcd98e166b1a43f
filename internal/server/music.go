package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/services"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// MusicHandler serves provider profile, catalog, and recommendation
// endpoints backed by a [services.MusicService].
type MusicHandler struct {
	service services.MusicService
	logger  *log.Logger
}

// NewMusicHandler creates the catalog endpoint group.
func NewMusicHandler(service services.MusicService, logger *log.Logger) *MusicHandler {
	return &MusicHandler{service: service, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *MusicHandler) Routes() []string {
	return []string{
		"GET /api/me",
		"GET /api/me/top/artists",
		"GET /api/me/top/tracks",
		"GET /api/me/spotify/playlists",
		"GET /api/tracks/{id}",
		"GET /api/artists/{id}",
		"GET /api/search/artists",
		"GET /api/recommendations",
	}
}

// ServeHTTP dispatches to the endpoint matching the request path.
func (h *MusicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/me":
		h.profile(w, r)
	case r.URL.Path == "/api/me/top/artists":
		h.topArtists(w, r)
	case r.URL.Path == "/api/me/top/tracks":
		h.topTracks(w, r)
	case r.URL.Path == "/api/me/spotify/playlists":
		h.providerPlaylists(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/tracks/"):
		h.track(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/artists/"):
		h.artist(w, r)
	case r.URL.Path == "/api/search/artists":
		h.searchArtists(w, r)
	case r.URL.Path == "/api/recommendations":
		h.recommendations(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *MusicHandler) profile(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credential(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	user, err := h.service.Profile(r.Context(), cred)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (h *MusicHandler) topArtists(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credential(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	limit := queryInt(r, "limit", 0)
	artists, err := h.service.TopArtists(r.Context(), cred, limit, r.URL.Query().Get("time_range"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, artists)
}

func (h *MusicHandler) topTracks(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credential(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	limit := queryInt(r, "limit", 0)
	tracks, err := h.service.TopTracks(r.Context(), cred, limit, r.URL.Query().Get("time_range"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, tracks)
}

func (h *MusicHandler) providerPlaylists(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credential(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	playlists, err := h.service.UserPlaylists(r.Context(), cred, limit, offset)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, playlists)
}

func (h *MusicHandler) track(w http.ResponseWriter, r *http.Request) {
	track, err := h.service.Track(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, track)
}

func (h *MusicHandler) artist(w http.ResponseWriter, r *http.Request) {
	artist, err := h.service.Artist(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, artist)
}

func (h *MusicHandler) searchArtists(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 0)

	artists, err := h.service.SearchArtists(r.Context(), query, limit)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, artists)
}

// recommendations delegates to the provider's recommendation engine.
// Works with or without an authenticated caller: unauthenticated requests
// use the app token and the default genre seeds.
func (h *MusicHandler) recommendations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := services.RecommendationOptions{
		Limit:         queryInt(r, "limit", 0),
		Genres:        queryList(query.Get("genres")),
		SeedArtists:   queryList(query.Get("seed_artists")),
		SeedTracks:    queryList(query.Get("seed_tracks")),
		MinPopularity: queryInt(r, "min_popularity", 0),
		ReleasedAfter: query.Get("released_after"),
	}

	var cred *models.Credential
	if principal, ok := PrincipalFrom(r.Context()); ok {
		cred = principal.Credential
	}

	tracks, err := h.service.Recommendations(r.Context(), cred, opts)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, tracks)
}

// credential returns the authenticated caller's provider credential.
func (h *MusicHandler) credential(r *http.Request) (*models.Credential, error) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		return nil, shared.ErrInvalidSession
	}
	return principal.Credential, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
