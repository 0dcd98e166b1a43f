// package services defines interface MusicService for interacting with
// upstream music provider HTTP APIs
package services

import (
	"context"

	"github.com/harmonium-app/harmonium/internal/models"
)

// MusicService defines the interface for a music provider (Spotify) that
// serves profile, catalog, and recommendation data.
type MusicService interface {
	// Profile retrieves the authenticated user's provider profile.
	Profile(ctx context.Context, cred *models.Credential) (*SpotifyUser, error)

	// Track retrieves a single track by ID using the app token.
	Track(ctx context.Context, trackID string) (*SpotifyTrack, error)

	// SeveralTracks retrieves multiple tracks by their IDs (up to 50).
	SeveralTracks(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error)

	// Artist retrieves a single artist by ID using the app token.
	Artist(ctx context.Context, artistID string) (*SpotifyArtist, error)

	// SearchArtists searches the provider catalog for artists matching a query.
	SearchArtists(ctx context.Context, query string, limit int) ([]SpotifyArtist, error)

	// TopArtists retrieves the user's top artists for a time range.
	TopArtists(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]SpotifyArtist, error)

	// TopTracks retrieves the user's top tracks for a time range.
	TopTracks(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]SpotifyTrack, error)

	// UserPlaylists retrieves the user's provider playlists with pagination.
	UserPlaylists(ctx context.Context, cred *models.Credential, limit, offset int) (*SpotifyPaginatedPlaylists, error)

	// Recommendations retrieves recommended tracks for the given seeds and
	// filters. Seed genres are derived from the user's listening history
	// when the caller supplies none.
	Recommendations(ctx context.Context, cred *models.Credential, opts RecommendationOptions) ([]RecommendedTrack, error)

	// Name returns the name of the provider (e.g., "Spotify")
	Name() string
}

// RecommendationOptions carries seeds and post-filters for a
// recommendation request. Seeds are capped at [MaxSeeds] across all
// three kinds, genres first.
type RecommendationOptions struct {
	Limit         int
	Genres        []string
	SeedArtists   []string
	SeedTracks    []string
	MinPopularity int    // 0 disables the filter
	ReleasedAfter string // YYYY, YYYY-MM, or YYYY-MM-DD; empty disables
}

// RecommendedTrack is the flattened track shape returned to clients.
type RecommendedTrack struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album"`
	ReleaseDate string   `json:"release_date"`
	DurationMS  int      `json:"duration_ms"`
	Popularity  int      `json:"popularity"`
	PreviewURL  string   `json:"preview_url"`
	URI         string   `json:"uri"`
}
