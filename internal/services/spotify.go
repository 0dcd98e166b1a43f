// Spotify API implementation of [MusicService]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/cache"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/resilience"
	"github.com/harmonium-app/harmonium/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// MaxSeeds is the total seed budget the recommendation endpoint accepts
	// across genres, artists, and tracks.
	MaxSeeds = 5

	// appTokenLeeway refreshes the client-credentials token this long
	// before its reported expiry.
	appTokenLeeway = 30 * time.Second
)

// defaultSeedGenres backs recommendation requests when no genres were
// supplied and none could be derived from the user's top artists.
var defaultSeedGenres = []string{"pop", "rock", "hip-hop"}

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	PreviewURL  string          `json:"preview_url"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	Images      []SpotifyImage      `json:"images"`
	URI         string              `json:"uri"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifySimplePlaylist `json:"items"`
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
	Next     *string                 `json:"next"`
	Previous *string                 `json:"previous"`
}

// SpotifyService implements the [MusicService] interface for Spotify API
// interactions. Every call goes through the resilience client and read
// endpoints are memoized in the cache with per-resource TTLs.
type SpotifyService struct {
	clientID     string
	clientSecret string
	tokenURL     string
	baseURL      string
	client       *resilience.Client
	cache        *cache.Cache
	ttl          shared.CacheConfig
	logger       *log.Logger
	now          func() time.Time

	mu             sync.Mutex
	appToken       string
	appTokenExpiry time.Time
}

// NewSpotifyService creates a Spotify service backed by the given
// resilience client and cache.
func NewSpotifyService(cfg *shared.Config, client *resilience.Client, store *cache.Cache, logger *log.Logger) (*SpotifyService, error) {
	if cfg.Credentials.Spotify.ClientID == "" || cfg.Credentials.Spotify.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client credentials", shared.ErrMissingConfig)
	}
	if logger == nil {
		logger = log.Default()
	}

	return &SpotifyService{
		clientID:     cfg.Credentials.Spotify.ClientID,
		clientSecret: cfg.Credentials.Spotify.ClientSecret,
		tokenURL:     spotifyTokenURL,
		baseURL:      spotifyBaseURL,
		client:       client,
		cache:        store,
		ttl:          cfg.Cache,
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// appAccessToken returns a client-credentials token for public catalog
// lookups, requesting a fresh one shortly before the current one expires.
func (s *SpotifyService) appAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appToken != "" && s.now().Before(s.appTokenExpiry.Add(-appTokenLeeway)) {
		return s.appToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	basic := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))

	header := http.Header{}
	header.Set("Authorization", "Basic "+basic)
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(ctx, resilience.ClassAccounts, resilience.Request{
		Method: http.MethodPost,
		URL:    s.tokenURL,
		Header: header,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to obtain app token: %w", err)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &grant); err != nil {
		return "", fmt.Errorf("failed to decode app token: %w", err)
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("%w: empty app token", shared.ErrAPIRequest)
	}

	s.appToken = grant.AccessToken
	s.appTokenExpiry = s.now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	s.logger.Debug("refreshed spotify app token", "expires_in", grant.ExpiresIn)

	return s.appToken, nil
}

// fetch performs an authenticated GET against the Spotify API and returns
// the raw response body. A 401 from Spotify surfaces as [shared.ErrTokenExpired].
func (s *SpotifyService) fetch(ctx context.Context, class resilience.Class, endpoint, token string) ([]byte, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(ctx, class, resilience.Request{
		Method: http.MethodGet,
		URL:    s.baseURL + endpoint,
		Header: header,
	})
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: spotify rejected access token", shared.ErrTokenExpired)
		}
		return nil, err
	}

	return resp.Body, nil
}

// statusOf extracts the upstream status code from a client error, or 0.
func statusOf(err error) int {
	var upstream *resilience.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}
	return 0
}

// cachedFetch memoizes fetch through the cache layer. The token callback
// runs only on a miss, so cache hits never touch the accounts endpoint.
func (s *SpotifyService) cachedFetch(ctx context.Context, key string, ttl time.Duration, class resilience.Class, endpoint string, token func(ctx context.Context) (string, error)) ([]byte, error) {
	return s.cache.GetOrFetch(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		tok, err := token(ctx)
		if err != nil {
			return nil, err
		}
		return s.fetch(ctx, class, endpoint, tok)
	})
}

func userToken(cred *models.Credential) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if cred == nil || cred.AccessToken == "" {
			return "", shared.ErrCredentialNotFound
		}
		return cred.AccessToken, nil
	}
}

// Profile retrieves the current authenticated user's profile.
func (s *SpotifyService) Profile(ctx context.Context, cred *models.Credential) (*SpotifyUser, error) {
	body, err := s.cachedFetch(ctx, "spotify:profile:"+cred.UserID, s.ttl.ProfileTTL(),
		resilience.ClassProfile, "/me", userToken(cred))
	if err != nil {
		return nil, err
	}

	var user SpotifyUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &user, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/tracks/%s", url.PathEscape(trackID))
	body, err := s.cachedFetch(ctx, "spotify:track:"+trackID, s.ttl.TrackTTL(),
		resilience.ClassTracks, endpoint, s.appAccessToken)
	if err != nil {
		return nil, err
	}

	var track SpotifyTrack
	if err := json.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}
	return &track, nil
}

// SeveralTracks retrieves multiple tracks by their IDs (up to 50).
func (s *SpotifyService) SeveralTracks(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrMissingArgument)
	}
	if len(trackIDs) > 50 {
		return nil, fmt.Errorf("%w: maximum 50 track IDs allowed", shared.ErrInvalidArgument)
	}

	token, err := s.appAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/tracks?ids=%s", url.QueryEscape(strings.Join(trackIDs, ",")))
	body, err := s.fetch(ctx, resilience.ClassTracks, endpoint, token)
	if err != nil {
		return nil, err
	}

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode tracks: %w", err)
	}
	return response.Tracks, nil
}

// Artist retrieves a single artist by ID.
func (s *SpotifyService) Artist(ctx context.Context, artistID string) (*SpotifyArtist, error) {
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/artists/%s", url.PathEscape(artistID))
	body, err := s.cachedFetch(ctx, "spotify:artist:"+artistID, s.ttl.ArtistTTL(),
		resilience.ClassArtists, endpoint, s.appAccessToken)
	if err != nil {
		return nil, err
	}

	var artist SpotifyArtist
	if err := json.Unmarshal(body, &artist); err != nil {
		return nil, fmt.Errorf("failed to decode artist: %w", err)
	}
	return &artist, nil
}

// SearchArtists searches the catalog for artists matching a query.
func (s *SpotifyService) SearchArtists(ctx context.Context, query string, limit int) ([]SpotifyArtist, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	limit = clampLimit(limit, 20, 50)

	token, err := s.appAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=artist&limit=%d", url.QueryEscape(query), limit)
	body, err := s.fetch(ctx, resilience.ClassSearch, endpoint, token)
	if err != nil {
		return nil, err
	}

	var response struct {
		Artists struct {
			Items []SpotifyArtist `json:"items"`
		} `json:"artists"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return response.Artists.Items, nil
}

// TopArtists retrieves the user's top artists for a time range
// (short_term, medium_term, long_term).
func (s *SpotifyService) TopArtists(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]SpotifyArtist, error) {
	limit = clampLimit(limit, 20, 50)
	timeRange = normalizeTimeRange(timeRange)

	key := fmt.Sprintf("spotify:top:artists:%s:%s:%d", cred.UserID, timeRange, limit)
	endpoint := fmt.Sprintf("/me/top/artists?limit=%d&time_range=%s", limit, timeRange)

	body, err := s.cachedFetch(ctx, key, s.ttl.ArtistTTL(), resilience.ClassProfile, endpoint, userToken(cred))
	if err != nil {
		return nil, err
	}

	var response struct {
		Items []SpotifyArtist `json:"items"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode top artists: %w", err)
	}
	return response.Items, nil
}

// TopTracks retrieves the user's top tracks for a time range.
func (s *SpotifyService) TopTracks(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]SpotifyTrack, error) {
	limit = clampLimit(limit, 20, 50)
	timeRange = normalizeTimeRange(timeRange)

	key := fmt.Sprintf("spotify:top:tracks:%s:%s:%d", cred.UserID, timeRange, limit)
	endpoint := fmt.Sprintf("/me/top/tracks?limit=%d&time_range=%s", limit, timeRange)

	body, err := s.cachedFetch(ctx, key, s.ttl.TrackTTL(), resilience.ClassProfile, endpoint, userToken(cred))
	if err != nil {
		return nil, err
	}

	var response struct {
		Items []SpotifyTrack `json:"items"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode top tracks: %w", err)
	}
	return response.Items, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, cred *models.Credential, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	limit = clampLimit(limit, 20, 50)
	if offset < 0 {
		offset = 0
	}

	key := fmt.Sprintf("spotify:playlists:%s:%d:%d", cred.UserID, limit, offset)
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	body, err := s.cachedFetch(ctx, key, s.ttl.PlaylistTTL(), resilience.ClassPlaylists, endpoint, userToken(cred))
	if err != nil {
		return nil, err
	}

	var response SpotifyPaginatedPlaylists
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode playlists: %w", err)
	}
	return &response, nil
}

// Recommendations retrieves recommended tracks for the given seeds,
// applying popularity and release date filters locally.
func (s *SpotifyService) Recommendations(ctx context.Context, cred *models.Credential, opts RecommendationOptions) ([]RecommendedTrack, error) {
	limit := clampLimit(opts.Limit, 20, 100)

	genres := opts.Genres
	if len(genres) == 0 {
		genres = s.deriveSeedGenres(ctx, cred)
	}
	genres, artists, tracks := capSeeds(genres, opts.SeedArtists, opts.SeedTracks)

	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	if len(genres) > 0 {
		params.Set("seed_genres", strings.Join(genres, ","))
	}
	if len(artists) > 0 {
		params.Set("seed_artists", strings.Join(artists, ","))
	}
	if len(tracks) > 0 {
		params.Set("seed_tracks", strings.Join(tracks, ","))
	}
	endpoint := "/recommendations?" + params.Encode()

	token := s.appAccessToken
	keyOwner := "app"
	if cred != nil {
		token = userToken(cred)
		keyOwner = cred.UserID
	}

	key := fmt.Sprintf("spotify:recommendations:%s:%s", keyOwner, params.Encode())
	body, err := s.cachedFetch(ctx, key, s.ttl.RecommendationTTL(), resilience.ClassRecommendations, endpoint, token)
	if err != nil {
		return nil, err
	}

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}

	return filterRecommendations(response.Tracks, opts), nil
}

// deriveSeedGenres builds seed genres from the user's top artists,
// ranked by how often each genre appears. Falls back to the default set.
func (s *SpotifyService) deriveSeedGenres(ctx context.Context, cred *models.Credential) []string {
	if cred == nil {
		return defaultSeedGenres
	}

	artists, err := s.TopArtists(ctx, cred, MaxSeeds, "medium_term")
	if err != nil {
		s.logger.Warn("falling back to default seed genres", "user_id", cred.UserID, "error", err)
		return defaultSeedGenres
	}

	counts := map[string]int{}
	for _, artist := range artists {
		for _, genre := range artist.Genres {
			counts[genre]++
		}
	}
	if len(counts) == 0 {
		return defaultSeedGenres
	}

	genres := make([]string, 0, len(counts))
	for genre := range counts {
		genres = append(genres, genre)
	}
	sort.Slice(genres, func(i, j int) bool {
		if counts[genres[i]] != counts[genres[j]] {
			return counts[genres[i]] > counts[genres[j]]
		}
		return genres[i] < genres[j]
	})

	if len(genres) > MaxSeeds {
		genres = genres[:MaxSeeds]
	}
	return genres
}

// capSeeds trims the combined seed set to [MaxSeeds], genres first.
func capSeeds(genres, artists, tracks []string) ([]string, []string, []string) {
	budget := MaxSeeds
	take := func(seeds []string) []string {
		if len(seeds) > budget {
			seeds = seeds[:budget]
		}
		budget -= len(seeds)
		return seeds
	}
	genres = take(genres)
	artists = take(artists)
	tracks = take(tracks)
	return genres, artists, tracks
}

// filterRecommendations flattens provider tracks and applies local
// popularity and release-date filters.
func filterRecommendations(tracks []SpotifyTrack, opts RecommendationOptions) []RecommendedTrack {
	var floor time.Time
	if opts.ReleasedAfter != "" {
		if parsed, err := parseReleaseDate(opts.ReleasedAfter); err == nil {
			floor = parsed
		}
	}

	results := make([]RecommendedTrack, 0, len(tracks))
	for _, track := range tracks {
		if opts.MinPopularity > 0 && track.Popularity < opts.MinPopularity {
			continue
		}
		if !floor.IsZero() {
			released, err := parseReleaseDate(track.Album.ReleaseDate)
			if err != nil || released.Before(floor) {
				continue
			}
		}

		names := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			names = append(names, artist.Name)
		}

		results = append(results, RecommendedTrack{
			ID:          track.ID,
			Name:        track.Name,
			Artists:     names,
			Album:       track.Album.Name,
			ReleaseDate: track.Album.ReleaseDate,
			DurationMS:  track.DurationMS,
			Popularity:  track.Popularity,
			PreviewURL:  track.PreviewURL,
			URI:         track.URI,
		})
	}
	return results
}

// parseReleaseDate parses Spotify release dates, padding YYYY and YYYY-MM
// precision to the first day of the period.
func parseReleaseDate(value string) (time.Time, error) {
	switch len(value) {
	case 4:
		value += "-01-01"
	case 7:
		value += "-01"
	}
	return time.Parse("2006-01-02", value)
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func normalizeTimeRange(timeRange string) string {
	switch timeRange {
	case "short_term", "medium_term", "long_term":
		return timeRange
	default:
		return "medium_term"
	}
}
