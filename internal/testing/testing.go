// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/services"
)

// MockMusicService is a scriptable test double for [services.MusicService].
// Unset function fields return zero values.
type MockMusicService struct {
	ProfileFunc         func(ctx context.Context, cred *models.Credential) (*services.SpotifyUser, error)
	TrackFunc           func(ctx context.Context, trackID string) (*services.SpotifyTrack, error)
	SeveralTracksFunc   func(ctx context.Context, trackIDs []string) ([]services.SpotifyTrack, error)
	ArtistFunc          func(ctx context.Context, artistID string) (*services.SpotifyArtist, error)
	SearchArtistsFunc   func(ctx context.Context, query string, limit int) ([]services.SpotifyArtist, error)
	TopArtistsFunc      func(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]services.SpotifyArtist, error)
	TopTracksFunc       func(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]services.SpotifyTrack, error)
	UserPlaylistsFunc   func(ctx context.Context, cred *models.Credential, limit, offset int) (*services.SpotifyPaginatedPlaylists, error)
	RecommendationsFunc func(ctx context.Context, cred *models.Credential, opts services.RecommendationOptions) ([]services.RecommendedTrack, error)
}

func (m *MockMusicService) Profile(ctx context.Context, cred *models.Credential) (*services.SpotifyUser, error) {
	if m.ProfileFunc == nil {
		return &services.SpotifyUser{}, nil
	}
	return m.ProfileFunc(ctx, cred)
}

func (m *MockMusicService) Track(ctx context.Context, trackID string) (*services.SpotifyTrack, error) {
	if m.TrackFunc == nil {
		return &services.SpotifyTrack{}, nil
	}
	return m.TrackFunc(ctx, trackID)
}

func (m *MockMusicService) SeveralTracks(ctx context.Context, trackIDs []string) ([]services.SpotifyTrack, error) {
	if m.SeveralTracksFunc == nil {
		return nil, nil
	}
	return m.SeveralTracksFunc(ctx, trackIDs)
}

func (m *MockMusicService) Artist(ctx context.Context, artistID string) (*services.SpotifyArtist, error) {
	if m.ArtistFunc == nil {
		return &services.SpotifyArtist{}, nil
	}
	return m.ArtistFunc(ctx, artistID)
}

func (m *MockMusicService) SearchArtists(ctx context.Context, query string, limit int) ([]services.SpotifyArtist, error) {
	if m.SearchArtistsFunc == nil {
		return nil, nil
	}
	return m.SearchArtistsFunc(ctx, query, limit)
}

func (m *MockMusicService) TopArtists(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]services.SpotifyArtist, error) {
	if m.TopArtistsFunc == nil {
		return nil, nil
	}
	return m.TopArtistsFunc(ctx, cred, limit, timeRange)
}

func (m *MockMusicService) TopTracks(ctx context.Context, cred *models.Credential, limit int, timeRange string) ([]services.SpotifyTrack, error) {
	if m.TopTracksFunc == nil {
		return nil, nil
	}
	return m.TopTracksFunc(ctx, cred, limit, timeRange)
}

func (m *MockMusicService) UserPlaylists(ctx context.Context, cred *models.Credential, limit, offset int) (*services.SpotifyPaginatedPlaylists, error) {
	if m.UserPlaylistsFunc == nil {
		return &services.SpotifyPaginatedPlaylists{}, nil
	}
	return m.UserPlaylistsFunc(ctx, cred, limit, offset)
}

func (m *MockMusicService) Recommendations(ctx context.Context, cred *models.Credential, opts services.RecommendationOptions) ([]services.RecommendedTrack, error) {
	if m.RecommendationsFunc == nil {
		return nil, nil
	}
	return m.RecommendationsFunc(ctx, cred, opts)
}

func (m *MockMusicService) Name() string { return "mock" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
