package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/cache"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/resilience"
	"github.com/harmonium-app/harmonium/internal/shared"
)

func testConfig() *shared.Config {
	return &shared.Config{
		Credentials: shared.CredentialsConfig{
			Spotify: shared.SpotifyConfig{
				ClientID:     "test-client",
				ClientSecret: "test-secret",
				RedirectURI:  "http://localhost/cb",
			},
		},
	}
}

// testService points the Spotify service at local API and token servers.
func testService(t *testing.T, api, token http.HandlerFunc) (*SpotifyService, *int, *int) {
	t.Helper()

	apiHits := 0
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiHits++
		api(w, r)
	}))
	t.Cleanup(apiServer.Close)

	tokenHits := 0
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenHits++
		if token != nil {
			token(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"app-token","expires_in":3600}`)
	}))
	t.Cleanup(tokenServer.Close)

	client := resilience.NewClient(resilience.Options{
		MaxRetries:       1,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		FailureThreshold: 100,
	})

	service, err := NewSpotifyService(testConfig(), client, cache.New(cache.NewMemoryStore(), log.New(io.Discard)), log.New(io.Discard))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	service.baseURL = apiServer.URL
	service.tokenURL = tokenServer.URL

	return service, &apiHits, &tokenHits
}

func testUserCred() *models.Credential {
	return models.NewCredential("alice", "user-token", "refresh", time.Now().Add(time.Hour))
}

func TestNewSpotifyService(t *testing.T) {
	t.Run("Requires Client Credentials", func(t *testing.T) {
		cfg := testConfig()
		cfg.Credentials.Spotify.ClientSecret = ""

		_, err := NewSpotifyService(cfg, nil, nil, nil)
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestAppAccessToken(t *testing.T) {
	t.Run("Caches The Token", func(t *testing.T) {
		service, _, tokenHits := testService(t, nil, nil)

		for range 3 {
			token, err := service.appAccessToken(context.Background())
			if err != nil {
				t.Fatalf("failed to get app token: %v", err)
			}
			if token != "app-token" {
				t.Errorf("unexpected token %q", token)
			}
		}

		if *tokenHits != 1 {
			t.Errorf("expected a single token request, got %d", *tokenHits)
		}
	})

	t.Run("Refreshes Before Expiry", func(t *testing.T) {
		service, _, tokenHits := testService(t, nil, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"access_token":"app-token","expires_in":60}`)
		})

		if _, err := service.appAccessToken(context.Background()); err != nil {
			t.Fatalf("failed to get app token: %v", err)
		}

		// Inside the refresh leeway the cached token no longer counts.
		service.now = func() time.Time { return time.Now().Add(40 * time.Second) }

		if _, err := service.appAccessToken(context.Background()); err != nil {
			t.Fatalf("failed to refresh app token: %v", err)
		}
		if *tokenHits != 2 {
			t.Errorf("expected a second token request near expiry, got %d", *tokenHits)
		}
	})

	t.Run("Sends Client Credentials", func(t *testing.T) {
		service, _, _ := testService(t, nil, func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "test-client" || pass != "test-secret" {
				t.Errorf("expected basic auth with client credentials, got %q %q", user, pass)
			}
			if err := r.ParseForm(); err == nil && r.PostForm.Get("grant_type") != "client_credentials" {
				t.Errorf("expected client_credentials grant, got %q", r.PostForm.Get("grant_type"))
			}
			fmt.Fprint(w, `{"access_token":"app-token","expires_in":3600}`)
		})

		if _, err := service.appAccessToken(context.Background()); err != nil {
			t.Fatalf("failed to get app token: %v", err)
		}
	})

	t.Run("Rejects Empty Grant", func(t *testing.T) {
		service, _, _ := testService(t, nil, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		})

		if _, err := service.appAccessToken(context.Background()); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest for empty grant, got %v", err)
		}
	})
}

func TestTrack(t *testing.T) {
	t.Run("Requires An ID", func(t *testing.T) {
		service, _, _ := testService(t, nil, nil)

		if _, err := service.Track(context.Background(), ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Fetches With The App Token And Caches", func(t *testing.T) {
		service, apiHits, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer app-token" {
				t.Errorf("expected app token, got %q", got)
			}
			fmt.Fprint(w, `{"id":"abc","name":"Song","popularity":70}`)
		}, nil)

		for range 2 {
			track, err := service.Track(context.Background(), "abc")
			if err != nil {
				t.Fatalf("failed to fetch track: %v", err)
			}
			if track.ID != "abc" || track.Name != "Song" {
				t.Errorf("unexpected track: %+v", track)
			}
		}

		if *apiHits != 1 {
			t.Errorf("expected the second lookup to hit the cache, got %d api calls", *apiHits)
		}
	})

	t.Run("Maps Upstream 401 To Token Expired", func(t *testing.T) {
		service, _, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}, nil)

		if _, err := service.Track(context.Background(), "abc"); !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})
}

func TestSeveralTracks(t *testing.T) {
	service, _, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tracks":[{"id":"a"},{"id":"b"}]}`)
	}, nil)

	t.Run("Rejects Empty And Oversized Batches", func(t *testing.T) {
		if _, err := service.SeveralTracks(context.Background(), nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}

		ids := make([]string, 51)
		for i := range ids {
			ids[i] = fmt.Sprintf("t%d", i)
		}
		if _, err := service.SeveralTracks(context.Background(), ids); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Returns The Batch", func(t *testing.T) {
		tracks, err := service.SeveralTracks(context.Background(), []string{"a", "b"})
		if err != nil {
			t.Fatalf("failed to fetch tracks: %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(tracks))
		}
	})
}

func TestProfile(t *testing.T) {
	service, apiHits, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("expected the user token, got %q", got)
		}
		fmt.Fprint(w, `{"id":"alice","display_name":"Alice"}`)
	}, nil)

	cred := testUserCred()
	for range 2 {
		user, err := service.Profile(context.Background(), cred)
		if err != nil {
			t.Fatalf("failed to fetch profile: %v", err)
		}
		if user.ID != "alice" {
			t.Errorf("unexpected profile: %+v", user)
		}
	}

	if *apiHits != 1 {
		t.Errorf("expected the second lookup to hit the cache, got %d api calls", *apiHits)
	}

	t.Run("Requires A Credential Token", func(t *testing.T) {
		empty := &models.Credential{UserID: "bob"}
		if _, err := service.Profile(context.Background(), empty); !errors.Is(err, shared.ErrCredentialNotFound) {
			t.Errorf("expected ErrCredentialNotFound, got %v", err)
		}
	})
}

func TestTopArtists(t *testing.T) {
	var gotPath string
	service, _, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		fmt.Fprint(w, `{"items":[{"id":"a1","name":"Band","genres":["rock"]}]}`)
	}, nil)

	artists, err := service.TopArtists(context.Background(), testUserCred(), 0, "bogus")
	if err != nil {
		t.Fatalf("failed to fetch top artists: %v", err)
	}
	if len(artists) != 1 || artists[0].ID != "a1" {
		t.Errorf("unexpected artists: %+v", artists)
	}

	// Zero limit and unknown range normalize to the defaults.
	if gotPath != "/me/top/artists?limit=20&time_range=medium_term" {
		t.Errorf("unexpected request path %q", gotPath)
	}
}

func TestSearchArtists(t *testing.T) {
	service, _, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"artists":{"items":[{"id":"a1","name":"The Band"}]}}`)
	}, nil)

	t.Run("Requires A Query", func(t *testing.T) {
		if _, err := service.SearchArtists(context.Background(), "   ", 10); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Returns Matches", func(t *testing.T) {
		artists, err := service.SearchArtists(context.Background(), "the band", 10)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(artists) != 1 || artists[0].Name != "The Band" {
			t.Errorf("unexpected results: %+v", artists)
		}
	})
}

func TestRecommendations(t *testing.T) {
	recsBody := func(tracks ...SpotifyTrack) string {
		body, _ := json.Marshal(map[string][]SpotifyTrack{"tracks": tracks})
		return string(body)
	}

	t.Run("Anonymous Uses App Token And Default Genres", func(t *testing.T) {
		var gotAuth, gotSeeds string
		service, _, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotSeeds = r.URL.Query().Get("seed_genres")
			fmt.Fprint(w, recsBody(SpotifyTrack{ID: "t1"}))
		}, nil)

		tracks, err := service.Recommendations(context.Background(), nil, RecommendationOptions{})
		if err != nil {
			t.Fatalf("recommendations failed: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("expected 1 track, got %d", len(tracks))
		}
		if gotAuth != "Bearer app-token" {
			t.Errorf("expected the app token, got %q", gotAuth)
		}
		if gotSeeds != "pop,rock,hip-hop" {
			t.Errorf("expected default seed genres, got %q", gotSeeds)
		}
	})

	t.Run("Derives Genres From Top Artists", func(t *testing.T) {
		var gotSeeds string
		service, _, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/me/top/artists" {
				fmt.Fprint(w, `{"items":[
					{"id":"a1","genres":["indie","rock"]},
					{"id":"a2","genres":["rock"]}
				]}`)
				return
			}
			gotSeeds = r.URL.Query().Get("seed_genres")
			fmt.Fprint(w, recsBody())
		}, nil)

		_, err := service.Recommendations(context.Background(), testUserCred(), RecommendationOptions{})
		if err != nil {
			t.Fatalf("recommendations failed: %v", err)
		}
		if gotSeeds != "rock,indie" {
			t.Errorf("expected genres ranked by frequency, got %q", gotSeeds)
		}
	})

	t.Run("Filters By Popularity And Release Date", func(t *testing.T) {
		service, _, _ := testService(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, recsBody(
				SpotifyTrack{ID: "old", Popularity: 90, Album: SpotifyAlbum{ReleaseDate: "1999"}},
				SpotifyTrack{ID: "unpopular", Popularity: 10, Album: SpotifyAlbum{ReleaseDate: "2023-05-01"}},
				SpotifyTrack{ID: "keeper", Popularity: 80, Album: SpotifyAlbum{ReleaseDate: "2023-05"}},
			))
		}, nil)

		tracks, err := service.Recommendations(context.Background(), nil, RecommendationOptions{
			Genres:        []string{"rock"},
			MinPopularity: 50,
			ReleasedAfter: "2020",
		})
		if err != nil {
			t.Fatalf("recommendations failed: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "keeper" {
			t.Errorf("expected only the keeper track, got %+v", tracks)
		}
	})
}

func TestCapSeeds(t *testing.T) {
	genres, artists, tracks := capSeeds(
		[]string{"g1", "g2", "g3"},
		[]string{"a1", "a2", "a3"},
		[]string{"t1"},
	)

	if len(genres) != 3 {
		t.Errorf("genres take the budget first, got %v", genres)
	}
	if len(artists) != 2 {
		t.Errorf("expected artists trimmed to the remaining budget, got %v", artists)
	}
	if len(tracks) != 0 {
		t.Errorf("expected no budget left for tracks, got %v", tracks)
	}
}

func TestParseReleaseDate(t *testing.T) {
	cases := []struct {
		value string
		want  string
	}{
		{"2023-05-15", "2023-05-15"},
		{"2023-05", "2023-05-01"},
		{"2023", "2023-01-01"},
	}

	for _, tc := range cases {
		parsed, err := parseReleaseDate(tc.value)
		if err != nil {
			t.Errorf("parseReleaseDate(%q) failed: %v", tc.value, err)
			continue
		}
		if got := parsed.Format("2006-01-02"); got != tc.want {
			t.Errorf("parseReleaseDate(%q) = %s, want %s", tc.value, got, tc.want)
		}
	}

	if _, err := parseReleaseDate("not-a-date"); err == nil {
		t.Error("expected an error for garbage input")
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		limit, fallback, max, want int
	}{
		{0, 20, 50, 20},
		{-3, 20, 50, 20},
		{10, 20, 50, 10},
		{99, 20, 50, 50},
	}

	for _, tc := range cases {
		if got := clampLimit(tc.limit, tc.fallback, tc.max); got != tc.want {
			t.Errorf("clampLimit(%d, %d, %d) = %d, want %d", tc.limit, tc.fallback, tc.max, got, tc.want)
		}
	}
}

func TestNormalizeTimeRange(t *testing.T) {
	for input, want := range map[string]string{
		"short_term":  "short_term",
		"medium_term": "medium_term",
		"long_term":   "long_term",
		"":            "medium_term",
		"weird":       "medium_term",
	} {
		if got := normalizeTimeRange(input); got != want {
			t.Errorf("normalizeTimeRange(%q) = %q, want %q", input, got, want)
		}
	}
}
