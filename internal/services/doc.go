// Package services implements the [MusicService] interface for the Spotify Web API.
//
// # Spotify Implementation
//
// [SpotifyService] issues every call through the resilience client, so
// each endpoint family gets retry, rate limiting, and its own circuit
// breaker. Read endpoints are memoized through the cache layer with
// per-resource TTLs.
//
// User-scoped calls authenticate with the caller's credential. Public
// lookups (tracks, artists, search) fall back to an app token obtained via
// the client-credentials grant and refreshed shortly before expiry.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrTokenExpired] : upstream rejected the access token (401)
//   - [shared.ErrUpstreamRejected] : non-retryable upstream 4xx
//   - [shared.ErrCircuitOpen] : endpoint class circuit is open
//   - [shared.ErrAPIRequest] : transient failures exhausted the retry budget
//
// # Recommendations
//
// Recommendations delegate entirely to Spotify's recommendation endpoint.
// When no seed genres are supplied, the service derives them from the
// user's top artists, falling back to a default genre set. Post-filters
// (minimum popularity, release date floor) are applied locally to the
// provider's response.
package services
