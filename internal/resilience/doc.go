// Package resilience wraps outbound Spotify Web API calls with retry,
// circuit breaking, and client-side rate limiting.
//
// # Endpoint classes
//
// Calls are grouped into a [Class] per downstream endpoint family
// (accounts, profile, tracks, artists, playlists, recommendations,
// search). Each class gets its own circuit breaker so a failing
// recommendations endpoint cannot take down track lookups.
//
// # Retry policy
//
// Transient failures (network errors, 5xx, 429) are retried with
// exponential backoff and jitter up to a configured budget. A 429
// Retry-After hint from the provider overrides the computed delay for the
// next attempt. Any other 4xx propagates immediately as
// [shared.ErrUpstreamRejected] without consuming the retry budget.
//
// # Circuit breaking
//
// Breakers ([gobreaker.CircuitBreaker]) trip after a configured number of
// consecutive failures, reject calls with [shared.ErrCircuitOpen] for the
// cooldown period, then admit a single trial call. The trial's outcome
// either closes the breaker or restarts the cooldown. An open circuit also
// short-circuits the retry loop: callers get the rejection immediately.
package resilience
