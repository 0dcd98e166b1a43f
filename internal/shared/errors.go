package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication and OAuth lifecycle errors
	ErrNotAuthenticated   = fmt.Errorf("not authenticated")
	ErrStateMismatch      = fmt.Errorf("state token mismatch")
	ErrExchangeFailed     = fmt.Errorf("authorization code exchange failed")
	ErrTokenExpired       = fmt.Errorf("access token expired")
	ErrRefreshFailed      = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken     = fmt.Errorf("no refresh token available")
	ErrInvalidSession     = fmt.Errorf("invalid session token")
	ErrSessionExpired     = fmt.Errorf("session token expired")
	ErrCredentialNotFound = fmt.Errorf("credential not found")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrUpstreamRejected   = fmt.Errorf("upstream rejected request")
	ErrCircuitOpen        = fmt.Errorf("circuit breaker open")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
