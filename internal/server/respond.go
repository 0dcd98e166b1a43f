package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// respondJSON writes v as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError maps a service error to an HTTP status and writes it as JSON.
func respondError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "error", err)
	}

	respondJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor translates typed service errors into HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrStateMismatch):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrInvalidSession),
		errors.Is(err, shared.ErrSessionExpired),
		errors.Is(err, shared.ErrTokenExpired),
		errors.Is(err, shared.ErrCredentialNotFound),
		errors.Is(err, shared.ErrRefreshFailed):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrPlaylistNotFound),
		errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrCircuitOpen),
		errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrUpstreamRejected),
		errors.Is(err, shared.ErrExchangeFailed),
		errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
