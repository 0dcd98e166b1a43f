package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/resilience"
)

// healthBody reports service liveness and the state of every upstream
// circuit breaker.
type healthBody struct {
	Status   string                                        `json:"status"`
	Breakers map[resilience.Class]resilience.BreakerStatus `json:"breakers"`
}

// HealthHandler serves the unauthenticated health endpoint.
type HealthHandler struct {
	client *resilience.Client
	logger *log.Logger
}

// NewHealthHandler creates the health endpoint.
func NewHealthHandler(client *resilience.Client, logger *log.Logger) *HealthHandler {
	return &HealthHandler{client: client, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *HealthHandler) Routes() []string {
	return []string{"GET /api/health"}
}

// ServeHTTP reports overall status. Any open breaker degrades the status
// without failing the check: the service itself is still up.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	breakers := h.client.Snapshot()

	status := "ok"
	for _, breaker := range breakers {
		if breaker.State != "closed" {
			status = "degraded"
			break
		}
	}

	respondJSON(w, http.StatusOK, healthBody{Status: status, Breakers: breakers})
}
