package handlers

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout bounds the store ping done by a health check
const healthTimeout = 2 * time.Second

// Pinger checks that the store answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and readiness
type HealthHandler struct {
	BaseHandler
	pinger Pinger
	ready  func() bool
}

// NewHealthHandler returns a handler that pings the store. ready, when set, gates
// the response on an extra readiness condition such as applied migrations.
func NewHealthHandler(pinger Pinger, ready func() bool) *HealthHandler {
	return &HealthHandler{pinger: pinger, ready: ready}
}

type healthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	Migrations string `json:"migrations,omitempty"`
}

// Health handles GET /api/health and /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	response := healthResponse{Status: "OK", Store: "up"}
	code := http.StatusOK
	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			response.Status, response.Store = "unavailable", "down"
			code = http.StatusServiceUnavailable
		}
	}
	if h.ready != nil {
		response.Migrations = "complete"
		if !h.ready() {
			response.Status, response.Migrations = "unavailable", "pending"
			code = http.StatusServiceUnavailable
		}
	}
	h.respondWithJSON(w, code, response)
}
