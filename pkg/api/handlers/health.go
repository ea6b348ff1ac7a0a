package handlers

import (
	"net/http"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the broker engine initialized?
type HealthHandler struct {
	broker *broker.Broker
}

// NewHealthHandler creates a new health handler. The broker may be nil,
// in which case readiness reports unhealthy.
func NewHealthHandler(b *broker.Broker) *HealthHandler {
	return &HealthHandler{broker: b}
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Liveness handles GET /health. Always 200 while the process serves
// requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"service": "sbemu"},
	})
}

// Readiness handles GET /health/ready. 200 once the broker engine is
// up, 503 before.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "broker not initialized",
		})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}
