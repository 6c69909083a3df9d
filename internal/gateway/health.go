package gateway

import (
	"context"
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Error  string `json:"error,omitempty"`
}

// handleHealth returns 200 when the store answers a ping within
// HealthTimeout and 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		status := http.StatusOK

		if g.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), g.config.HealthTimeout)
			defer cancel()
			if err := g.store.Ping(ctx); err != nil {
				resp = HealthResponse{Status: "degraded", Error: g.redact(err.Error())}
				status = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, status, resp)
	}
}
