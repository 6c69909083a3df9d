package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/sitterd/internal/cron"
	"github.com/flemzord/sitterd/internal/maintenance"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   float64              `json:"uptime_seconds"`
	Jobs     []maintenance.Status `json:"jobs"`
	Schedule []cron.Entry         `json:"schedule,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Jobs:   g.runner.Status(),
		}
		if g.schedule != nil {
			resp.Schedule = g.schedule()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
