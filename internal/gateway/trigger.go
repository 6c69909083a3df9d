package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/flemzord/sitterd/internal/maintenance"
	"github.com/flemzord/sitterd/internal/security"
	"github.com/go-chi/chi/v5"
)

// handleTrigger runs the job named in the path and responds with its
// result once it finishes. The job keeps running if the caller hangs up;
// only server shutdown bounds it.
func (g *Gateway) handleTrigger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "job")

		if g.limiter != nil {
			if err := g.limiter.Allow(security.KindTrigger); err != nil {
				if g.audit != nil {
					g.audit.Log(security.AuditEvent{
						Type:       security.EventRateLimit,
						Job:        name,
						Source:     "http",
						RemoteAddr: r.RemoteAddr,
						Detail:     security.KindTrigger,
					})
				}
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
		}

		res, err := g.runner.Run(context.WithoutCancel(r.Context()), name, "http")
		switch {
		case errors.Is(err, maintenance.ErrUnknownJob):
			writeError(w, http.StatusNotFound, "unknown job: "+name)
		case errors.Is(err, maintenance.ErrJobRunning):
			writeError(w, http.StatusConflict, "job already running: "+name)
		case err != nil:
			writeError(w, http.StatusInternalServerError, g.redact(err.Error()))
		default:
			writeJSON(w, http.StatusOK, res.Body())
		}
	}
}

func (g *Gateway) redact(s string) string {
	if g.redactor == nil {
		return s
	}
	return g.redactor.Redact(s)
}
