package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/security"
)

// bearerAuth returns a chi-compatible middleware that checks the
// Authorization header against secret in constant time. Every attempt
// counts against the "auth" rate limit bucket and produces an audit event.
func bearerAuth(secret string, auditLogger *security.AuditLogger, rateLimiter *security.RateLimiter, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rateLimiter != nil {
				if err := rateLimiter.Allow(security.KindAuth); err != nil {
					emitAuthEvent(auditLogger, security.EventRateLimit, r, security.KindAuth)
					writeError(w, http.StatusTooManyRequests, "too many requests")
					return
				}
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || secret == "" || !constantTimeEqual(token, secret) {
				detail := "invalid credentials"
				if r.Header.Get("Authorization") == "" {
					detail = "missing authorization header"
				}
				emitAuthEvent(auditLogger, security.EventAuthFailure, r, detail)
				m.ObserveAuthFailure()
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			emitAuthEvent(auditLogger, security.EventAuthSuccess, r, "bearer")
			next.ServeHTTP(w, r)
		})
	}
}

// emitAuthEvent logs an auth event to the audit logger if available.
func emitAuthEvent(logger *security.AuditLogger, eventType security.EventType, r *http.Request, detail string) {
	if logger == nil {
		return
	}
	logger.Log(security.AuditEvent{
		Type:       eventType,
		Source:     "http",
		RemoteAddr: r.RemoteAddr,
		Detail:     detail,
		Metadata: map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
