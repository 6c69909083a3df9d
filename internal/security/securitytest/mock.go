// Package securitytest provides test helpers for code that emits audit
// events.
package securitytest

import (
	"slices"
	"sync"

	"github.com/flemzord/sitterd/internal/security"
)

// AuditRecorder captures the events of an AuditLogger in memory. It is safe
// for concurrent use, since HTTP handlers under test may log from several
// goroutines.
type AuditRecorder struct {
	mu     sync.Mutex
	events []security.AuditEvent
	logger *security.AuditLogger
}

// NewAuditRecorder returns a recorder whose Logger writes nowhere but into
// the recorder.
func NewAuditRecorder() *AuditRecorder {
	r := &AuditRecorder{}
	r.logger = security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: r.record})
	return r
}

func (r *AuditRecorder) record(e security.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Logger is the AuditLogger to hand to the code under test.
func (r *AuditRecorder) Logger() *security.AuditLogger { return r.logger }

// Events returns a copy of the recorded events in emission order.
func (r *AuditRecorder) Events() []security.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the type of each recorded event in emission order.
func (r *AuditRecorder) Types() []security.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]security.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
