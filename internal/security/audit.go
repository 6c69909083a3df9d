package security

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventAuthSuccess EventType = "auth_success"
	EventAuthFailure EventType = "auth_failure"
	EventRateLimit   EventType = "rate_limit"
	EventJobTrigger  EventType = "job_trigger"
	EventJobResult   EventType = "job_result"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Job        string            `json:"job,omitempty"`
	Source     string            `json:"source,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger. Every field is optional.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line.
	Writer io.Writer

	// Redactor scrubs Detail and Metadata values before anything sees them.
	Redactor *Redactor

	// OnEvent observes every event after redaction.
	OnEvent func(AuditEvent)

	// OnWriteError is told about failed writes. The event is dropped either
	// way; auditing never fails the operation being audited.
	OnWriteError func(error)

	// Now defaults to time.Now.
	Now func() time.Time
}

// AuditLogger appends AuditEvents to a JSONL stream. It is safe for
// concurrent use and a nil *AuditLogger discards events.
type AuditLogger struct {
	cfg AuditLoggerConfig

	mu          sync.Mutex
	writeErrors int
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuditLogger{cfg: cfg}
}

// Log stamps, redacts and records event. The caller's Metadata map is left
// untouched.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}

	event.Timestamp = l.cfg.Now().UTC()
	event.Metadata = maps.Clone(event.Metadata)
	if r := l.cfg.Redactor; r != nil {
		event.Detail = r.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = r.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
	if l.cfg.Writer == nil {
		return
	}
	if err := l.write(event); err != nil {
		l.writeErrors++
		if l.cfg.OnWriteError != nil {
			l.cfg.OnWriteError(err)
		}
	}
}

// write emits event with a single Write call so a line is never split
// across two writes.
func (l *AuditLogger) write(event AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encoding %s event: %w", event.Type, err)
	}
	if _, err := l.cfg.Writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: writing %s event: %w", event.Type, err)
	}
	return nil
}

// WriteErrors returns how many events could not be written.
func (l *AuditLogger) WriteErrors() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeErrors
}
