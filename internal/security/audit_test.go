package security

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	at := time.Date(2026, 1, 1, 3, 0, 0, 0, time.FixedZone("CET", 3600))
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return at },
	})

	logger.Log(AuditEvent{Type: EventJobTrigger, Job: "expire-invite-codes", Source: "http", RemoteAddr: "10.0.0.1:5555"})
	logger.Log(AuditEvent{Type: EventJobResult, Job: "expire-invite-codes", Detail: "success", Metadata: map[string]string{"expiredCount": "2"}})

	var got []AuditEvent
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2", len(got))
	}
	if got[0].Type != EventJobTrigger || got[0].Source != "http" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Metadata["expiredCount"] != "2" {
		t.Errorf("second event metadata = %v", got[1].Metadata)
	}
	if !got[0].Timestamp.Equal(at) || got[0].Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v, want %v in UTC", got[0].Timestamp, at)
	}
}

func TestAuditLogger_Redacts(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("my-secret-key")

	var seen AuditEvent
	var buf bytes.Buffer
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer:   &buf,
		Redactor: r,
		OnEvent:  func(e AuditEvent) { seen = e },
	})

	meta := map[string]string{"header": "Bearer my-secret-key"}
	logger.Log(AuditEvent{Type: EventAuthFailure, Detail: "presented my-secret-key", Metadata: meta})

	if out := buf.String(); strings.Contains(out, "my-secret-key") || !strings.Contains(out, RedactPlaceholder) {
		t.Errorf("audit output not redacted: %s", out)
	}
	if strings.Contains(seen.Detail, "my-secret-key") {
		t.Errorf("OnEvent saw unredacted detail: %q", seen.Detail)
	}
	if meta["header"] != "Bearer my-secret-key" {
		t.Errorf("caller metadata mutated: %v", meta)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAuditLogger_WriteFailures(t *testing.T) {
	t.Parallel()

	var reported []error
	var delivered int
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer:       failingWriter{},
		OnEvent:      func(AuditEvent) { delivered++ },
		OnWriteError: func(err error) { reported = append(reported, err) },
	})

	logger.Log(AuditEvent{Type: EventJobResult})
	logger.Log(AuditEvent{Type: EventRateLimit})

	if got := logger.WriteErrors(); got != 2 {
		t.Errorf("WriteErrors() = %d, want 2", got)
	}
	if len(reported) != 2 || !strings.Contains(reported[1].Error(), "rate_limit") {
		t.Errorf("reported = %v", reported)
	}
	if delivered != 2 {
		t.Errorf("OnEvent ran %d times, want 2 despite write failures", delivered)
	}
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	t.Parallel()

	var logger *AuditLogger
	logger.Log(AuditEvent{Type: EventAuthSuccess})
	if logger.WriteErrors() != 0 {
		t.Error("nil logger should report no write errors")
	}
}

func TestAuditLogger_ConcurrentWritesKeepLinesWhole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEvent{Type: EventJobResult, Detail: "concurrent"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("corrupt line %q", line)
		}
	}
}
