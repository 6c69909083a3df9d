package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/flemzord/sitterd/internal/config"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	_, span := p.Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("noop provider produced a valid span context")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func TestSetup_ExportsToCollector(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.TelemetryConfig{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Insecure: true,
	}
	p, err := Setup(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	_, span := p.Tracer().Start(context.Background(), "job.run")
	if !span.SpanContext().IsValid() {
		t.Error("expected a sampled span")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if hits.Load() == 0 {
		t.Error("collector received no trace export")
	}
}
