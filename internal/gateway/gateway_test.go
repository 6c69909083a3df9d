package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/maintenance"
	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/store"
	"gopkg.in/yaml.v3"
)

func mustYAMLNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if len(doc.Content) == 0 {
		t.Fatal("empty yaml document")
	}
	return doc.Content[0]
}

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.WriteTimeout != 10*time.Minute {
		t.Errorf("WriteTimeout = %v, want 10m", g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 30*time.Second || g.config.HealthTimeout != 2*time.Second {
		t.Errorf("config = %+v", g.config)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
cron_secret: "from-vault"
write_timeout: 2m
rate_limit:
  auth_per_min: 10
  triggers_per_min: 5
`)
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" || g.config.CronSecret != "from-vault" {
		t.Errorf("config = %+v", g.config)
	}
	if g.config.WriteTimeout != 2*time.Minute {
		t.Errorf("WriteTimeout = %v", g.config.WriteTimeout)
	}
	if g.config.RateLimit.AuthPerMin != 10 || g.config.RateLimit.TriggersPerMin != 5 {
		t.Errorf("RateLimit = %+v", g.config.RateLimit)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"ok", Config{Bind: "127.0.0.1:8080", CronSecret: "x"}, ""},
		{"bad address", Config{Bind: "not a valid address::", CronSecret: "x"}, "bind address"},
		{"missing secret", Config{Bind: "127.0.0.1:8080"}, "cron_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{config: tt.cfg}
			err := g.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_ProvisionRequiresRunner(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	appCtx := core.NewAppContext(slog.New(slog.DiscardHandler), t.TempDir())
	if err := g.Provision(appCtx); err == nil {
		t.Fatal("expected error without maintenance runner")
	}
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doWithBearer sends a request with an optional bearer token.
func doWithBearer(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestGateway_EndToEnd(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	st := store.NewInMemoryStore()
	for code, age := range map[string]time.Duration{"OLD31D": 31 * 24 * time.Hour, "NEW1D": 24 * time.Hour} {
		if err := st.CreateInviteCode(ctx, store.InviteCode{Code: code, GroupID: "g1", CreatedAt: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.DiscardHandler)
	m := metrics.New()
	runner, err := maintenance.NewRunner(maintenance.RunnerConfig{
		Jobs: []maintenance.Job{&maintenance.InviteExpiryJob{
			Store: st, TTL: 30 * 24 * time.Hour, Now: clock, Logger: logger,
		}},
		Leases:  st,
		Logger:  logger,
		Metrics: m,
		Now:     clock,
	})
	if err != nil {
		t.Fatal(err)
	}

	creds := security.NewCredentialStore()
	appCtx := core.NewAppContext(logger, t.TempDir())
	appCtx.RegisterService("maintenance.runner", runner)
	appCtx.RegisterService("store", store.Store(st))
	appCtx.RegisterService("metrics", m)
	appCtx.RegisterService("security.credentials", creds)

	addr := freeAddr(t)
	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "bind: "+addr+"\ncron_secret: "+testSecret+"\n")); err != nil {
		t.Fatal(err)
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v, ok := creds.Get("gateway.cron_secret"); !ok || v != testSecret {
		t.Error("cron secret not registered as a credential")
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = g.Stop(context.Background()) })

	base := "http://" + addr

	resp := doWithBearer(t, http.MethodGet, base+"/api/cron/expire-invite-codes", "")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp = doWithBearer(t, http.MethodPost, base+"/api/cron/expire-invite-codes", testSecret)
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["success"] != true || body["expiredCount"] != float64(1) {
		t.Errorf("trigger = %d %v, want 200 expiredCount 1", resp.StatusCode, body)
	}

	resp = doWithBearer(t, http.MethodGet, base+"/api/cron/reticulate-splines", testSecret)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", resp.StatusCode)
	}

	resp = doWithBearer(t, http.MethodGet, base+"/metrics", "")
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(raw), `sitterd_job_runs_total{job="expire-invite-codes",outcome="success"} 1`) {
		t.Errorf("metrics missing job run:\n%s", raw)
	}

	resp = doWithBearer(t, http.MethodGet, base+"/health", "")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	codes, err := st.ListInviteCodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 1 || codes[0].Code != "NEW1D" {
		t.Errorf("remaining codes = %+v, want NEW1D only", codes)
	}
}
