package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/flemzord/sitterd/internal/config"
	"github.com/flemzord/sitterd/internal/core"
	"gopkg.in/yaml.v3"
)

// probeModule records its lifecycle into a shared log. A config with
// fail: true makes Start fail.
type probeModule struct {
	log  *eventLog
	fail bool
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

func (m *probeModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "reloadprobe.module", New: func() core.Module { return &probeModule{} }}
}

func (m *probeModule) Configure(node *yaml.Node) error {
	var cfg struct {
		Fail bool `yaml:"fail"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	m.fail = cfg.Fail
	return nil
}

func (m *probeModule) Start() error {
	if m.fail {
		m.log.add("start failed")
		return errors.New("probe refused to start")
	}
	m.log.add("start")
	return nil
}

func (m *probeModule) Stop(context.Context) error {
	m.log.add("stop")
	return nil
}

func init() {
	core.RegisterModule(&probeModule{})
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// probeBuilder builds apps holding one probe module configured from cfg.
func probeBuilder(log *eventLog) Builder {
	return func(cfg *config.Config) (*core.App, error) {
		node := cfg.Modules["reloadprobe.module"]
		m := &probeModule{log: log}
		if err := m.Configure(&node); err != nil {
			return nil, err
		}
		app := core.NewApp(core.NewAppContext(testLogger(), "/data"))
		app.AppendModule("reloadprobe.module", m)
		return app, nil
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sitterd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, body))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

const okConfig = "version: \"1\"\nmodules:\n  reloadprobe.module: {}\n"

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	h := NewHandler(probeBuilder(&eventLog{}), testLogger())

	if err := h.HandleReload(context.Background(), "/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfigKeepsRunningApp(t *testing.T) {
	log := &eventLog{}
	h := NewHandler(probeBuilder(log), testLogger())
	if err := h.Start(loadConfig(t, okConfig)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := h.HandleReload(context.Background(), writeConfig(t, "modules:\n  nope.missing: {}\n"))
	if err == nil {
		t.Error("expected validation error")
	}
	if got := log.all(); !slices.Equal(got, []string{"start"}) {
		t.Errorf("events = %v, want the running app untouched", got)
	}
	if h.App() == nil {
		t.Error("running app was dropped")
	}
}

func TestHandler_HandleReload_Restarts(t *testing.T) {
	log := &eventLog{}
	h := NewHandler(probeBuilder(log), testLogger())
	if err := h.Start(loadConfig(t, okConfig)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := h.App()

	if err := h.HandleReload(context.Background(), writeConfig(t, okConfig)); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if got := log.all(); !slices.Equal(got, []string{"start", "stop", "start"}) {
		t.Errorf("events = %v", got)
	}
	if h.App() == first {
		t.Error("app was not replaced")
	}

	h.Stop()
	if h.App() != nil {
		t.Error("Stop should drop the app")
	}
}

func TestHandler_HandleReload_RestoresPreviousOnStartFailure(t *testing.T) {
	log := &eventLog{}
	h := NewHandler(probeBuilder(log), testLogger())
	if err := h.Start(loadConfig(t, okConfig)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bad := loadConfig(t, "version: \"1\"\nmodules:\n  reloadprobe.module:\n    fail: true\n")
	if err := h.HandleReloadFromConfig(context.Background(), bad); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start", "stop", "start failed", "stop", "start"}
	if got := log.all(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if h.App() == nil {
		t.Error("previous configuration was not restored")
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	h := NewHandler(probeBuilder(&eventLog{}), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.HandleReloadFromConfig(ctx, &config.Config{Version: "1"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
