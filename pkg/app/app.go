// Package app wires configuration, logging, telemetry and the module graph
// behind the sitterd commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/sitterd/internal/config"
	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/logging"
	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/telemetry"
)

// Params configures every entry point.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides the configured level when non-nil.
	LogLevel *slog.Level

	// NoColor disables ANSI colors in text logs.
	NoColor bool

	// Stderr receives logs. Defaults to os.Stderr.
	Stderr io.Writer
}

// runtime holds the process-wide pieces that outlive a module graph, so a
// configuration reload rebuilds modules without reopening them.
type runtime struct {
	cfgPath string
	cfg     *config.Config
	dataDir string

	logger    *slog.Logger
	creds     *security.CredentialStore
	redactor  *security.Redactor
	audit     *security.AuditLogger
	auditFile *os.File
	metrics   *metrics.Metrics
	tracing   *telemetry.Provider
}

func newRuntime(ctx context.Context, params Params) (*runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	stderr := params.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Security foundation: every secret a module registers is redacted
	// from logs and audit records.
	creds := security.NewCredentialStore()
	redactor := security.NewRedactor()
	redactor.Track(creds)
	logger := logging.New(cfg.Log, stderr, redactor, logging.Options{
		NoColor: params.NoColor,
		Level:   params.LogLevel,
	})

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	rt := &runtime{
		cfgPath:  cfgPath,
		cfg:      cfg,
		dataDir:  dataDir,
		logger:   logger,
		creds:    creds,
		redactor: redactor,
		metrics:  metrics.New(),
	}

	if err := rt.openAudit(cfg.Audit); err != nil {
		return nil, err
	}

	tracing, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.tracing = tracing

	return rt, nil
}

func (rt *runtime) openAudit(cfg config.AuditConfig) error {
	var w io.Writer
	if path := cfg.Path; path != "-" {
		if path == "" {
			path = "audit.jsonl"
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(rt.dataDir, path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		rt.auditFile = f
		w = f
	}
	logger := rt.logger.With("component", "audit")
	rt.audit = security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   w,
		Redactor: rt.redactor,
		OnWriteError: func(err error) {
			logger.Warn("audit event dropped", "error", err)
		},
	})
	return nil
}

// build loads the modules cfg names without starting them.
func (rt *runtime) build(cfg *config.Config) (*core.App, error) {
	appCtx := core.NewAppContext(rt.logger, rt.dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	// Register process-wide services for cross-module discovery.
	appCtx.RegisterService("security.credentials", rt.creds)
	appCtx.RegisterService("security.redactor", rt.redactor)
	appCtx.RegisterService("security.audit", rt.audit)
	appCtx.RegisterService("metrics", rt.metrics)
	appCtx.RegisterService("config.path", rt.cfgPath)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}
	return application, nil
}

func (rt *runtime) close(ctx context.Context) {
	var errs []error
	if rt.tracing != nil {
		errs = append(errs, rt.tracing.Shutdown(ctx))
	}
	if rt.auditFile != nil {
		errs = append(errs, rt.auditFile.Close())
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn("runtime shutdown", "error", err)
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $SITTERD_CONFIG → $XDG_CONFIG_HOME/sitterd/sitterd.yaml →
// ~/.config/sitterd/sitterd.yaml → /etc/sitterd/sitterd.yaml → ./sitterd.yaml
func ResolveConfigPath() (string, error) {
	if p, ok := os.LookupEnv("SITTERD_CONFIG"); ok && p != "" {
		return p, nil
	}

	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "sitterd", "sitterd.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "sitterd", "sitterd.yaml"))
	}

	candidates = append(candidates, "/etc/sitterd/sitterd.yaml", "sitterd.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/sitterd if set, otherwise ~/.local/share/sitterd.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "sitterd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sitterd")
}
