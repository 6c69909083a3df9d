package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/sitterd/internal/config"
	"github.com/flemzord/sitterd/internal/core"
)

// Builder loads (but does not start) the modules a configuration names.
type Builder func(cfg *config.Config) (*core.App, error)

// Handler owns the running App and swaps it for a fresh one built from
// a new configuration. A restart stops every module before the new ones
// start because modules hold exclusive resources such as the listen
// address and the SQLite file.
type Handler struct {
	build  Builder
	logger *slog.Logger

	mu  sync.Mutex
	app *core.App
	cfg *config.Config
}

// NewHandler creates a reload handler.
func NewHandler(build Builder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{build: build, logger: logger}
}

// Start builds and starts the initial App.
func (h *Handler) Start(cfg *config.Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	app, err := h.buildAndStart(cfg)
	if err != nil {
		return err
	}
	h.app, h.cfg = app, cfg
	return nil
}

// Stop stops the current App. Safe to call when nothing runs.
func (h *Handler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.app != nil {
		if err := h.app.Close(); err != nil {
			h.logger.Warn("stopping modules", "error", err)
		}
		h.app = nil
	}
}

// App returns the running App, or nil.
func (h *Handler) App() *core.App {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.app
}

// HandleReload loads and validates the file at configPath, then restarts
// the modules from it. A file that fails to load or validate leaves the
// running modules untouched. When the new modules fail to start, the
// previous configuration is started again and the start error returned.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig restarts from an already validated config.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.app != nil {
		if err := h.app.Close(); err != nil {
			h.logger.Warn("stopping previous modules", "error", err)
		}
		h.app = nil
	}

	app, err := h.buildAndStart(cfg)
	if err == nil {
		h.app, h.cfg = app, cfg
		h.logger.Info("configuration reloaded successfully")
		return nil
	}

	h.logger.Error("reload failed, restoring previous configuration", "error", err)
	if h.cfg == nil {
		return err
	}
	prev, rerr := h.buildAndStart(h.cfg)
	if rerr != nil {
		return errors.Join(err, fmt.Errorf("restoring previous configuration: %w", rerr))
	}
	h.app = prev
	return err
}

func (h *Handler) buildAndStart(cfg *config.Config) (*core.App, error) {
	app, err := h.build(cfg)
	if err != nil {
		return nil, err
	}
	if err := app.Start(); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}
