package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of modules.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
}

type state uint8

const (
	stateLoaded state = iota
	stateStarted
	stateStopped
)

type moduleInstance struct {
	id     ModuleID
	module Module
	state  state
}

// NewApp creates a new App with the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules instantiates, provisions, and validates all modules for the
// given IDs in order. If any step fails, already-loaded modules are cleaned up.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			_ = a.Close()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		info := mod.ModuleInfo()
		a.modules = append(a.modules, moduleInstance{
			id:     info.ID,
			module: mod,
		})
		a.logger.Info("module loaded", "module", string(info.ID), "hooks", Hooks(mod))
	}
	return nil
}

// Start starts the modules that implement Starter, in load order. When one
// fails, the modules started before it are stopped again and the error is
// returned; the failed module and those after it are left for Close.
func (a *App) Start() error {
	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok || mi.state != stateLoaded {
			continue
		}
		a.logger.Info("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			_ = a.stop(func(m *moduleInstance) bool { return m.state == stateStarted })
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.state = stateStarted
	}
	a.logger.Info("all modules started")
	return nil
}

// Stop stops the started modules in reverse order. Modules that were only
// loaded stay loaded; use Close to release them as well.
func (a *App) Stop() error {
	return a.stop(func(m *moduleInstance) bool { return m.state == stateStarted })
}

// Close stops every module that is not stopped yet, started or not, in
// reverse load order, then forgets them. One-shot commands load a store
// without starting anything and rely on Close to release it. The App must
// not be used afterwards.
func (a *App) Close() error {
	err := a.stop(func(m *moduleInstance) bool { return m.state != stateStopped })
	a.modules = nil
	return err
}

func (a *App) stop(match func(*moduleInstance) bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.modules) - 1; i >= 0; i-- {
		mi := &a.modules[i]
		if !match(mi) {
			continue
		}
		if s, ok := mi.module.(Stopper); ok {
			a.logger.Info("stopping module", "module", string(mi.id))
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop error", "module", string(mi.id), "error", err)
				errs = append(errs, fmt.Errorf("stopping module %s: %w", mi.id, err))
			}
		}
		mi.state = stateStopped
	}
	return errors.Join(errs...)
}

// Context returns the AppContext the modules were loaded with.
func (a *App) Context() *AppContext {
	return a.ctx
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, mi := range a.modules {
		if string(mi.id) == id {
			return mi.module, true
		}
	}
	return nil, false
}

// ModuleIDs returns the IDs of the loaded modules in load order.
func (a *App) ModuleIDs() []string {
	ids := make([]string, len(a.modules))
	for i, mi := range a.modules {
		ids[i] = string(mi.id)
	}
	return ids
}

// AppendModule adds an already-constructed module to the lifecycle. It is
// started after every module loaded from configuration.
func (a *App) AppendModule(id string, mod Module) {
	a.modules = append(a.modules, moduleInstance{id: ModuleID(id), module: mod})
}
