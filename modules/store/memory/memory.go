// Package memory provides the store.memory module: a volatile in-process
// store for local development and demos. Everything is lost on exit.
package memory

import (
	"context"
	"log/slog"

	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/store"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Provisioner = (*Module)(nil)
	_ core.Stopper     = (*Module)(nil)
)

// Module exposes a store.InMemoryStore as the "store" service.
type Module struct {
	logger *slog.Logger
	store  *store.InMemoryStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.memory",
		New: func() core.Module { return &Module{} },
	}
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.store = store.NewInMemoryStore()

	ctx.RegisterService("store", store.Store(m.store))
	ctx.RegisterService("store.seeder", store.Seeder(m.store))

	m.logger.Warn("in-memory store provisioned; data will not survive a restart")
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
