// Package fs provides the blob.fs module: uploaded images stored as plain
// files under a root directory.
package fs

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/sitterd/internal/blob"
	"github.com/flemzord/sitterd/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
)

// Config holds the blob.fs module configuration.
type Config struct {
	// Root is the directory holding uploads. Defaults to {DataDir}/uploads.
	Root string `yaml:"root"`
}

// Module registers a filesystem blob.Store as the "blob" service.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "blob.fs",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("blob.fs: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	if m.config.Root == "" {
		m.config.Root = filepath.Join(ctx.DataDir, "uploads")
	}

	s, err := NewStore(m.config.Root)
	if err != nil {
		return err
	}
	m.store = s
	ctx.RegisterService("blob", blob.Store(s))

	m.logger.Info("filesystem blob store provisioned", "root", m.config.Root)
	return nil
}
