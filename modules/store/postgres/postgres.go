// Package postgres provides the store.postgres module: the entity store
// backed by PostgreSQL through the pgx database/sql driver. Several sitterd
// processes may share one database; job leases keep their runs apart.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/store"
	"github.com/flemzord/sitterd/internal/store/sqlstore"
	"gopkg.in/yaml.v3"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver registration
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the connection pool and exposes it as the "store" service.
type Module struct {
	config Config
	logger *slog.Logger
	store  *sqlstore.Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.postgres",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("postgres: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if err := m.config.validate(); err != nil {
		return err
	}

	// The DSN usually embeds a password; hand it to the redactor before
	// anything can log it.
	if creds, ok := core.ServiceAs[*security.CredentialStore](ctx, "security.credentials"); ok {
		creds.Set("store.postgres.dsn", m.config.DSN)
	}

	s, err := Open(context.TODO(), m.config)
	if err != nil {
		return err
	}
	m.store = s

	ctx.RegisterService("store", store.Store(s))
	ctx.RegisterService("store.seeder", store.Seeder(s))

	m.logger.Info("postgres store provisioned", "max_open_conns", m.config.MaxOpenConns)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("postgres store stopping")
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Open connects with the pool settings from cfg, verifies the connection
// and migrates the schema.
func Open(ctx context.Context, cfg Config) (*sqlstore.Store, error) {
	cfg.defaults()

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := sqlstore.Migrate(ctx, db, sqlstore.Postgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, sqlstore.Postgres), nil
}
