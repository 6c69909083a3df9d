package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/maintenance"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the scheduler.cron module configuration.
type Config struct {
	// Timezone the expressions are evaluated in. Defaults to UTC.
	Timezone string `yaml:"timezone"`

	// Jobs maps maintenance job names to cron expressions. Jobs without an
	// entry are only run by explicit triggers.
	Jobs map[string]string `yaml:"jobs"`
}

// Module schedules maintenance jobs in-process.
type Module struct {
	config    Config
	logger    *slog.Logger
	runner    *maintenance.Runner
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "scheduler.cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	if m.config.Timezone == "" {
		m.config.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(m.config.Timezone)
	if err != nil {
		return fmt.Errorf("cron: timezone %q: %w", m.config.Timezone, err)
	}

	runner, ok := core.ServiceAs[*maintenance.Runner](ctx, "maintenance.runner")
	if !ok {
		return errors.New("cron: the maintenance module must be configured")
	}
	m.runner = runner
	m.scheduler = NewScheduler(m.logger, WithLocation(loc))

	names := make([]string, 0, len(m.config.Jobs))
	for name := range m.config.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.scheduler.RegisterJob(&RunnerJob{
			Runner:       runner,
			JobName:      name,
			ScheduleExpr: m.config.Jobs[name],
			Logger:       m.logger,
		}); err != nil {
			return err
		}
	}

	ctx.RegisterService("scheduler.cron", m.scheduler)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	var errs []error
	for name, expr := range m.config.Jobs {
		if _, ok := m.runner.Job(name); !ok {
			errs = append(errs, fmt.Errorf("cron: %w: %q", maintenance.ErrUnknownJob, name))
		}
		if err := Parse(expr); err != nil {
			errs = append(errs, fmt.Errorf("cron: invalid schedule for job %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Start implements core.Starter.
func (m *Module) Start() error {
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}
