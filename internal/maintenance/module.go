package maintenance

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/sitterd/internal/blob"
	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/notify"
	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/store"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Module builds the five jobs from the store, blob and notification
// services and registers the Runner as "maintenance.runner".
type Module struct {
	config Config
	logger *slog.Logger
	runner *Runner

	// now is the clock every job reads. Defaults to time.Now.
	now func() time.Time
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "maintenance",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("maintenance: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.now == nil {
		m.now = time.Now
	}

	if err := m.config.validate(); err != nil {
		return err
	}
	loc, _ := time.LoadLocation(m.config.Timezone)

	st, ok := core.ServiceAs[store.Store](ctx, "store")
	if !ok {
		return errors.New("maintenance: no store module configured")
	}
	mtr, _ := core.ServiceAs[*metrics.Metrics](ctx, "metrics")
	audit, _ := core.ServiceAs[*security.AuditLogger](ctx, "security.audit")

	deliverers, err := m.deliverers(ctx)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		Store:      st,
		Deliverers: deliverers,
		Logger:     m.logger,
		Metrics:    mtr,
		Now:        m.now,
	})

	cfg := m.config
	jobs := []Job{
		&InviteExpiryJob{Store: st, TTL: cfg.InviteTTL, Now: m.now, Logger: m.logger},
		&OverdueJob{Tasks: st, Dispatcher: dispatcher, Now: m.now, Logger: m.logger, Workers: cfg.Workers},
		&BirthdayJob{Pets: st, Dispatcher: dispatcher, Now: m.now, Location: loc, Logger: m.logger, Workers: cfg.Workers},
		&RetentionJob{Store: st, Horizon: cfg.NotificationRetention, Now: m.now, Logger: m.logger},
	}
	if blobs, ok := core.ServiceAs[blob.Store](ctx, "blob"); ok {
		jobs = append(jobs, &ImageReclaimJob{
			Images:    st,
			Blobs:     blobs,
			Grace:     cfg.ImageGracePeriod,
			BatchSize: cfg.ImageBatchSize,
			Retry:     cfg.Retry,
			Now:       m.now,
			Logger:    m.logger,
			Workers:   cfg.Workers,
		})
	} else {
		m.logger.Warn("no blob module configured; " + JobDeleteOldUnlinkedImages + " is disabled")
	}

	runner, err := NewRunner(RunnerConfig{
		Jobs:     jobs,
		Leases:   st,
		LeaseTTL: cfg.LeaseTTL,
		Logger:   m.logger,
		Metrics:  mtr,
		Audit:    audit,
		Now:      m.now,
	})
	if err != nil {
		return err
	}
	m.runner = runner

	ctx.RegisterService("maintenance.runner", runner)
	ctx.RegisterService("notify.dispatcher", dispatcher)

	m.logger.Info("maintenance jobs registered",
		"jobs", runner.Jobs(),
		"timezone", cfg.Timezone,
		"deliverers", len(deliverers),
	)
	return nil
}

func (m *Module) deliverers(ctx *core.AppContext) ([]notify.Deliverer, error) {
	var out []notify.Deliverer
	if *m.config.Delivery.Log {
		out = append(out, notify.LogDeliverer{Logger: m.logger})
	}
	if wh := m.config.Delivery.Webhook; wh != nil {
		if creds, ok := core.ServiceAs[*security.CredentialStore](ctx, "security.credentials"); ok && wh.Token != "" {
			creds.Set("maintenance.webhook.token", wh.Token)
		}
		d, err := notify.NewWebhookDeliverer(*wh, nil)
		if err != nil {
			return nil, fmt.Errorf("maintenance: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Runner returns the provisioned runner.
func (m *Module) Runner() *Runner {
	return m.runner
}
