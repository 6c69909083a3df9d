package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/cron"
	"github.com/flemzord/sitterd/internal/maintenance"
	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// JobRunner runs maintenance jobs and reports their last results.
type JobRunner interface {
	Run(ctx context.Context, name, source string) (maintenance.Result, error)
	Status() []maintenance.Status
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gateway is the HTTP gateway module. It exposes the job trigger endpoint
// plus health, status and metrics. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	runner   JobRunner
	store    Pinger
	metrics  *metrics.Metrics
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
	redactor *security.Redactor

	// Resolved at Start.
	schedule func() []cron.Entry
	appCtx   *core.AppContext
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger

	runner, ok := core.ServiceAs[*maintenance.Runner](ctx, "maintenance.runner")
	if !ok {
		return errors.New("gateway: the maintenance module must be configured")
	}
	g.runner = runner

	if st, ok := ctx.Service("store"); ok {
		if p, ok := st.(Pinger); ok {
			g.store = p
		}
	}
	g.metrics, _ = core.ServiceAs[*metrics.Metrics](ctx, "metrics")
	g.audit, _ = core.ServiceAs[*security.AuditLogger](ctx, "security.audit")
	g.redactor, _ = core.ServiceAs[*security.Redactor](ctx, "security.redactor")
	g.limiter = security.NewRateLimiter(g.config.RateLimit)

	if creds, ok := core.ServiceAs[*security.CredentialStore](ctx, "security.credentials"); ok && g.config.CronSecret != "" {
		creds.Set("gateway.cron_secret", g.config.CronSecret)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. The optional scheduler is resolved here so
// load order does not matter for it.
func (g *Gateway) Start() error {
	if s, ok := core.ServiceAs[*cron.Scheduler](g.appCtx, "scheduler.cron"); ok {
		g.schedule = s.Entries
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. In-flight triggers get ShutdownTimeout to
// finish.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
