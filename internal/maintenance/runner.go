package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/store"
	"github.com/flemzord/sitterd/internal/telemetry"
)

const defaultLeaseTTL = 15 * time.Minute

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Jobs []Job

	// Leases, when set, serializes runs of the same job across processes.
	Leases   store.LeaseStore
	LeaseTTL time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Audit   *security.AuditLogger
	Tracer  trace.Tracer
	Now     func() time.Time
}

// Status is the last known outcome of a job.
type Status struct {
	Job        string    `json:"job"`
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastSource string    `json:"last_source,omitempty"`
	LastCount  int64     `json:"last_count"`
	LastFailed int       `json:"last_failed"`
	LastError  string    `json:"last_error,omitempty"`
	Runs       int64     `json:"runs"`
}

// Runner runs jobs by name. A job never runs twice at the same time: the
// in-process lock rejects overlapping triggers and the store lease rejects
// overlapping processes.
type Runner struct {
	jobs   map[string]Job
	order  []string
	locks  map[string]*sync.Mutex
	leases store.LeaseStore
	ttl    time.Duration
	holder string

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *security.AuditLogger
	tracer  trace.Tracer
	now     func() time.Time

	mu     sync.Mutex
	status map[string]*Status
}

// NewRunner registers the given jobs. Job names must be unique.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}

	r := &Runner{
		jobs:    make(map[string]Job, len(cfg.Jobs)),
		locks:   make(map[string]*sync.Mutex, len(cfg.Jobs)),
		leases:  cfg.Leases,
		ttl:     cfg.LeaseTTL,
		holder:  leaseHolder(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
		tracer:  cfg.Tracer,
		now:     cfg.Now,
		status:  make(map[string]*Status, len(cfg.Jobs)),
	}
	for _, j := range cfg.Jobs {
		name := j.Name()
		if _, exists := r.jobs[name]; exists {
			return nil, fmt.Errorf("maintenance: duplicate job name %q", name)
		}
		r.jobs[name] = j
		r.order = append(r.order, name)
		r.locks[name] = &sync.Mutex{}
		r.status[name] = &Status{Job: name}
	}
	return r, nil
}

func leaseHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "sitterd"
	}
	return host + ":" + strconv.Itoa(os.Getpid()) + ":" + uuid.NewString()
}

// Jobs returns the registered job names in registration order.
func (r *Runner) Jobs() []string {
	return append([]string(nil), r.order...)
}

// Job returns the job registered under name.
func (r *Runner) Job(name string) (Job, bool) {
	j, ok := r.jobs[name]
	return j, ok
}

// Run executes the named job and waits for it. source describes the
// trigger ("http", "cli", "cron") for logs and audit events.
//
// It returns ErrUnknownJob for an unregistered name and ErrJobRunning when
// the job is already running here or elsewhere; in both cases nothing is
// touched. When the job itself fails, the partial Result is returned along
// with the error.
func (r *Runner) Run(ctx context.Context, name, source string) (Result, error) {
	job, ok := r.jobs[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	lock := r.locks[name]
	if !lock.TryLock() {
		r.skipped(name, source, "in-process lock held")
		return Result{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer lock.Unlock()

	if r.leases != nil {
		acquired, err := r.leases.AcquireLease(ctx, name, r.holder, r.now(), r.ttl)
		if err != nil {
			return Result{}, fmt.Errorf("maintenance: acquire lease for %s: %w", name, err)
		}
		if !acquired {
			r.skipped(name, source, "lease held by another process")
			return Result{}, fmt.Errorf("%w: %s (lease held elsewhere)", ErrJobRunning, name)
		}
		defer func() {
			if err := r.leases.ReleaseLease(context.WithoutCancel(ctx), name, r.holder); err != nil {
				r.logger.Warn("lease release failed", "job", name, "error", err)
			}
		}()
	}

	r.setRunning(name, true)
	defer r.setRunning(name, false)

	r.auditEvent(security.EventJobTrigger, name, source, "", nil)

	ctx, span := r.tracer.Start(ctx, "maintenance."+name, trace.WithAttributes(
		attribute.String("job.name", name),
		attribute.String("job.source", source),
	))
	defer span.End()

	started := r.now()
	res, err := job.Run(ctx)
	res.Job = name
	res.CountKey = job.CountKey()
	res.StartedAt = started
	res.FinishedAt = r.now()

	span.SetAttributes(
		attribute.Int64("job.count", res.Count),
		attribute.Int("job.scanned", res.Scanned),
		attribute.Int("job.failures", len(res.Failures)),
	)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, "job failed")
		r.logger.Error("job failed", "job", name, "source", source, "error", err)
	case len(res.Failures) > 0:
		outcome = metrics.OutcomePartial
		r.logger.Warn("job finished with failures",
			"job", name,
			"source", source,
			res.CountKey, res.Count,
			"failed", len(res.Failures),
			"duration", res.Duration(),
		)
	default:
		r.logger.Info("job finished",
			"job", name,
			"source", source,
			res.CountKey, res.Count,
			"duration", res.Duration(),
		)
	}
	r.metrics.ObserveJob(name, outcome, res.Duration(), int(res.Count), len(res.Failures))
	r.record(res, source, err)

	r.auditEvent(security.EventJobResult, name, source, outcome, map[string]string{
		res.CountKey: strconv.FormatInt(res.Count, 10),
		"failed":     strconv.Itoa(len(res.Failures)),
	})

	return res, err
}

func (r *Runner) skipped(name, source, reason string) {
	r.logger.Warn("job already running, skipping", "job", name, "source", source, "reason", reason)
	r.metrics.ObserveJob(name, metrics.OutcomeSkipped, 0, 0, 0)
}

func (r *Runner) auditEvent(typ security.EventType, job, source, detail string, meta map[string]string) {
	if r.audit == nil {
		return
	}
	r.audit.Log(security.AuditEvent{
		Type:     typ,
		Job:      job,
		Source:   source,
		Detail:   detail,
		Metadata: meta,
	})
}

func (r *Runner) setRunning(name string, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[name].Running = running
}

func (r *Runner) record(res Result, source string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status[res.Job]
	st.LastRun = res.StartedAt
	st.LastSource = source
	st.LastCount = res.Count
	st.LastFailed = len(res.Failures)
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	st.Runs++
}

// Status returns a snapshot of every job's last run, in registration order.
func (r *Runner) Status() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.status[name])
	}
	return out
}
