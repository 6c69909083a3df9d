package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation interprets schedules in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// Entry describes a scheduled job.
type Entry struct {
	Job      string    `json:"job"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next,omitzero"`
	Prev     time.Time `json:"prev,omitzero"`
}

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex so a slow run makes the next
// tick skip instead of piling up.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []Job
	names   map[string]struct{}
	locks   map[string]*sync.Mutex
	entries map[string]cron.EntryID
	loc     *time.Location
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		names:   make(map[string]struct{}),
		locks:   make(map[string]*sync.Mutex),
		entries: make(map[string]cron.EntryID),
		loc:     time.Local,
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Parse validates a 5-field cron expression.
func Parse(expr string) error {
	_, err := parser().Parse(expr)
	return err
}

func parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.names[name] = struct{}{}
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.cron = cron.New(cron.WithParser(parser()), cron.WithLocation(s.loc))

	for _, job := range s.jobs {
		lock := s.locks[job.Name()]
		id, err := s.cron.AddFunc(job.Schedule(), func() { s.tick(ctx, job, lock) })
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
		s.entries[job.Name()] = id
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs), "location", s.loc.String())
	return nil
}

// tick runs job unless its previous run is still in progress, and reports
// whether it ran. Overlapping ticks are dropped, not queued.
func (s *Scheduler) tick(ctx context.Context, job Job, lock *sync.Mutex) bool {
	if !lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
		return false
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
	}
	return true
}

// Entries reports every registered job with its next and previous fire
// times. Times are zero before Start.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := Entry{Job: j.Name(), Schedule: j.Schedule()}
		if s.cron != nil {
			if id, ok := s.entries[j.Name()]; ok {
				ce := s.cron.Entry(id)
				e.Next, e.Prev = ce.Next, ce.Prev
			}
		}
		out = append(out, e)
	}
	return out
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
// ctx bounds the wait.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for running jobs: %w", ctx.Err())
	}
}
