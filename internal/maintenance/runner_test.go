package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/sitterd/internal/metrics"
	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/security/securitytest"
	"github.com/flemzord/sitterd/internal/store"
)

// fakeJob blocks until release is closed when block is set.
type fakeJob struct {
	name    string
	count   int64
	err     error
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	runs int
}

func (f *fakeJob) Name() string     { return f.name }
func (f *fakeJob) CountKey() string { return "fakeCount" }

func (f *fakeJob) Run(context.Context) (Result, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return Result{Count: f.count}, f.err
}

func (f *fakeJob) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func newTestRunner(t *testing.T, leases store.LeaseStore, audit *security.AuditLogger, jobs ...Job) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{
		Jobs:    jobs,
		Leases:  leases,
		Logger:  quietLogger(),
		Metrics: metrics.New(),
		Audit:   audit,
		Now:     clockAt(testNow),
	})
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	return r
}

func TestRunner_RunsJobAndRecordsStatus(t *testing.T) {
	t.Parallel()

	rec := securitytest.NewAuditRecorder()
	audit := rec.Logger()
	job := &fakeJob{name: "fake", count: 4}
	r := newTestRunner(t, store.NewInMemoryStore(), audit, job)

	res, err := r.Run(context.Background(), "fake", "cli")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Job != "fake" || res.CountKey != "fakeCount" || res.Count != 4 {
		t.Errorf("result = %+v", res)
	}
	if !res.StartedAt.Equal(testNow) {
		t.Errorf("StartedAt = %v", res.StartedAt)
	}

	st := r.Status()
	if len(st) != 1 || st[0].Runs != 1 || st[0].LastCount != 4 || st[0].LastSource != "cli" || st[0].Running {
		t.Errorf("status = %+v", st)
	}

	got := rec.Events()
	if len(got) != 2 || got[0].Type != security.EventJobTrigger || got[1].Type != security.EventJobResult {
		t.Fatalf("audit events = %+v", got)
	}
	if got[1].Metadata["fakeCount"] != "4" || got[1].Detail != metrics.OutcomeSuccess {
		t.Errorf("result event = %+v", got[1])
	}
}

func TestRunner_UnknownJob(t *testing.T) {
	t.Parallel()

	r := newTestRunner(t, nil, nil, &fakeJob{name: "fake"})
	_, err := r.Run(context.Background(), "nope", "http")
	if !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestRunner_DuplicateNames(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(RunnerConfig{Jobs: []Job{&fakeJob{name: "a"}, &fakeJob{name: "a"}}})
	if err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestRunner_RejectsOverlappingRun(t *testing.T) {
	t.Parallel()

	job := &fakeJob{name: "slow", started: make(chan struct{}), release: make(chan struct{})}
	r := newTestRunner(t, store.NewInMemoryStore(), nil, job)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "slow", "cron")
		done <- err
	}()
	<-job.started

	if st := r.Status(); !st[0].Running {
		t.Error("status should report the job as running")
	}

	_, err := r.Run(context.Background(), "slow", "http")
	if !errors.Is(err, ErrJobRunning) {
		t.Errorf("overlapping Run() = %v, want ErrJobRunning", err)
	}

	close(job.release)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if job.runCount() != 1 {
		t.Errorf("runs = %d, want 1", job.runCount())
	}
}

func TestRunner_LeaseHeldElsewhere(t *testing.T) {
	t.Parallel()

	leases := store.NewInMemoryStore()
	ok, err := leases.AcquireLease(context.Background(), "fake", "other-process", testNow, time.Hour)
	if err != nil || !ok {
		t.Fatalf("seed lease: %v %v", ok, err)
	}

	job := &fakeJob{name: "fake"}
	r := newTestRunner(t, leases, nil, job)

	_, err = r.Run(context.Background(), "fake", "cron")
	if !errors.Is(err, ErrJobRunning) {
		t.Errorf("err = %v, want ErrJobRunning", err)
	}
	if job.runCount() != 0 {
		t.Error("job must not run while another process holds the lease")
	}
}

func TestRunner_ReleasesLease(t *testing.T) {
	t.Parallel()

	leases := store.NewInMemoryStore()
	r := newTestRunner(t, leases, nil, &fakeJob{name: "fake"})

	if _, err := r.Run(context.Background(), "fake", "cli"); err != nil {
		t.Fatal(err)
	}
	ok, err := leases.AcquireLease(context.Background(), "fake", "other-process", testNow, time.Minute)
	if err != nil || !ok {
		t.Errorf("lease not released: ok=%v err=%v", ok, err)
	}
}

func TestRunner_JobErrorIsRecorded(t *testing.T) {
	t.Parallel()

	boom := errors.New("store unavailable")
	r := newTestRunner(t, nil, nil, &fakeJob{name: "fake", err: boom})

	_, err := r.Run(context.Background(), "fake", "http")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if st := r.Status(); st[0].LastError != boom.Error() {
		t.Errorf("LastError = %q", st[0].LastError)
	}
}

func TestRunner_JobsOrder(t *testing.T) {
	t.Parallel()

	r := newTestRunner(t, nil, nil, &fakeJob{name: "b"}, &fakeJob{name: "a"})
	got := r.Jobs()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Jobs() = %v, want registration order", got)
	}
	if _, ok := r.Job("a"); !ok {
		t.Error("Job(a) not found")
	}
}

func TestForEach_StopsSchedulingOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen int
	)
	items := make([]int, 50)
	err := forEach(ctx, 1, items, func(context.Context, int) {
		mu.Lock()
		seen++
		if seen == 3 {
			cancel()
		}
		mu.Unlock()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen >= len(items) {
		t.Errorf("processed %d items, want fewer than %d", seen, len(items))
	}
}
