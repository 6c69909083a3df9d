// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"slices"
	"sync"

	"github.com/flemzord/sitterd/internal/cron"
	"github.com/flemzord/sitterd/internal/maintenance"
)

// Call records one MockRunner invocation.
type Call struct {
	Name   string
	Source string
}

// MockRunner stands in for the maintenance runner behind scheduled jobs.
// Without RunFunc every run succeeds with an empty result.
type MockRunner struct {
	RunFunc func(ctx context.Context, name, source string) (maintenance.Result, error)

	mu    sync.Mutex
	calls []Call
}

var _ cron.JobRunner = (*MockRunner)(nil)

func (m *MockRunner) Run(ctx context.Context, name, source string) (maintenance.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Name: name, Source: source})
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, source)
	}
	return maintenance.Result{Job: name}, nil
}

// Calls returns the recorded invocations in order.
func (m *MockRunner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}
