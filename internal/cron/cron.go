// Package cron triggers maintenance jobs from in-process cron schedules.
// It is optional: deployments that trigger jobs over HTTP from an external
// scheduler leave the scheduler.cron module unconfigured.
package cron

import "context"

// Job is something the Scheduler runs on a schedule. Name must be unique
// within a Scheduler; Schedule is a five-field expression or a descriptor
// such as "@daily" or "@every 1h". Run receives a context that is
// cancelled when the scheduler stops.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Func adapts a plain function to Job.
type Func struct {
	JobName string
	Expr    string
	Fn      func(ctx context.Context) error
}

func (f Func) Name() string                  { return f.JobName }
func (f Func) Schedule() string              { return f.Expr }
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }
