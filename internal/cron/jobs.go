package cron

import (
	"context"
	"errors"
	"log/slog"

	"github.com/flemzord/sitterd/internal/maintenance"
)

// JobRunner runs maintenance jobs by name.
type JobRunner interface {
	Run(ctx context.Context, name, source string) (maintenance.Result, error)
}

// RunnerJob fires a maintenance job through the shared runner, so cron
// ticks, HTTP triggers and CLI runs exclude each other.
type RunnerJob struct {
	Runner       JobRunner
	JobName      string
	ScheduleExpr string
	Logger       *slog.Logger
}

var _ Job = (*RunnerJob)(nil)

// Name implements Job.
func (j *RunnerJob) Name() string { return j.JobName }

// Schedule implements Job.
func (j *RunnerJob) Schedule() string { return j.ScheduleExpr }

// Run implements Job. A run rejected because another trigger holds the job
// is not an error.
func (j *RunnerJob) Run(ctx context.Context) error {
	_, err := j.Runner.Run(ctx, j.JobName, "cron")
	if errors.Is(err, maintenance.ErrJobRunning) {
		if j.Logger != nil {
			j.Logger.Info("cron: job busy elsewhere, tick skipped", "job", j.JobName)
		}
		return nil
	}
	return err
}
