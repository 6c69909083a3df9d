package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/internal/cron"
	"github.com/flemzord/sitterd/internal/maintenance"
)

// ErrNoRunner is returned when the configuration has no maintenance module.
var ErrNoRunner = errors.New("app: the maintenance module is not configured")

// JobInfo describes a runnable job.
type JobInfo struct {
	Name     string `json:"name"`
	CountKey string `json:"countKey"`
	Schedule string `json:"schedule,omitempty"`
}

// oneShot loads the configured modules without starting them and hands
// the runner to fn.
func oneShot(ctx context.Context, params Params, fn func(*core.App, *maintenance.Runner) error) error {
	rt, err := newRuntime(ctx, params)
	if err != nil {
		return err
	}
	defer rt.close(context.WithoutCancel(ctx))

	application, err := rt.build(rt.cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	runner, ok := core.ServiceAs[*maintenance.Runner](application.Context(), "maintenance.runner")
	if !ok {
		return ErrNoRunner
	}
	return fn(application, runner)
}

// RunJob runs one job to completion and writes the same JSON body the HTTP
// trigger returns to w. It returns the job error, if any, after writing a
// failure body.
func RunJob(ctx context.Context, params Params, name string, w io.Writer) error {
	return oneShot(ctx, params, func(_ *core.App, runner *maintenance.Runner) error {
		enc := json.NewEncoder(w)
		res, err := runner.Run(ctx, name, "cli")
		if err != nil {
			_ = enc.Encode(map[string]any{"success": false, "error": err.Error()})
			return err
		}
		return enc.Encode(res.Body())
	})
}

// ListJobs returns the registered jobs with their cron schedule, if any.
func ListJobs(ctx context.Context, params Params) ([]JobInfo, error) {
	var out []JobInfo
	err := oneShot(ctx, params, func(application *core.App, runner *maintenance.Runner) error {
		schedule := make(map[string]string)
		if s, ok := core.ServiceAs[*cron.Scheduler](application.Context(), "scheduler.cron"); ok {
			for _, e := range s.Entries() {
				schedule[e.Job] = e.Schedule
			}
		}
		for _, name := range runner.Jobs() {
			job, _ := runner.Job(name)
			out = append(out, JobInfo{Name: name, CountKey: job.CountKey(), Schedule: schedule[name]})
		}
		return nil
	})
	return out, err
}

// CheckConfig loads and provisions every configured module, then releases
// them. It returns the module IDs in load order.
func CheckConfig(ctx context.Context, params Params) ([]string, error) {
	rt, err := newRuntime(ctx, params)
	if err != nil {
		return nil, err
	}
	defer rt.close(context.WithoutCancel(ctx))

	application, err := rt.build(rt.cfg)
	if err != nil {
		return nil, err
	}
	ids := application.ModuleIDs()
	application.Close()
	return ids, nil
}
