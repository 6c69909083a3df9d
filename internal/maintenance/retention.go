package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/sitterd/internal/store"
)

// RetentionJob deletes notifications older than the retention horizon,
// read or not.
type RetentionJob struct {
	Store   store.NotificationStore
	Horizon time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

var _ Job = (*RetentionJob)(nil)

// Name implements Job.
func (*RetentionJob) Name() string { return JobDeleteOldNotifications }

// CountKey implements Job.
func (*RetentionJob) CountKey() string { return "deletedCount" }

// Run implements Job.
func (j *RetentionJob) Run(ctx context.Context) (Result, error) {
	cutoff := j.Now().Add(-j.Horizon)

	n, err := j.Store.DeleteNotificationsCreatedBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("maintenance: delete old notifications: %w", err)
	}
	if n > 0 {
		j.Logger.Info("old notifications deleted", "count", n, "cutoff", cutoff)
	}
	return Result{Count: n}, nil
}
