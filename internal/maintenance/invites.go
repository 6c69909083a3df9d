package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/sitterd/internal/store"
)

// InviteExpiryJob deletes group invite codes whose TTL has elapsed. A code
// created at c expires at c+TTL and is deleted once c+TTL <= now.
type InviteExpiryJob struct {
	Store  store.InviteCodeStore
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

var _ Job = (*InviteExpiryJob)(nil)

// Name implements Job.
func (*InviteExpiryJob) Name() string { return JobExpireInviteCodes }

// CountKey implements Job.
func (*InviteExpiryJob) CountKey() string { return "expiredCount" }

// Run implements Job. The deletion is a single batch; a store error aborts
// the run.
func (j *InviteExpiryJob) Run(ctx context.Context) (Result, error) {
	cutoff := j.Now().Add(-j.TTL)

	n, err := j.Store.DeleteInviteCodesCreatedAtOrBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("maintenance: expire invite codes: %w", err)
	}
	if n > 0 {
		j.Logger.Info("invite codes expired", "count", n, "cutoff", cutoff)
	}
	return Result{Count: n}, nil
}
