// Package maintenance implements the periodically triggered jobs that keep
// time-derived state consistent: invite code expiry, overdue task
// notifications, pet birthday reminders, notification retention and
// orphaned image reclamation.
//
// Every job reads "now" from an injected clock, scans candidates through
// the narrow store interfaces, and reports a Result. Batch jobs abort on a
// store error; per-candidate jobs record the failure in Result.Failures and
// keep going. Jobs are invoked through a Runner, which serializes runs of
// the same job inside the process and across processes sharing a store.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/sitterd/internal/notify"
	"github.com/flemzord/sitterd/internal/store"
)

// Job names, as used in trigger URLs, the CLI and cron configuration.
const (
	JobExpireInviteCodes       = "expire-invite-codes"
	JobNotifyOverdueTasks      = "notify-overdue-tasks"
	JobNotifyPetBirthdays      = "notify-pet-birthdays"
	JobDeleteOldNotifications  = "delete-old-notifications"
	JobDeleteOldUnlinkedImages = "delete-old-unlinked-images"
)

var (
	// ErrUnknownJob is returned for a job name no registered job carries.
	ErrUnknownJob = errors.New("maintenance: unknown job")

	// ErrJobRunning is returned when the job is already running in this
	// process or holds its lease in another one.
	ErrJobRunning = errors.New("maintenance: job already running")
)

// Job is one maintenance job.
type Job interface {
	// Name is the job's trigger name, e.g. "expire-invite-codes".
	Name() string

	// CountKey is the JSON field reporting Result.Count, e.g. "expiredCount".
	CountKey() string

	// Run performs one pass. A non-nil error means the pass failed as a
	// whole; the returned Result still describes what was done before.
	Run(ctx context.Context) (Result, error)
}

// Dispatcher creates notifications idempotently.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipientID string, payload store.Payload, key string) (notify.Outcome, error)
}

// Result summarizes one job run.
type Result struct {
	Job      string
	CountKey string

	// Count is the job's headline number: codes expired, tasks that
	// produced a new overdue notification, birthday notifications created,
	// notifications or images deleted.
	Count int64

	// Scanned is the number of candidates examined by per-candidate jobs.
	Scanned int

	// Skipped counts candidates that needed no action, e.g. tasks whose
	// every recipient was already notified.
	Skipped int

	// Failures lists candidates whose processing failed.
	Failures []CandidateError

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time of the run.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Body renders the result as the JSON object returned by the HTTP trigger
// and printed by the CLI.
func (r Result) Body() map[string]any {
	body := map[string]any{
		"success":    true,
		"job":        r.Job,
		r.CountKey:   r.Count,
		"durationMs": r.Duration().Milliseconds(),
	}
	if r.Scanned > 0 {
		body["scanned"] = r.Scanned
	}
	if r.Skipped > 0 {
		body["skipped"] = r.Skipped
	}
	if len(r.Failures) > 0 {
		failures := make([]map[string]string, 0, len(r.Failures))
		for _, f := range r.Failures {
			failures = append(failures, map[string]string{
				"kind":  f.Kind,
				"id":    f.ID,
				"error": f.Err.Error(),
			})
		}
		body["failedCount"] = len(r.Failures)
		body["failures"] = failures
	}
	return body
}

// CandidateError records the failure of a single candidate.
type CandidateError struct {
	Kind string // "task", "pet" or "image"
	ID   string
	Err  error
}

func (e CandidateError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e CandidateError) Unwrap() error { return e.Err }

// ReconciliationError reports an image whose storage object was deleted
// while its metadata row could not be. The row is flagged with
// storage_deleted_at and retried on the next run.
type ReconciliationError struct {
	ImageID     string
	StorageKey  string
	MetadataErr error

	// FlagErr is set when flagging the row failed as well.
	FlagErr error
}

func (e *ReconciliationError) Error() string {
	msg := fmt.Sprintf("image %s: storage object %s deleted but metadata row kept: %v", e.ImageID, e.StorageKey, e.MetadataErr)
	if e.FlagErr != nil {
		msg += fmt.Sprintf(" (flagging failed: %v)", e.FlagErr)
	}
	return msg
}

func (e *ReconciliationError) Unwrap() []error {
	if e.FlagErr == nil {
		return []error{e.MetadataErr}
	}
	return []error{e.MetadataErr, e.FlagErr}
}
