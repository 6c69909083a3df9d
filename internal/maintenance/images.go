package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/flemzord/sitterd/internal/blob"
	"github.com/flemzord/sitterd/internal/store"
)

// RetryPolicy bounds the retries of a single side effect.
type RetryPolicy struct {
	MaxAttempts     uint          `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.InitialInterval == 0 {
		p.InitialInterval = 200 * time.Millisecond
	}
	return p
}

func (p RetryPolicy) do(ctx context.Context, op func() error) error {
	p = p.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxAttempts))
	return err
}

// ImageReclaimJob deletes images that no live task or pet references once
// they are older than the grace period.
//
// The storage object is deleted first, then the metadata row. A missing
// object counts as deleted. If the object cannot be deleted the row is left
// alone and the next run retries. If the object is gone but the row cannot
// be deleted, the row is flagged with storage_deleted_at and a
// ReconciliationError is reported; later runs skip straight to the row.
type ImageReclaimJob struct {
	Images    store.ImageStore
	Blobs     blob.Store
	Grace     time.Duration
	BatchSize int
	Retry     RetryPolicy
	Now       func() time.Time
	Logger    *slog.Logger
	Workers   int
}

var _ Job = (*ImageReclaimJob)(nil)

// Name implements Job.
func (*ImageReclaimJob) Name() string { return JobDeleteOldUnlinkedImages }

// CountKey implements Job.
func (*ImageReclaimJob) CountKey() string { return "deletedCount" }

// Run implements Job. Count is the number of metadata rows deleted.
func (j *ImageReclaimJob) Run(ctx context.Context) (Result, error) {
	now := j.Now()

	images, err := j.Images.ListOrphanedImages(ctx, now.Add(-j.Grace), j.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("maintenance: list orphaned images: %w", err)
	}

	var t tally
	err = forEach(ctx, j.Workers, images, func(ctx context.Context, img store.Image) {
		if err := j.reclaim(ctx, img, now); err != nil {
			j.Logger.Error("image reclaim failed", "image", img.ID, "key", img.StorageKey, "error", err)
			t.fail("image", img.ID, err)
			return
		}
		t.add(1)
	})

	res := Result{Scanned: len(images)}
	t.fill(&res)
	if err != nil {
		return res, fmt.Errorf("maintenance: delete old unlinked images: %w", err)
	}
	return res, nil
}

func (j *ImageReclaimJob) reclaim(ctx context.Context, img store.Image, now time.Time) error {
	if img.StorageDeletedAt == nil {
		err := j.Retry.do(ctx, func() error {
			err := j.Blobs.Delete(ctx, img.StorageKey)
			if errors.Is(err, blob.ErrNotFound) {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("delete storage object %s: %w", img.StorageKey, err)
		}
	}

	err := j.Retry.do(ctx, func() error {
		return j.Images.DeleteImage(ctx, img.ID)
	})
	if err == nil {
		return nil
	}

	rec := &ReconciliationError{ImageID: img.ID, StorageKey: img.StorageKey, MetadataErr: err}
	if img.StorageDeletedAt == nil {
		rec.FlagErr = j.Images.MarkImageStorageDeleted(ctx, img.ID, now)
	}
	return rec
}
