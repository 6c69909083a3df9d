package maintenance

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// forEach calls fn for every item on at most workers goroutines. Once ctx
// is done no further items are started; in-flight calls finish and
// ctx.Err() is returned.
func forEach[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T)) error {
	if workers <= 0 {
		workers = defaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// tally accumulates per-candidate outcomes from concurrent workers.
type tally struct {
	mu       sync.Mutex
	count    int64
	skipped  int
	failures []CandidateError
}

func (t *tally) add(n int64) {
	t.mu.Lock()
	t.count += n
	t.mu.Unlock()
}

func (t *tally) skip() {
	t.mu.Lock()
	t.skipped++
	t.mu.Unlock()
}

func (t *tally) fail(kind, id string, err error) {
	t.mu.Lock()
	t.failures = append(t.failures, CandidateError{Kind: kind, ID: id, Err: err})
	t.mu.Unlock()
}

// fill copies the tally into r. Failures are ordered by candidate ID.
func (t *tally) fill(r *Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Count = t.count
	r.Skipped = t.skipped
	r.Failures = slices.Clone(t.failures)
	slices.SortFunc(r.Failures, func(a, b CandidateError) int { return cmp.Compare(a.ID, b.ID) })
}
