package maintenance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flemzord/sitterd/internal/store"
)

func newOverdueJob(st store.Store, now time.Time) *OverdueJob {
	return &OverdueJob{
		Tasks:      st,
		Dispatcher: newDispatcher(st, clockAt(now)),
		Now:        clockAt(now),
		Logger:     quietLogger(),
		Workers:    4,
	}
}

func TestOverdue_YesterdayDueTask(t *testing.T) {
	t.Parallel()

	st := store.NewInMemoryStore()
	mustSeedTask(t, st, store.Task{
		ID:      "t1",
		OwnerID: "owner",
		Name:    "Feed Rex",
		DueMode: true,
		DueDate: ptr(testNow.Add(-day)),
	})

	res, err := newOverdueJob(st, testNow).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("overdueCount = %d, want 1", res.Count)
	}

	rows := notificationsFor(t, st, "owner")
	if len(rows) != 1 {
		t.Fatalf("owner notifications = %d, want 1", len(rows))
	}
	n := rows[0]
	if n.Payload.Kind != store.KindTaskOverdue || n.Payload.SubjectID != "t1" {
		t.Errorf("payload = %+v, want task_overdue for t1", n.Payload)
	}
	if n.IdempotencyKey != "task:t1:overdue" {
		t.Errorf("key = %q", n.IdempotencyKey)
	}
}

func TestOverdue_SecondRunNotifiesNothing(t *testing.T) {
	t.Parallel()

	st := store.NewInMemoryStore()
	for i := range 3 {
		mustSeedTask(t, st, store.Task{
			ID:      fmt.Sprintf("t%d", i),
			OwnerID: "owner",
			DueMode: true,
			DueDate: ptr(testNow.Add(-time.Hour)),
		})
	}
	job := newOverdueJob(st, testNow)

	first, err := job.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := job.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if first.Count != 3 || second.Count != 0 {
		t.Errorf("counts = %d then %d, want 3 then 0", first.Count, second.Count)
	}
	if second.Skipped != 3 {
		t.Errorf("second run skipped = %d, want 3", second.Skipped)
	}
	if got := len(notificationsFor(t, st, "owner")); got != 3 {
		t.Errorf("owner notifications = %d, want 3", got)
	}
}

func TestOverdue_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		task store.Task
		want bool
	}{
		{"due strictly before now", store.Task{DueMode: true, DueDate: ptr(testNow.Add(-time.Second))}, true},
		{"due exactly now", store.Task{DueMode: true, DueDate: ptr(testNow)}, false},
		{"due in the future", store.Task{DueMode: true, DueDate: ptr(testNow.Add(time.Hour))}, false},
		{"range ended", store.Task{DateRange: &store.DateRange{From: testNow.Add(-3 * day), To: testNow.Add(-day)}}, true},
		{"range ends now", store.Task{DateRange: &store.DateRange{From: testNow.Add(-day), To: testNow}}, false},
		{"range in progress", store.Task{DateRange: &store.DateRange{From: testNow.Add(-day), To: testNow.Add(day)}}, false},
		{"range mode ignores due date", store.Task{DueDate: ptr(testNow.Add(-day)), DateRange: &store.DateRange{To: testNow.Add(day)}}, false},
		{"done is never overdue", store.Task{DueMode: true, DueDate: ptr(testNow.Add(-day)), MarkedAsDone: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := store.NewInMemoryStore()
			task := tt.task
			task.ID = "t1"
			task.OwnerID = "owner"
			mustSeedTask(t, st, task)

			res, err := newOverdueJob(st, testNow).Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got := res.Count == 1; got != tt.want {
				t.Errorf("overdue = %v, want %v", got, tt.want)
			}
			if got := len(notificationsFor(t, st, "owner")) == 1; got != tt.want {
				t.Errorf("notified = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverdue_VerificationNotifiesGroup(t *testing.T) {
	t.Parallel()

	st := store.NewInMemoryStore()
	mustAddMember(t, st, "g1", "owner", "sitter1", "sitter2")
	mustSeedTask(t, st, store.Task{
		ID:                   "t1",
		OwnerID:              "owner",
		DueMode:              true,
		DueDate:              ptr(testNow.Add(-day)),
		GroupID:              "g1",
		RequiresVerification: true,
	})
	mustSeedTask(t, st, store.Task{
		ID:      "t2",
		OwnerID: "owner",
		DueMode: true,
		DueDate: ptr(testNow.Add(-day)),
		GroupID: "g1",
	})

	res, err := newOverdueJob(st, testNow).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 {
		t.Errorf("overdueCount = %d, want 2", res.Count)
	}

	if got := len(notificationsFor(t, st, "owner")); got != 2 {
		t.Errorf("owner notifications = %d, want 2", got)
	}
	for _, s := range []string{"sitter1", "sitter2"} {
		rows := notificationsFor(t, st, s)
		if len(rows) != 1 || rows[0].Payload.SubjectID != "t1" {
			t.Errorf("%s notifications = %+v, want one for t1", s, rows)
		}
	}
}

func TestOverdue_NewMemberIsNotifiedOnNextRun(t *testing.T) {
	t.Parallel()

	st := store.NewInMemoryStore()
	mustAddMember(t, st, "g1", "sitter1")
	mustSeedTask(t, st, store.Task{
		ID: "t1", OwnerID: "owner", DueMode: true, DueDate: ptr(testNow.Add(-day)),
		GroupID: "g1", RequiresVerification: true,
	})
	job := newOverdueJob(st, testNow)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	mustAddMember(t, st, "g1", "sitter2")

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 {
		t.Errorf("second run overdueCount = %d, want 1", res.Count)
	}
	if got := len(notificationsFor(t, st, "sitter2")); got != 1 {
		t.Errorf("sitter2 notifications = %d, want 1", got)
	}
	if got := len(notificationsFor(t, st, "owner")); got != 1 {
		t.Errorf("owner notifications = %d, want 1", got)
	}
}

// failingMembers fails group lookups for one group.
type failingMembers struct {
	*store.InMemoryStore
	group string
}

func (f failingMembers) ListGroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	if groupID == f.group {
		return nil, store.WrapOp("list group members", errors.New("connection reset"))
	}
	return f.InMemoryStore.ListGroupMemberIDs(ctx, groupID)
}

func TestOverdue_PerTaskFailureIsIsolated(t *testing.T) {
	t.Parallel()

	mem := store.NewInMemoryStore()
	st := failingMembers{InMemoryStore: mem, group: "broken"}
	mustSeedTask(t, mem, store.Task{
		ID: "bad", OwnerID: "owner", DueMode: true, DueDate: ptr(testNow.Add(-day)),
		GroupID: "broken", RequiresVerification: true,
	})
	mustSeedTask(t, mem, store.Task{ID: "good", OwnerID: "owner", DueMode: true, DueDate: ptr(testNow.Add(-day))})

	res, err := newOverdueJob(st, testNow).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("overdueCount = %d, want 1", res.Count)
	}
	if len(res.Failures) != 1 || res.Failures[0].ID != "bad" || res.Failures[0].Kind != "task" {
		t.Fatalf("failures = %+v, want one for task bad", res.Failures)
	}
	var opErr *store.OpError
	if !errors.As(res.Failures[0], &opErr) {
		t.Errorf("failure %v does not wrap *store.OpError", res.Failures[0])
	}
}

func TestOverdue_ScanErrorAborts(t *testing.T) {
	t.Parallel()

	st := store.NewInMemoryStore()
	_ = st.Close()

	_, err := newOverdueJob(st, testNow).Run(context.Background())
	if !errors.Is(err, store.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestOverdue_CancelledContext(t *testing.T) {
	t.Parallel()

	st := store.NewInMemoryStore()
	mustSeedTask(t, st, store.Task{ID: "t1", OwnerID: "owner", DueMode: true, DueDate: ptr(testNow.Add(-day))})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := newOverdueJob(st, testNow)
	// The scan itself ignores cancellation in the in-memory store; the
	// worker pool must refuse to start candidates.
	res, err := job.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Count != 0 {
		t.Errorf("overdueCount = %d, want 0", res.Count)
	}
	if got := len(notificationsFor(t, st, "owner")); got != 0 {
		t.Errorf("notifications after cancelled run = %d, want 0", got)
	}
}
