package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/sitterd/internal/store"
)

// OverdueJob notifies the stakeholders of tasks that passed their deadline
// without being marked as done.
//
// The owner is always notified. When the task requires verification and is
// linked to a group, the other members of that group are notified as well.
// Every recipient is keyed on "task:<id>:overdue", so a task notifies each
// recipient at most once no matter how often the job runs.
type OverdueJob struct {
	Tasks      store.TaskStore
	Dispatcher Dispatcher
	Now        func() time.Time
	Logger     *slog.Logger
	Workers    int
}

var _ Job = (*OverdueJob)(nil)

// Name implements Job.
func (*OverdueJob) Name() string { return JobNotifyOverdueTasks }

// CountKey implements Job.
func (*OverdueJob) CountKey() string { return "overdueCount" }

// Run implements Job. Count is the number of tasks that produced at least
// one new notification.
func (j *OverdueJob) Run(ctx context.Context) (Result, error) {
	now := j.Now()

	tasks, err := j.Tasks.ListOverdueTasks(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("maintenance: list overdue tasks: %w", err)
	}

	var t tally
	err = forEach(ctx, j.Workers, tasks, func(ctx context.Context, task store.Task) {
		if !task.IsOverdue(now) {
			t.skip()
			return
		}
		created, err := j.notify(ctx, task)
		switch {
		case created > 0:
			t.add(1)
		case err == nil:
			t.skip()
		}
		if err != nil {
			j.Logger.Error("overdue task notification failed", "task", task.ID, "error", err)
			t.fail("task", task.ID, err)
		}
	})

	res := Result{Scanned: len(tasks)}
	t.fill(&res)
	if err != nil {
		return res, fmt.Errorf("maintenance: notify overdue tasks: %w", err)
	}
	return res, nil
}

// notify dispatches to every recipient of task and returns how many
// notifications were newly created. A failing recipient does not stop the
// others.
func (j *OverdueJob) notify(ctx context.Context, task store.Task) (int, error) {
	recipients, err := j.recipients(ctx, task)
	if err != nil {
		return 0, err
	}

	deadline, _ := task.Deadline()
	payload := store.Payload{
		Kind:      store.KindTaskOverdue,
		SubjectID: task.ID,
		Title:     fmt.Sprintf("%q is overdue", task.Name),
		Body:      fmt.Sprintf("The task was due %s and has not been marked as done.", deadline.UTC().Format(time.RFC3339)),
		Data: map[string]string{
			"task_id":  task.ID,
			"deadline": deadline.UTC().Format(time.RFC3339),
		},
	}
	if task.PetID != "" {
		payload.Data["pet_id"] = task.PetID
	}
	if task.GroupID != "" {
		payload.Data["group_id"] = task.GroupID
	}

	key := "task:" + task.ID + ":overdue"
	var (
		created int
		errs    []error
	)
	for _, r := range recipients {
		out, err := j.Dispatcher.Dispatch(ctx, r, payload, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if out.Created {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// recipients returns the owner followed by the other group members when
// the task requires verification.
func (j *OverdueJob) recipients(ctx context.Context, task store.Task) ([]string, error) {
	out := []string{task.OwnerID}
	if !task.RequiresVerification || task.GroupID == "" {
		return out, nil
	}

	members, err := j.Tasks.ListGroupMemberIDs(ctx, task.GroupID)
	if err != nil {
		return nil, fmt.Errorf("list members of group %s: %w", task.GroupID, err)
	}
	seen := map[string]bool{task.OwnerID: true}
	for _, m := range members {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}
