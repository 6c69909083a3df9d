package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/sitterd/internal/notify"
	"github.com/flemzord/sitterd/internal/store"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(st store.NotificationStore, now func() time.Time) *notify.Dispatcher {
	return notify.NewDispatcher(notify.Config{Store: st, Logger: quietLogger(), Now: now})
}

func ptr[T any](v T) *T { return &v }

func mustSeedTask(t *testing.T, st store.Seeder, task store.Task) {
	t.Helper()
	if err := st.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task %s: %v", task.ID, err)
	}
}

func mustSeedPet(t *testing.T, st store.Seeder, pet store.Pet) {
	t.Helper()
	if err := st.CreatePet(context.Background(), pet); err != nil {
		t.Fatalf("create pet %s: %v", pet.ID, err)
	}
}

func mustAddMember(t *testing.T, st store.Seeder, group string, users ...string) {
	t.Helper()
	for _, u := range users {
		if err := st.AddGroupMember(context.Background(), group, u); err != nil {
			t.Fatalf("add member %s to %s: %v", u, group, err)
		}
	}
}

func notificationsFor(t *testing.T, st store.Seeder, recipient string) []store.Notification {
	t.Helper()
	rows, err := st.ListNotifications(context.Background(), recipient)
	if err != nil {
		t.Fatalf("list notifications for %s: %v", recipient, err)
	}
	return rows
}
