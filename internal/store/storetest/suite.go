// Package storetest provides a behavioural test suite shared by every
// store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/flemzord/sitterd/internal/store"
)

// Backend is a store under test that can also seed fixtures.
type Backend interface {
	store.Store
	store.Seeder
}

// Factory returns a fresh, empty backend. Cleanup is the factory's job.
type Factory func(t *testing.T) Backend

// Base is the fixed instant fixtures are expressed relative to.
var Base = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// Run executes the full suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("InviteCodeExpiry", func(t *testing.T) { testInviteCodeExpiry(t, newBackend(t)) })
	t.Run("OverdueTasks", func(t *testing.T) { testOverdueTasks(t, newBackend(t)) })
	t.Run("GroupMembers", func(t *testing.T) { testGroupMembers(t, newBackend(t)) })
	t.Run("PetsBornOn", func(t *testing.T) { testPetsBornOn(t, newBackend(t)) })
	t.Run("PetViewers", func(t *testing.T) { testPetViewers(t, newBackend(t)) })
	t.Run("InsertNotificationIfAbsent", func(t *testing.T) { testInsertIfAbsent(t, newBackend(t)) })
	t.Run("NotificationRetention", func(t *testing.T) { testNotificationRetention(t, newBackend(t)) })
	t.Run("OrphanedImages", func(t *testing.T) { testOrphanedImages(t, newBackend(t)) })
	t.Run("ImageDeleteAndMark", func(t *testing.T) { testImageDeleteAndMark(t, newBackend(t)) })
	t.Run("Leases", func(t *testing.T) { testLeases(t, newBackend(t)) })
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func ptr[T any](v T) *T { return &v }

func testInviteCodeExpiry(t *testing.T, b Backend) {
	ctx := context.Background()
	cutoff := Base.Add(-30 * 24 * time.Hour)

	must(t, b.CreateInviteCode(ctx, store.InviteCode{Code: "old", GroupID: "g1", CreatedAt: Base.Add(-31 * 24 * time.Hour)}))
	must(t, b.CreateInviteCode(ctx, store.InviteCode{Code: "edge", GroupID: "g1", CreatedAt: cutoff}))
	must(t, b.CreateInviteCode(ctx, store.InviteCode{Code: "fresh", GroupID: "g1", CreatedAt: Base.Add(-24 * time.Hour)}))

	n, err := b.DeleteInviteCodesCreatedAtOrBefore(ctx, cutoff)
	must(t, err)
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	codes, err := b.ListInviteCodes(ctx)
	must(t, err)
	if len(codes) != 1 || codes[0].Code != "fresh" {
		t.Errorf("remaining codes = %+v, want only fresh", codes)
	}

	n, err = b.DeleteInviteCodesCreatedAtOrBefore(ctx, cutoff)
	must(t, err)
	if n != 0 {
		t.Errorf("second sweep deleted = %d, want 0", n)
	}
}

func testOverdueTasks(t *testing.T, b Backend) {
	ctx := context.Background()
	yesterday := Base.Add(-24 * time.Hour)
	tomorrow := Base.Add(24 * time.Hour)

	tasks := []store.Task{
		{ID: "due-past", OwnerID: "u1", Name: "Feed", DueMode: true, DueDate: ptr(yesterday)},
		{ID: "due-future", OwnerID: "u1", Name: "Walk", DueMode: true, DueDate: ptr(tomorrow)},
		{ID: "due-exact", OwnerID: "u1", Name: "Brush", DueMode: true, DueDate: ptr(Base)},
		{ID: "range-past", OwnerID: "u2", Name: "Sit", DateRange: &store.DateRange{From: Base.Add(-72 * time.Hour), To: yesterday}},
		{ID: "range-open", OwnerID: "u2", Name: "Sit", DateRange: &store.DateRange{From: yesterday, To: tomorrow}},
		{ID: "done-past", OwnerID: "u3", Name: "Meds", DueMode: true, DueDate: ptr(yesterday)},
	}
	for _, task := range tasks {
		must(t, b.CreateTask(ctx, task))
	}
	must(t, b.MarkTaskDone(ctx, "done-past", "u3"))

	got, err := b.ListOverdueTasks(ctx, Base)
	must(t, err)

	ids := make([]string, len(got))
	for i, task := range got {
		ids[i] = task.ID
	}
	slices.Sort(ids)
	want := []string{"due-past", "range-past"}
	if !slices.Equal(ids, want) {
		t.Fatalf("overdue = %v, want %v", ids, want)
	}

	for _, task := range got {
		if task.ID == "range-past" {
			if task.DueMode || task.DateRange == nil || !task.DateRange.To.Equal(yesterday) {
				t.Errorf("range task not round-tripped: %+v", task)
			}
		}
		if task.ID == "due-past" && task.OwnerID != "u1" {
			t.Errorf("owner = %q, want u1", task.OwnerID)
		}
	}
}

func testGroupMembers(t *testing.T, b Backend) {
	ctx := context.Background()
	must(t, b.AddGroupMember(ctx, "g1", "alice"))
	must(t, b.AddGroupMember(ctx, "g1", "bob"))
	must(t, b.AddGroupMember(ctx, "g1", "bob"))
	must(t, b.AddGroupMember(ctx, "g2", "carol"))

	got, err := b.ListGroupMemberIDs(ctx, "g1")
	must(t, err)
	slices.Sort(got)
	if !slices.Equal(got, []string{"alice", "bob"}) {
		t.Errorf("members = %v, want [alice bob]", got)
	}

	none, err := b.ListGroupMemberIDs(ctx, "missing")
	must(t, err)
	if len(none) != 0 {
		t.Errorf("members of unknown group = %v, want none", none)
	}
}

func testPetsBornOn(t *testing.T, b Backend) {
	ctx := context.Background()
	must(t, b.CreatePet(ctx, store.Pet{ID: "rex", OwnerID: "u1", Name: "Rex", DateOfBirth: "2019-03-10"}))
	must(t, b.CreatePet(ctx, store.Pet{ID: "tom", OwnerID: "u1", Name: "Tom", DateOfBirth: "2021-03-10"}))
	must(t, b.CreatePet(ctx, store.Pet{ID: "kit", OwnerID: "u2", Name: "Kit", DateOfBirth: "2020-03-11"}))
	must(t, b.CreatePet(ctx, store.Pet{ID: "leap", OwnerID: "u2", Name: "Leap", DateOfBirth: "2020-02-29"}))
	must(t, b.CreatePet(ctx, store.Pet{ID: "anon", OwnerID: "u3", Name: "Anon"}))

	got, err := b.ListPetsBornOn(ctx, time.March, 10)
	must(t, err)
	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"rex", "tom"}) {
		t.Errorf("pets born on 03-10 = %v, want [rex tom]", ids)
	}

	leap, err := b.ListPetsBornOn(ctx, time.February, 29)
	must(t, err)
	if len(leap) != 1 || leap[0].ID != "leap" {
		t.Errorf("pets born on 02-29 = %+v, want leap", leap)
	}
}

func testPetViewers(t *testing.T, b Backend) {
	ctx := context.Background()
	must(t, b.AddGroupMember(ctx, "g1", "sitter1"))
	must(t, b.AddGroupMember(ctx, "g1", "owner"))
	must(t, b.AddGroupMember(ctx, "g2", "sitter2"))
	must(t, b.AddGroupMember(ctx, "g2", "sitter1"))
	must(t, b.CreatePet(ctx, store.Pet{ID: "rex", OwnerID: "owner", Name: "Rex", DateOfBirth: "2019-03-10", GroupIDs: []string{"g1", "g2"}}))

	got, err := b.ListPetViewerIDs(ctx, "rex")
	must(t, err)
	want := []string{"owner", "sitter1", "sitter2"}
	if !slices.Equal(got, want) {
		t.Errorf("viewers = %v, want %v", got, want)
	}

	_, err = b.ListPetViewerIDs(ctx, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("viewers of missing pet: err = %v, want ErrNotFound", err)
	}
}

func testInsertIfAbsent(t *testing.T, b Backend) {
	ctx := context.Background()
	n := store.Notification{
		RecipientID:    "u1",
		IdempotencyKey: "task:t1:overdue",
		Payload:        store.Payload{Kind: store.KindTaskOverdue, SubjectID: "t1", Title: "Feed is overdue"},
		CreatedAt:      Base,
	}

	first, created, err := b.InsertNotificationIfAbsent(ctx, n)
	must(t, err)
	if !created {
		t.Fatal("first insert should create")
	}
	if first.ID == "" {
		t.Error("created notification should have an ID")
	}

	second, created, err := b.InsertNotificationIfAbsent(ctx, n)
	must(t, err)
	if created {
		t.Fatal("second insert with same key should not create")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate returned ID %q, want %q", second.ID, first.ID)
	}

	other := n
	other.RecipientID = "u2"
	_, created, err = b.InsertNotificationIfAbsent(ctx, other)
	must(t, err)
	if !created {
		t.Error("same key for another recipient should create")
	}

	stored, err := b.ListNotifications(ctx, "u1")
	must(t, err)
	if len(stored) != 1 {
		t.Fatalf("u1 notifications = %d, want 1", len(stored))
	}
	if stored[0].Payload.Title != "Feed is overdue" || stored[0].Payload.Kind != store.KindTaskOverdue {
		t.Errorf("payload not round-tripped: %+v", stored[0].Payload)
	}
	if !stored[0].CreatedAt.Equal(Base) {
		t.Errorf("created_at = %v, want %v", stored[0].CreatedAt, Base)
	}
}

func testNotificationRetention(t *testing.T, b Backend) {
	ctx := context.Background()
	horizon := Base.Add(-90 * 24 * time.Hour)

	insert := func(key string, at time.Time) {
		t.Helper()
		_, _, err := b.InsertNotificationIfAbsent(ctx, store.Notification{
			RecipientID:    "u1",
			IdempotencyKey: key,
			Payload:        store.Payload{Kind: store.KindPetBirthday, Title: key},
			CreatedAt:      at,
		})
		must(t, err)
	}
	insert("old", Base.Add(-91*24*time.Hour))
	insert("edge", horizon)
	insert("new", Base.Add(-time.Hour))

	n, err := b.DeleteNotificationsCreatedBefore(ctx, horizon)
	must(t, err)
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	left, err := b.ListNotifications(ctx, "u1")
	must(t, err)
	if len(left) != 2 {
		t.Fatalf("remaining = %d, want 2", len(left))
	}

	// The dispatch marker survives the row it guarded.
	_, created, err := b.InsertNotificationIfAbsent(ctx, store.Notification{
		RecipientID:    "u1",
		IdempotencyKey: "old",
		CreatedAt:      Base,
	})
	must(t, err)
	if created {
		t.Error("swept notification key should stay claimed")
	}
}

func testOrphanedImages(t *testing.T, b Backend) {
	ctx := context.Background()
	old := Base.Add(-48 * time.Hour)
	grace := Base.Add(-24 * time.Hour)

	must(t, b.CreateTask(ctx, store.Task{ID: "t1", OwnerID: "u1", Name: "Feed", DueMode: true, DueDate: ptr(Base)}))
	must(t, b.CreatePet(ctx, store.Pet{ID: "p1", OwnerID: "u1", Name: "Rex"}))

	images := []store.Image{
		{ID: "task-linked", StorageKey: "a", TaskID: "t1", UploadedAt: old},
		{ID: "pet-linked", StorageKey: "b", PetID: "p1", UploadedAt: old},
		{ID: "unlinked-old", StorageKey: "c", UploadedAt: old},
		{ID: "dangling-task", StorageKey: "d", TaskID: "gone", UploadedAt: old.Add(time.Minute)},
		{ID: "unlinked-new", StorageKey: "e", UploadedAt: Base.Add(-time.Hour)},
	}
	for _, img := range images {
		must(t, b.CreateImage(ctx, img))
	}

	got, err := b.ListOrphanedImages(ctx, grace, 0)
	must(t, err)
	ids := make([]string, len(got))
	for i, img := range got {
		ids[i] = img.ID
	}
	if !slices.Equal(ids, []string{"unlinked-old", "dangling-task"}) {
		t.Errorf("orphans = %v, want [unlinked-old dangling-task]", ids)
	}

	limited, err := b.ListOrphanedImages(ctx, grace, 1)
	must(t, err)
	if len(limited) != 1 || limited[0].ID != "unlinked-old" {
		t.Errorf("limited orphans = %+v, want oldest only", limited)
	}

	must(t, b.DeletePet(ctx, "p1"))
	got, err = b.ListOrphanedImages(ctx, grace, 0)
	must(t, err)
	if len(got) != 3 {
		t.Errorf("orphans after pet deletion = %d, want 3", len(got))
	}
}

func testImageDeleteAndMark(t *testing.T, b Backend) {
	ctx := context.Background()
	must(t, b.CreateImage(ctx, store.Image{ID: "i1", StorageKey: "k1", UploadedAt: Base}))

	must(t, b.MarkImageStorageDeleted(ctx, "i1", Base))
	img, err := b.GetImage(ctx, "i1")
	must(t, err)
	if img.StorageDeletedAt == nil || !img.StorageDeletedAt.Equal(Base) {
		t.Errorf("storage_deleted_at = %v, want %v", img.StorageDeletedAt, Base)
	}

	must(t, b.DeleteImage(ctx, "i1"))
	if _, err := b.GetImage(ctx, "i1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetImage after delete: err = %v, want ErrNotFound", err)
	}
	must(t, b.DeleteImage(ctx, "i1"))
}

func testLeases(t *testing.T, b Backend) {
	ctx := context.Background()
	ttl := time.Minute

	ok, err := b.AcquireLease(ctx, "job", "a", Base, ttl)
	must(t, err)
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, err = b.AcquireLease(ctx, "job", "b", Base.Add(time.Second), ttl)
	must(t, err)
	if ok {
		t.Fatal("acquire by another holder should fail while the lease is live")
	}

	ok, err = b.AcquireLease(ctx, "other-job", "b", Base, ttl)
	must(t, err)
	if !ok {
		t.Error("leases are scoped per name")
	}

	ok, err = b.AcquireLease(ctx, "job", "b", Base.Add(2*ttl), ttl)
	must(t, err)
	if !ok {
		t.Fatal("expired lease should be taken over")
	}

	must(t, b.ReleaseLease(ctx, "job", "a"))
	ok, err = b.AcquireLease(ctx, "job", "a", Base.Add(2*ttl+time.Second), ttl)
	must(t, err)
	if ok {
		t.Fatal("release by a stale holder must not free the lease")
	}

	must(t, b.ReleaseLease(ctx, "job", "b"))
	ok, err = b.AcquireLease(ctx, "job", "a", Base.Add(2*ttl+time.Second), ttl)
	must(t, err)
	if !ok {
		t.Error("released lease should be free")
	}
}
