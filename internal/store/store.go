// Package store defines the narrow query/command surface the maintenance
// jobs use to read and mutate tasks, invite codes, pets, images and
// notifications, together with an in-memory implementation.
package store

import (
	"context"
	"time"
)

// InviteCodeStore expires group invite codes.
type InviteCodeStore interface {
	// DeleteInviteCodesCreatedAtOrBefore removes every code created at or
	// before cutoff in a single batch and returns the number removed.
	DeleteInviteCodesCreatedAtOrBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TaskStore scans tasks by due state.
type TaskStore interface {
	// ListOverdueTasks returns the tasks not marked as done whose due date
	// (due mode) or range end (range mode) is strictly before now.
	ListOverdueTasks(ctx context.Context, now time.Time) ([]Task, error)

	// ListGroupMemberIDs returns the user IDs belonging to a group.
	ListGroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// PetStore scans pets by birthday.
type PetStore interface {
	// ListPetsBornOn returns pets whose date of birth falls on month/day of
	// any year.
	ListPetsBornOn(ctx context.Context, month time.Month, day int) ([]Pet, error)

	// ListPetViewerIDs returns the owner of the pet followed by every member
	// of a group the pet is shared with. IDs are unique.
	ListPetViewerIDs(ctx context.Context, petID string) ([]string, error)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	// InsertNotificationIfAbsent atomically records the (recipient,
	// idempotency key) dispatch marker and inserts n. When the marker
	// already exists nothing is written and the previously stored
	// notification is returned with created=false; it may be the zero value
	// if that row has since been swept.
	InsertNotificationIfAbsent(ctx context.Context, n Notification) (stored Notification, created bool, err error)

	// DeleteNotificationsCreatedBefore removes every notification created
	// strictly before cutoff regardless of read state.
	DeleteNotificationsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ImageStore scans and removes image metadata.
type ImageStore interface {
	// ListOrphanedImages returns up to limit images uploaded strictly before
	// uploadedBefore that no live task or pet references. A limit <= 0
	// means no limit.
	ListOrphanedImages(ctx context.Context, uploadedBefore time.Time, limit int) ([]Image, error)

	// DeleteImage removes an image metadata row. Deleting a missing row is
	// not an error.
	DeleteImage(ctx context.Context, id string) error

	// MarkImageStorageDeleted flags a metadata row whose storage object is
	// gone so operators can spot rows that outlived their object.
	MarkImageStorageDeleted(ctx context.Context, id string, at time.Time) error
}

// LeaseStore provides short-lived advisory locks scoped to a job name.
type LeaseStore interface {
	// AcquireLease takes the named lease for holder until now+ttl. It
	// succeeds when the lease is free, expired, or already held by holder.
	AcquireLease(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error)

	// ReleaseLease drops the lease if holder still owns it.
	ReleaseLease(ctx context.Context, name, holder string) error
}

// Store is the full adapter consumed by the maintenance module.
type Store interface {
	InviteCodeStore
	TaskStore
	PetStore
	NotificationStore
	ImageStore
	LeaseStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Seeder creates the rows the maintenance jobs operate on. Production rows
// are written by the application's CRUD layer; the seeder serves tests and
// local development.
type Seeder interface {
	CreateTask(ctx context.Context, t Task) error
	MarkTaskDone(ctx context.Context, taskID, by string) error
	CreateInviteCode(ctx context.Context, c InviteCode) error
	CreatePet(ctx context.Context, p Pet) error
	DeletePet(ctx context.Context, petID string) error
	AddGroupMember(ctx context.Context, groupID, userID string) error
	CreateImage(ctx context.Context, img Image) error
	ListNotifications(ctx context.Context, recipientID string) ([]Notification, error)
	ListInviteCodes(ctx context.Context) ([]InviteCode, error)
	GetImage(ctx context.Context, id string) (Image, error)
}
