package store

import (
	"encoding/json"
	"time"
)

// DateLayout is the storage format for calendar dates such as a pet's date
// of birth. Calendar dates carry no timezone.
const DateLayout = "2006-01-02"

// DateRange is an inclusive window a range-mode task must be completed in.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Task is a unit of work an owner expects to be done by a due date or
// within a date range.
type Task struct {
	ID      string
	OwnerID string
	Name    string

	// DueMode selects DueDate when true and DateRange when false.
	// Exactly one of the two is set.
	DueMode   bool
	DueDate   *time.Time
	DateRange *DateRange

	PetID   string // empty when the task is not linked to a pet
	GroupID string // empty when the task is not linked to a group

	RequiresVerification bool
	MarkedAsDone         bool
	MarkedAsDoneBy       string

	CreatedAt time.Time
}

// Deadline returns the instant after which the task counts as overdue,
// and false when the task has no deadline set for its mode.
func (t Task) Deadline() (time.Time, bool) {
	if t.DueMode {
		if t.DueDate == nil {
			return time.Time{}, false
		}
		return *t.DueDate, true
	}
	if t.DateRange == nil {
		return time.Time{}, false
	}
	return t.DateRange.To, true
}

// IsOverdue reports whether the task is past its deadline at now and has
// not been marked as done.
func (t Task) IsOverdue(now time.Time) bool {
	if t.MarkedAsDone {
		return false
	}
	deadline, ok := t.Deadline()
	if !ok {
		return false
	}
	return deadline.Before(now)
}

// InviteCode is a code that lets a sitter join a group until it expires.
type InviteCode struct {
	Code      string
	GroupID   string
	CreatedAt time.Time
}

// Pet is the subject of birthday reminders.
type Pet struct {
	ID      string
	OwnerID string
	Name    string

	// DateOfBirth is a calendar date in DateLayout, or empty when unknown.
	DateOfBirth string

	// GroupIDs lists the groups the pet is shared with.
	GroupIDs []string
}

// Birthday parses DateOfBirth.
func (p Pet) Birthday() (time.Time, error) {
	return time.Parse(DateLayout, p.DateOfBirth)
}

// Image is the metadata row of an uploaded file.
type Image struct {
	ID         string
	StorageKey string
	TaskID     string // empty when not attached to a task
	PetID      string // empty when not attached to a pet
	UploadedAt time.Time

	// StorageDeletedAt is set when the storage object is known to be gone
	// while the metadata row could not be removed.
	StorageDeletedAt *time.Time
}

// NotificationKind names the event a notification reports.
type NotificationKind string

// Notification kinds produced by the maintenance jobs.
const (
	KindTaskOverdue NotificationKind = "task_overdue"
	KindPetBirthday NotificationKind = "pet_birthday"
)

// Payload describes the event a notification was created for.
type Payload struct {
	Kind      NotificationKind  `json:"kind"`
	SubjectID string            `json:"subject_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Notification is a message addressed to a single user.
type Notification struct {
	ID             string
	RecipientID    string
	IdempotencyKey string
	Payload        Payload
	Read           bool
	CreatedAt      time.Time
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodePayload parses a stored payload.
func DecodePayload(raw string) (Payload, error) {
	var p Payload
	if raw == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}
