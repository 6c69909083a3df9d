package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store and
// Seeder. It backs the store.memory module and the job tests.
type InMemoryStore struct {
	mu sync.Mutex

	tasks         map[string]Task
	inviteCodes   map[string]InviteCode
	pets          map[string]Pet
	groupMembers  map[string][]string
	images        map[string]Image
	notifications map[string]Notification

	// dispatches maps (recipient, idempotency key) to a notification ID and
	// outlives the notification row itself.
	dispatches map[dispatchKey]string
	leases     map[string]lease
	closed     bool
}

type dispatchKey struct {
	recipientID string
	key         string
}

type lease struct {
	holder    string
	expiresAt time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks:         make(map[string]Task),
		inviteCodes:   make(map[string]InviteCode),
		pets:          make(map[string]Pet),
		groupMembers:  make(map[string][]string),
		images:        make(map[string]Image),
		notifications: make(map[string]Notification),
		dispatches:    make(map[dispatchKey]string),
		leases:        make(map[string]lease),
	}
}

// Compile-time interface checks.
var (
	_ Store  = (*InMemoryStore)(nil)
	_ Seeder = (*InMemoryStore)(nil)
)

// DeleteInviteCodesCreatedAtOrBefore implements InviteCodeStore.
func (s *InMemoryStore) DeleteInviteCodesCreatedAtOrBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, opErr("delete invite codes", ErrClosed)
	}

	var n int64
	for code, c := range s.inviteCodes {
		if !c.CreatedAt.After(cutoff) {
			delete(s.inviteCodes, code)
			n++
		}
	}
	return n, nil
}

// ListOverdueTasks implements TaskStore.
func (s *InMemoryStore) ListOverdueTasks(_ context.Context, now time.Time) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("list overdue tasks", ErrClosed)
	}

	var out []Task
	for _, t := range s.tasks {
		if t.IsOverdue(now) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Task) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListGroupMemberIDs implements TaskStore.
func (s *InMemoryStore) ListGroupMemberIDs(_ context.Context, groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("list group members", ErrClosed)
	}
	return slices.Clone(s.groupMembers[groupID]), nil
}

// ListPetsBornOn implements PetStore. Pets without a parseable date of
// birth never match.
func (s *InMemoryStore) ListPetsBornOn(_ context.Context, month time.Month, day int) ([]Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("list pets born on", ErrClosed)
	}

	var out []Pet
	for _, p := range s.pets {
		dob, err := p.Birthday()
		if err != nil {
			continue
		}
		if dob.Month() == month && dob.Day() == day {
			out = append(out, clonePet(p))
		}
	}
	slices.SortFunc(out, func(a, b Pet) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListPetViewerIDs implements PetStore.
func (s *InMemoryStore) ListPetViewerIDs(_ context.Context, petID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("list pet viewers", ErrClosed)
	}

	p, ok := s.pets[petID]
	if !ok {
		return nil, opErr("list pet viewers", ErrNotFound)
	}

	seen := map[string]bool{p.OwnerID: true}
	viewers := []string{p.OwnerID}
	var members []string
	for _, g := range p.GroupIDs {
		for _, m := range s.groupMembers[g] {
			if !seen[m] {
				seen[m] = true
				members = append(members, m)
			}
		}
	}
	slices.Sort(members)
	return append(viewers, members...), nil
}

// InsertNotificationIfAbsent implements NotificationStore.
func (s *InMemoryStore) InsertNotificationIfAbsent(_ context.Context, n Notification) (Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Notification{}, false, opErr("insert notification", ErrClosed)
	}

	key := dispatchKey{recipientID: n.RecipientID, key: n.IdempotencyKey}
	if id, exists := s.dispatches[key]; exists {
		return s.notifications[id], false, nil
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.dispatches[key] = n.ID
	s.notifications[n.ID] = n
	return n, true, nil
}

// DeleteNotificationsCreatedBefore implements NotificationStore.
func (s *InMemoryStore) DeleteNotificationsCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, opErr("delete notifications", ErrClosed)
	}

	var n int64
	for id, note := range s.notifications {
		if note.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			n++
		}
	}
	return n, nil
}

// ListOrphanedImages implements ImageStore.
func (s *InMemoryStore) ListOrphanedImages(_ context.Context, uploadedBefore time.Time, limit int) ([]Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("list orphaned images", ErrClosed)
	}

	var out []Image
	for _, img := range s.images {
		if !img.UploadedAt.Before(uploadedBefore) || s.referencedLocked(img) {
			continue
		}
		out = append(out, img)
	}
	slices.SortFunc(out, func(a, b Image) int {
		if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// referencedLocked reports whether a live task or pet still owns img.
func (s *InMemoryStore) referencedLocked(img Image) bool {
	if img.TaskID != "" {
		if _, ok := s.tasks[img.TaskID]; ok {
			return true
		}
	}
	if img.PetID != "" {
		if _, ok := s.pets[img.PetID]; ok {
			return true
		}
	}
	return false
}

// DeleteImage implements ImageStore.
func (s *InMemoryStore) DeleteImage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("delete image", ErrClosed)
	}
	delete(s.images, id)
	return nil
}

// MarkImageStorageDeleted implements ImageStore.
func (s *InMemoryStore) MarkImageStorageDeleted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("mark image storage deleted", ErrClosed)
	}
	img, ok := s.images[id]
	if !ok {
		return opErr("mark image storage deleted", ErrNotFound)
	}
	img.StorageDeletedAt = &at
	s.images[id] = img
	return nil
}

// AcquireLease implements LeaseStore.
func (s *InMemoryStore) AcquireLease(_ context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, opErr("acquire lease", ErrClosed)
	}

	if cur, ok := s.leases[name]; ok && cur.holder != holder && cur.expiresAt.After(now) {
		return false, nil
	}
	s.leases[name] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseLease implements LeaseStore.
func (s *InMemoryStore) ReleaseLease(_ context.Context, name, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("release lease", ErrClosed)
	}
	if cur, ok := s.leases[name]; ok && cur.holder == holder {
		delete(s.leases, name)
	}
	return nil
}

// Ping implements Store.
func (s *InMemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CreateTask implements Seeder.
func (s *InMemoryStore) CreateTask(_ context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

// MarkTaskDone implements Seeder.
func (s *InMemoryStore) MarkTaskDone(_ context.Context, taskID, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return opErr("mark task done", ErrNotFound)
	}
	t.MarkedAsDone = true
	t.MarkedAsDoneBy = by
	s.tasks[taskID] = t
	return nil
}

// CreateInviteCode implements Seeder.
func (s *InMemoryStore) CreateInviteCode(_ context.Context, c InviteCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inviteCodes[c.Code] = c
	return nil
}

// CreatePet implements Seeder.
func (s *InMemoryStore) CreatePet(_ context.Context, p Pet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pets[p.ID] = clonePet(p)
	return nil
}

// DeletePet implements Seeder.
func (s *InMemoryStore) DeletePet(_ context.Context, petID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pets, petID)
	return nil
}

// AddGroupMember implements Seeder.
func (s *InMemoryStore) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.groupMembers[groupID], userID) {
		s.groupMembers[groupID] = append(s.groupMembers[groupID], userID)
	}
	return nil
}

// CreateImage implements Seeder.
func (s *InMemoryStore) CreateImage(_ context.Context, img Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ID] = img
	return nil
}

// ListNotifications implements Seeder. Results are ordered by creation
// time, then ID.
func (s *InMemoryStore) ListNotifications(_ context.Context, recipientID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b Notification) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ListInviteCodes implements Seeder.
func (s *InMemoryStore) ListInviteCodes(context.Context) ([]InviteCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]InviteCode, 0, len(s.inviteCodes))
	for _, c := range s.inviteCodes {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b InviteCode) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

// GetImage implements Seeder.
func (s *InMemoryStore) GetImage(_ context.Context, id string) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return Image{}, opErr("get image", ErrNotFound)
	}
	return img, nil
}

func clonePet(p Pet) Pet {
	p.GroupIDs = slices.Clone(p.GroupIDs)
	return p
}
