package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/sitterd/internal/store"
	"github.com/google/uuid"
)

// Store implements store.Store and store.Seeder over a *sql.DB whose schema
// was created by Migrate.
type Store struct {
	db *sql.DB
	d  Dialect
}

// Compile-time interface checks.
var (
	_ store.Store  = (*Store)(nil)
	_ store.Seeder = (*Store)(nil)
)

// New wraps an open, migrated database.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.Rebind(query), args...)
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DeleteInviteCodesCreatedAtOrBefore implements store.InviteCodeStore.
func (s *Store) DeleteInviteCodesCreatedAtOrBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM group_invite_codes WHERE created_at <= ?`, millis(cutoff))
	if err != nil {
		return 0, store.WrapOp("delete invite codes", err)
	}
	n, err := res.RowsAffected()
	return n, store.WrapOp("delete invite codes", err)
}

const taskColumns = `id, owner_id, name, due_mode, due_date, range_from, range_to,
	pet_id, group_id, requires_verification, marked_as_done, marked_as_done_by, created_at`

// ListOverdueTasks implements store.TaskStore.
func (s *Store) ListOverdueTasks(ctx context.Context, now time.Time) ([]store.Task, error) {
	ms := millis(now)
	rows, err := s.query(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE marked_as_done = 0 AND (
			(due_mode = 1 AND due_date IS NOT NULL AND due_date < ?) OR
			(due_mode = 0 AND range_to IS NOT NULL AND range_to < ?)
		)
		ORDER BY id`, ms, ms)
	if err != nil {
		return nil, store.WrapOp("list overdue tasks", err)
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, store.WrapOp("list overdue tasks", err)
		}
		out = append(out, t)
	}
	return out, store.WrapOp("list overdue tasks", rows.Err())
}

func scanTask(rows *sql.Rows) (store.Task, error) {
	var (
		t                           store.Task
		dueMode, verify, done       int
		dueDate, rangeFrom, rangeTo sql.NullInt64
		petID, groupID, doneBy      sql.NullString
		createdAt                   int64
	)
	if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &dueMode, &dueDate, &rangeFrom, &rangeTo,
		&petID, &groupID, &verify, &done, &doneBy, &createdAt); err != nil {
		return t, err
	}
	t.DueMode = dueMode == 1
	t.DueDate = timePtr(dueDate)
	if rangeFrom.Valid || rangeTo.Valid {
		t.DateRange = &store.DateRange{From: fromMillis(rangeFrom.Int64), To: fromMillis(rangeTo.Int64)}
	}
	t.PetID = petID.String
	t.GroupID = groupID.String
	t.RequiresVerification = verify == 1
	t.MarkedAsDone = done == 1
	t.MarkedAsDoneBy = doneBy.String
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

// ListGroupMemberIDs implements store.TaskStore.
func (s *Store) ListGroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.query(ctx, `SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id`, groupID)
	if err != nil {
		return nil, store.WrapOp("list group members", err)
	}
	ids, err := scanStrings(rows)
	return ids, store.WrapOp("list group members", err)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListPetsBornOn implements store.PetStore.
func (s *Store) ListPetsBornOn(ctx context.Context, month time.Month, day int) ([]store.Pet, error) {
	rows, err := s.query(ctx, `SELECT id, owner_id, name, date_of_birth FROM pets
		WHERE date_of_birth IS NOT NULL AND substr(date_of_birth, 6, 5) = ?
		ORDER BY id`, fmt.Sprintf("%02d-%02d", int(month), day))
	if err != nil {
		return nil, store.WrapOp("list pets born on", err)
	}

	var pets []store.Pet
	for rows.Next() {
		var p store.Pet
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.DateOfBirth); err != nil {
			rows.Close()
			return nil, store.WrapOp("list pets born on", err)
		}
		pets = append(pets, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, store.WrapOp("list pets born on", err)
	}
	rows.Close()

	for i := range pets {
		groups, err := s.query(ctx, `SELECT group_id FROM pet_groups WHERE pet_id = ? ORDER BY group_id`, pets[i].ID)
		if err != nil {
			return nil, store.WrapOp("list pet groups", err)
		}
		if pets[i].GroupIDs, err = scanStrings(groups); err != nil {
			return nil, store.WrapOp("list pet groups", err)
		}
	}
	return pets, nil
}

// ListPetViewerIDs implements store.PetStore.
func (s *Store) ListPetViewerIDs(ctx context.Context, petID string) ([]string, error) {
	var owner string
	err := s.queryRow(ctx, `SELECT owner_id FROM pets WHERE id = ?`, petID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.WrapOp("list pet viewers", store.ErrNotFound)
	}
	if err != nil {
		return nil, store.WrapOp("list pet viewers", err)
	}

	rows, err := s.query(ctx, `SELECT DISTINCT gm.user_id FROM pet_groups pg
		JOIN group_members gm ON gm.group_id = pg.group_id
		WHERE pg.pet_id = ?
		ORDER BY gm.user_id`, petID)
	if err != nil {
		return nil, store.WrapOp("list pet viewers", err)
	}
	members, err := scanStrings(rows)
	if err != nil {
		return nil, store.WrapOp("list pet viewers", err)
	}

	viewers := []string{owner}
	for _, m := range members {
		if m != owner {
			viewers = append(viewers, m)
		}
	}
	return viewers, nil
}

// InsertNotificationIfAbsent implements store.NotificationStore. The dispatch
// marker and the notification row are written in one transaction; the
// marker's primary key arbitrates concurrent callers.
func (s *Store) InsertNotificationIfAbsent(ctx context.Context, n store.Notification) (store.Notification, bool, error) {
	const op = "insert notification"

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	payload, err := store.EncodePayload(n.Payload)
	if err != nil {
		return store.Notification{}, false, store.WrapOp(op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Notification{}, false, store.WrapOp(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.d.Rebind(`INSERT INTO notification_dispatches
		(recipient_id, idempotency_key, notification_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (recipient_id, idempotency_key) DO NOTHING`),
		n.RecipientID, n.IdempotencyKey, n.ID, millis(n.CreatedAt))
	if err != nil {
		return store.Notification{}, false, store.WrapOp(op, err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return store.Notification{}, false, store.WrapOp(op, err)
	}

	if claimed == 0 {
		existing, err := s.existingNotification(ctx, tx, n.RecipientID, n.IdempotencyKey)
		if err != nil {
			return store.Notification{}, false, store.WrapOp(op, err)
		}
		return existing, false, store.WrapOp(op, tx.Commit())
	}

	if _, err := tx.ExecContext(ctx, s.d.Rebind(`INSERT INTO notifications
		(id, recipient_id, idempotency_key, payload, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		n.ID, n.RecipientID, n.IdempotencyKey, payload, boolInt(n.Read), millis(n.CreatedAt)); err != nil {
		return store.Notification{}, false, store.WrapOp(op, err)
	}
	if err := tx.Commit(); err != nil {
		return store.Notification{}, false, store.WrapOp(op, err)
	}
	return n, true, nil
}

// existingNotification returns the row a dispatch marker points at, or the
// zero value when retention already removed it.
func (s *Store) existingNotification(ctx context.Context, tx *sql.Tx, recipientID, key string) (store.Notification, error) {
	row := tx.QueryRowContext(ctx, s.d.Rebind(`SELECT n.id, n.recipient_id, n.idempotency_key, n.payload, n.is_read, n.created_at
		FROM notification_dispatches d
		JOIN notifications n ON n.id = d.notification_id
		WHERE d.recipient_id = ? AND d.idempotency_key = ?`), recipientID, key)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Notification{}, nil
	}
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (store.Notification, error) {
	var (
		n         store.Notification
		payload   string
		read      int
		createdAt int64
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.IdempotencyKey, &payload, &read, &createdAt); err != nil {
		return n, err
	}
	p, err := store.DecodePayload(payload)
	if err != nil {
		return n, fmt.Errorf("decode payload of %s: %w", n.ID, err)
	}
	n.Payload = p
	n.Read = read == 1
	n.CreatedAt = fromMillis(createdAt)
	return n, nil
}

// DeleteNotificationsCreatedBefore implements store.NotificationStore.
func (s *Store) DeleteNotificationsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM notifications WHERE created_at < ?`, millis(cutoff))
	if err != nil {
		return 0, store.WrapOp("delete notifications", err)
	}
	n, err := res.RowsAffected()
	return n, store.WrapOp("delete notifications", err)
}

const imageColumns = `i.id, i.storage_key, i.task_id, i.pet_id, i.uploaded_at, i.storage_deleted_at`

// ListOrphanedImages implements store.ImageStore.
func (s *Store) ListOrphanedImages(ctx context.Context, uploadedBefore time.Time, limit int) ([]store.Image, error) {
	q := `SELECT ` + imageColumns + ` FROM images i
		WHERE i.uploaded_at < ?
		AND NOT EXISTS (SELECT 1 FROM tasks t WHERE t.id = i.task_id)
		AND NOT EXISTS (SELECT 1 FROM pets p WHERE p.id = i.pet_id)
		ORDER BY i.uploaded_at, i.id`
	args := []any{millis(uploadedBefore)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, store.WrapOp("list orphaned images", err)
	}
	defer rows.Close()

	var out []store.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, store.WrapOp("list orphaned images", err)
		}
		out = append(out, img)
	}
	return out, store.WrapOp("list orphaned images", rows.Err())
}

func scanImage(row scanner) (store.Image, error) {
	var (
		img            store.Image
		taskID, petID  sql.NullString
		uploadedAt     int64
		storageDeleted sql.NullInt64
	)
	if err := row.Scan(&img.ID, &img.StorageKey, &taskID, &petID, &uploadedAt, &storageDeleted); err != nil {
		return img, err
	}
	img.TaskID = taskID.String
	img.PetID = petID.String
	img.UploadedAt = fromMillis(uploadedAt)
	img.StorageDeletedAt = timePtr(storageDeleted)
	return img, nil
}

// DeleteImage implements store.ImageStore.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `DELETE FROM images WHERE id = ?`, id)
	return store.WrapOp("delete image", err)
}

// MarkImageStorageDeleted implements store.ImageStore.
func (s *Store) MarkImageStorageDeleted(ctx context.Context, id string, at time.Time) error {
	const op = "mark image storage deleted"
	res, err := s.exec(ctx, `UPDATE images SET storage_deleted_at = ? WHERE id = ?`, millis(at), id)
	if err != nil {
		return store.WrapOp(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.WrapOp(op, err)
	}
	if n == 0 {
		return store.WrapOp(op, store.ErrNotFound)
	}
	return nil
}

// AcquireLease implements store.LeaseStore. The upsert only overwrites a
// row that is expired or already owned by holder.
func (s *Store) AcquireLease(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := s.exec(ctx, `INSERT INTO job_leases (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE job_leases.holder = excluded.holder OR job_leases.expires_at <= ?`,
		name, holder, millis(now.Add(ttl)), millis(now))
	if err != nil {
		return false, store.WrapOp("acquire lease", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, store.WrapOp("acquire lease", err)
	}
	return n > 0, nil
}

// ReleaseLease implements store.LeaseStore.
func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := s.exec(ctx, `DELETE FROM job_leases WHERE name = ? AND holder = ?`, name, holder)
	return store.WrapOp("release lease", err)
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTask implements store.Seeder.
func (s *Store) CreateTask(ctx context.Context, t store.Task) error {
	var from, to sql.NullInt64
	if t.DateRange != nil {
		from = nullMillis(&t.DateRange.From)
		to = nullMillis(&t.DateRange.To)
	}
	_, err := s.exec(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Name, boolInt(t.DueMode), nullMillis(t.DueDate), from, to,
		nullString(t.PetID), nullString(t.GroupID), boolInt(t.RequiresVerification),
		boolInt(t.MarkedAsDone), nullString(t.MarkedAsDoneBy), millis(t.CreatedAt))
	return store.WrapOp("create task", err)
}

// MarkTaskDone implements store.Seeder.
func (s *Store) MarkTaskDone(ctx context.Context, taskID, by string) error {
	res, err := s.exec(ctx, `UPDATE tasks SET marked_as_done = 1, marked_as_done_by = ? WHERE id = ?`, nullString(by), taskID)
	if err != nil {
		return store.WrapOp("mark task done", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		if err == nil {
			err = store.ErrNotFound
		}
		return store.WrapOp("mark task done", err)
	}
	return nil
}

// CreateInviteCode implements store.Seeder.
func (s *Store) CreateInviteCode(ctx context.Context, c store.InviteCode) error {
	_, err := s.exec(ctx, `INSERT INTO group_invite_codes (code, group_id, created_at) VALUES (?, ?, ?)`,
		c.Code, c.GroupID, millis(c.CreatedAt))
	return store.WrapOp("create invite code", err)
}

// CreatePet implements store.Seeder.
func (s *Store) CreatePet(ctx context.Context, p store.Pet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.WrapOp("create pet", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.d.Rebind(`INSERT INTO pets (id, owner_id, name, date_of_birth) VALUES (?, ?, ?, ?)`),
		p.ID, p.OwnerID, p.Name, nullString(p.DateOfBirth)); err != nil {
		return store.WrapOp("create pet", err)
	}
	for _, g := range p.GroupIDs {
		if _, err := tx.ExecContext(ctx, s.d.Rebind(`INSERT INTO pet_groups (pet_id, group_id) VALUES (?, ?)
			ON CONFLICT (pet_id, group_id) DO NOTHING`), p.ID, g); err != nil {
			return store.WrapOp("create pet", err)
		}
	}
	return store.WrapOp("create pet", tx.Commit())
}

// DeletePet implements store.Seeder.
func (s *Store) DeletePet(ctx context.Context, petID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.WrapOp("delete pet", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.d.Rebind(`DELETE FROM pet_groups WHERE pet_id = ?`), petID); err != nil {
		return store.WrapOp("delete pet", err)
	}
	if _, err := tx.ExecContext(ctx, s.d.Rebind(`DELETE FROM pets WHERE id = ?`), petID); err != nil {
		return store.WrapOp("delete pet", err)
	}
	return store.WrapOp("delete pet", tx.Commit())
}

// AddGroupMember implements store.Seeder.
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.exec(ctx, `INSERT INTO group_members (group_id, user_id) VALUES (?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID)
	return store.WrapOp("add group member", err)
}

// CreateImage implements store.Seeder.
func (s *Store) CreateImage(ctx context.Context, img store.Image) error {
	_, err := s.exec(ctx, `INSERT INTO images (id, storage_key, task_id, pet_id, uploaded_at, storage_deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.StorageKey, nullString(img.TaskID), nullString(img.PetID),
		millis(img.UploadedAt), nullMillis(img.StorageDeletedAt))
	return store.WrapOp("create image", err)
}

// ListNotifications implements store.Seeder.
func (s *Store) ListNotifications(ctx context.Context, recipientID string) ([]store.Notification, error) {
	rows, err := s.query(ctx, `SELECT id, recipient_id, idempotency_key, payload, is_read, created_at
		FROM notifications WHERE recipient_id = ? ORDER BY created_at, id`, recipientID)
	if err != nil {
		return nil, store.WrapOp("list notifications", err)
	}
	defer rows.Close()

	var out []store.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, store.WrapOp("list notifications", err)
		}
		out = append(out, n)
	}
	return out, store.WrapOp("list notifications", rows.Err())
}

// ListInviteCodes implements store.Seeder.
func (s *Store) ListInviteCodes(ctx context.Context) ([]store.InviteCode, error) {
	rows, err := s.query(ctx, `SELECT code, group_id, created_at FROM group_invite_codes ORDER BY code`)
	if err != nil {
		return nil, store.WrapOp("list invite codes", err)
	}
	defer rows.Close()

	var out []store.InviteCode
	for rows.Next() {
		var (
			c  store.InviteCode
			ms int64
		)
		if err := rows.Scan(&c.Code, &c.GroupID, &ms); err != nil {
			return nil, store.WrapOp("list invite codes", err)
		}
		c.CreatedAt = fromMillis(ms)
		out = append(out, c)
	}
	return out, store.WrapOp("list invite codes", rows.Err())
}

// GetImage implements store.Seeder.
func (s *Store) GetImage(ctx context.Context, id string) (store.Image, error) {
	img, err := scanImage(s.queryRow(ctx, `SELECT `+imageColumns+` FROM images i WHERE i.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Image{}, store.WrapOp("get image", store.ErrNotFound)
	}
	return img, store.WrapOp("get image", err)
}
