package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/sitterd/internal/store"
)

// BirthdayJob wishes every viewer of a pet a happy birthday on the pet's
// birthday.
//
// "Today" is the calendar date of Now in Location. Pets born on February 29
// are celebrated on February 28 in non-leap years. Notifications are keyed
// on "pet:<id>:birthday:<date>", so re-running the job on the same day
// creates nothing new.
type BirthdayJob struct {
	Pets       store.PetStore
	Dispatcher Dispatcher
	Now        func() time.Time
	Location   *time.Location
	Logger     *slog.Logger
	Workers    int
}

var _ Job = (*BirthdayJob)(nil)

// Name implements Job.
func (*BirthdayJob) Name() string { return JobNotifyPetBirthdays }

// CountKey implements Job.
func (*BirthdayJob) CountKey() string { return "notifiedCount" }

// Today returns the calendar date the job considers current.
func (j *BirthdayJob) Today() time.Time {
	loc := j.Location
	if loc == nil {
		loc = time.UTC
	}
	now := j.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

// Run implements Job. Count is the number of notifications created.
func (j *BirthdayJob) Run(ctx context.Context) (Result, error) {
	today := j.Today()

	pets, err := j.Pets.ListPetsBornOn(ctx, today.Month(), today.Day())
	if err != nil {
		return Result{}, fmt.Errorf("maintenance: list pets born on %s: %w", today.Format("01-02"), err)
	}
	if isLeapDayStandIn(today) {
		leap, err := j.Pets.ListPetsBornOn(ctx, time.February, 29)
		if err != nil {
			return Result{}, fmt.Errorf("maintenance: list pets born on 02-29: %w", err)
		}
		pets = append(pets, leap...)
	}

	date := today.Format(store.DateLayout)
	var t tally
	err = forEach(ctx, j.Workers, pets, func(ctx context.Context, pet store.Pet) {
		created, err := j.notify(ctx, pet, date)
		if created > 0 {
			t.add(int64(created))
		} else if err == nil {
			t.skip()
		}
		if err != nil {
			j.Logger.Error("birthday notification failed", "pet", pet.ID, "error", err)
			t.fail("pet", pet.ID, err)
		}
	})

	res := Result{Scanned: len(pets)}
	t.fill(&res)
	if err != nil {
		return res, fmt.Errorf("maintenance: notify pet birthdays: %w", err)
	}
	return res, nil
}

func (j *BirthdayJob) notify(ctx context.Context, pet store.Pet, date string) (int, error) {
	viewers, err := j.Pets.ListPetViewerIDs(ctx, pet.ID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between the scan and now.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list viewers: %w", err)
	}

	payload := store.Payload{
		Kind:      store.KindPetBirthday,
		SubjectID: pet.ID,
		Title:     fmt.Sprintf("Happy birthday, %s!", pet.Name),
		Data: map[string]string{
			"pet_id":        pet.ID,
			"date":          date,
			"date_of_birth": pet.DateOfBirth,
		},
	}
	if dob, err := pet.Birthday(); err == nil {
		if age := ageOn(dob, date); age > 0 {
			payload.Body = fmt.Sprintf("%s turns %d today.", pet.Name, age)
		}
	}

	key := "pet:" + pet.ID + ":birthday:" + date
	var (
		created int
		errs    []error
	)
	for _, v := range viewers {
		out, err := j.Dispatcher.Dispatch(ctx, v, payload, key)
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

// isLeapDayStandIn reports whether day is February 28 of a non-leap year.
func isLeapDayStandIn(day time.Time) bool {
	if day.Month() != time.February || day.Day() != 28 {
		return false
	}
	y := day.Year()
	leap := y%4 == 0 && (y%100 != 0 || y%400 == 0)
	return !leap
}

// ageOn returns the age in whole years at the given date.
func ageOn(dob time.Time, date string) int {
	d, err := time.Parse(store.DateLayout, date)
	if err != nil {
		return 0
	}
	return d.Year() - dob.Year()
}
