package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contacts-api/internal/apperror"
)

func newContactFixture(now time.Time) (*ContactService, *fakeContactRepo) {
	repo := newFakeContactRepo()
	svc := NewContactService(repo, testLogger())
	svc.now = func() time.Time { return now }
	return svc, repo
}

func input(first, last, email string, birthday time.Time) ContactInput {
	return ContactInput{
		FirstName:   first,
		LastName:    last,
		Email:       email,
		PhoneNumber: "+15550100",
		Birthday:    birthday,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =========================================================================
// CRUD TESTS
// =========================================================================

func TestContactCreate_Validation(t *testing.T) {
	svc, _ := newContactFixture(time.Now())
	ctx := context.Background()
	bday := date(1990, 1, 1)

	tests := []struct {
		name  string
		in    ContactInput
		field string
	}{
		{"missing first name", input("  ", "Doe", "j@x.com", bday), "first_name"},
		{"missing last name", input("John", "", "j@x.com", bday), "last_name"},
		{"missing email", input("John", "Doe", "", bday), "email"},
		{"missing birthday", input("John", "Doe", "j@x.com", time.Time{}), "birthday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "u1", tt.in)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr), "error = %v", err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestContactCRUD_OwnerScoped(t *testing.T) {
	svc, _ := newContactFixture(time.Now())
	ctx := context.Background()

	c, err := svc.Create(ctx, "alice", input(" John ", "Doe", "j@x.com", date(1990, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, "John", c.FirstName)
	assert.Equal(t, "alice", c.UserID)

	_, err = svc.Get(ctx, "bob", c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Update(ctx, "bob", c.ID, input("X", "Y", "x@y.com", date(1990, 1, 1)))
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Delete(ctx, "bob", c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	updated, err := svc.Update(ctx, "alice", c.ID, input("Jonathan", "Doe", "j@x.com", date(1990, 1, 2)))
	require.NoError(t, err)
	assert.Equal(t, "Jonathan", updated.FirstName)
	assert.Equal(t, "1990-01-02", updated.BirthdayString())

	deleted, err := svc.Delete(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jonathan", deleted.FirstName)

	_, err = svc.Get(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestContactCreate_DuplicateEmail(t *testing.T) {
	svc, _ := newContactFixture(time.Now())
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", input("A", "B", "dup@x.com", date(1990, 1, 1)))
	require.NoError(t, err)

	_, err = svc.Create(ctx, "alice", input("C", "D", "dup@x.com", date(1990, 1, 1)))
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// a different owner may hold the same address
	_, err = svc.Create(ctx, "bob", input("C", "D", "dup@x.com", date(1990, 1, 1)))
	assert.NoError(t, err)
}

func TestContactList_Pagination(t *testing.T) {
	svc, _ := newContactFixture(time.Now())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, "alice", input("F", "L", fmt.Sprintf("c%d@x.com", i), date(1990, 1, 1)))
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, "alice", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1@x.com", "c2@x.com"}, []string{page[0].Email, page[1].Email})

	all, err := svc.List(ctx, "alice", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestContactList_RepoFailure(t *testing.T) {
	svc, repo := newContactFixture(time.Now())
	repo.listErr = errors.New("db down")

	_, err := svc.List(context.Background(), "alice", 0, 10)
	assert.Error(t, err)
}

func TestContactSearch(t *testing.T) {
	svc, _ := newContactFixture(time.Now())
	ctx := context.Background()
	for _, c := range []ContactInput{
		input("John", "Doe", "john@example.com", date(1990, 1, 1)),
		input("Jane", "Smith", "jane@example.com", date(1990, 1, 1)),
		input("Bob", "Johnson", "bob@test.com", date(1990, 1, 1)),
	} {
		_, err := svc.Create(ctx, "alice", c)
		require.NoError(t, err)
	}

	got, err := svc.Search(ctx, "alice", "JOHN")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@test.com", "john@example.com"}, sortedEmails(got))

	_, err = svc.Search(ctx, "alice", "   ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// BIRTHDAY TESTS
// =========================================================================

func TestUpcomingBirthdays(t *testing.T) {
	// Dec 28: the window wraps into January.
	svc, _ := newContactFixture(time.Date(2026, time.December, 28, 15, 30, 0, 0, time.UTC))
	ctx := context.Background()

	for _, c := range []ContactInput{
		input("Today", "X", "today@x.com", date(1980, 12, 28)),
		input("Wrap", "X", "wrap@x.com", date(1975, 1, 3)),
		input("Edge", "X", "edge@x.com", date(2001, 1, 4)), // exactly 7 days out
		input("Late", "X", "late@x.com", date(1990, 1, 5)),
		input("Past", "X", "past@x.com", date(1990, 12, 27)),
	} {
		_, err := svc.Create(ctx, "alice", c)
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "bob", input("Other", "Owner", "o@x.com", date(1990, 12, 29)))
	require.NoError(t, err)

	got, err := svc.UpcomingBirthdays(ctx, "alice")
	require.NoError(t, err)

	emails := make([]string, 0, len(got))
	for _, c := range got {
		emails = append(emails, c.Email)
	}
	assert.Equal(t, []string{"today@x.com", "wrap@x.com", "edge@x.com"}, emails)
}

func TestUpcomingBirthdays_LeapDay(t *testing.T) {
	// 2027 is not a leap year, so Feb 29 birthdays land on Mar 1.
	svc, _ := newContactFixture(time.Date(2027, time.February, 25, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", input("Leap", "X", "leap@x.com", date(2000, 2, 29)))
	require.NoError(t, err)

	got, err := svc.UpcomingBirthdays(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestUpcomingBirthdays_PagesThroughEverything(t *testing.T) {
	svc, _ := newContactFixture(time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// 150 contacts span two repository pages; the last one has the birthday.
	for i := 0; i < 150; i++ {
		bday := date(1990, 1, 1)
		if i == 149 {
			bday = date(1990, 6, 2)
		}
		_, err := svc.Create(ctx, "alice", input("F", "L", fmt.Sprintf("c%d@x.com", i), bday))
		require.NoError(t, err)
	}

	got, err := svc.UpcomingBirthdays(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c149@x.com", got[0].Email)
}
