package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

func newTestContactDB(t *testing.T) (*ContactDB, *model.User) {
	t.Helper()
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@x.com")
	return db.Contacts(), owner
}

func createTestContact(t *testing.T, c *ContactDB, ownerID, first, last, email string) *model.Contact {
	t.Helper()
	contact := &model.Contact{
		UserID:      ownerID,
		FirstName:   first,
		LastName:    last,
		Email:       email,
		PhoneNumber: "+15550100",
		Birthday:    time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC),
	}
	if err := c.Create(context.Background(), contact); err != nil {
		t.Fatalf("failed to create test contact: %v", err)
	}
	return contact
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestContactCreate_VerifyPersistence(t *testing.T) {
	c, owner := newTestContactDB(t)
	note := "met at conference"

	contact := &model.Contact{
		UserID:         owner.ID,
		FirstName:      "John",
		LastName:       "Doe",
		Email:          "john.doe@example.com",
		PhoneNumber:    "1234567890",
		Birthday:       time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
		AdditionalData: &note,
	}
	if err := c.Create(context.Background(), contact); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if contact.ID == "" {
		t.Fatal("Create() did not set contact.ID")
	}

	found, err := c.GetByID(context.Background(), owner.ID, contact.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Email != "john.doe@example.com" {
		t.Errorf("Email = %q, want %q", found.Email, "john.doe@example.com")
	}
	if found.BirthdayString() != "1990-01-01" {
		t.Errorf("Birthday = %q, want %q", found.BirthdayString(), "1990-01-01")
	}
	if found.AdditionalData == nil || *found.AdditionalData != note {
		t.Errorf("AdditionalData = %v, want %q", found.AdditionalData, note)
	}
}

func TestContactCreate_DuplicateEmailPerOwner(t *testing.T) {
	c, owner := newTestContactDB(t)
	createTestContact(t, c, owner.ID, "A", "B", "dup@x.com")

	err := c.Create(context.Background(), &model.Contact{
		UserID: owner.ID, FirstName: "C", LastName: "D", Email: "dup@x.com",
		Birthday: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}

func TestContactGetByID_OtherOwnerIsNotFound(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db.Users(), "alice@x.com")
	bob := createTestUser(t, db.Users(), "bob@x.com")
	c := db.Contacts()

	contact := createTestContact(t, c, alice.ID, "A", "B", "ab@x.com")

	_, err := c.GetByID(context.Background(), bob.ID, contact.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetByID() as non-owner error = %v, want ErrNotFound", err)
	}
	if err := c.Delete(context.Background(), bob.ID, contact.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Delete() as non-owner error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestContactList_Pagination(t *testing.T) {
	c, owner := newTestContactDB(t)
	for i := 0; i < 5; i++ {
		createTestContact(t, c, owner.ID, "First", "Last", fmt.Sprintf("contact%d@example.com", i))
	}
	ctx := context.Background()

	page1, err := c.List(ctx, owner.ID, repository.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List() page 1 error = %v", err)
	}
	page3, err := c.List(ctx, owner.ID, repository.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() page 3 error = %v", err)
	}
	all, err := c.List(ctx, owner.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() default error = %v", err)
	}

	if len(page1) != 2 {
		t.Errorf("Page 1: got %d items, want 2", len(page1))
	}
	if len(page3) != 1 {
		t.Errorf("Page 3: got %d items, want 1", len(page3))
	}
	if len(all) != 5 {
		t.Errorf("default limit returned %d items, want 5", len(all))
	}
}

func TestContactList_ScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db.Users(), "alice@x.com")
	bob := createTestUser(t, db.Users(), "bob@x.com")
	c := db.Contacts()

	createTestContact(t, c, alice.ID, "A", "A", "a1@x.com")
	createTestContact(t, c, bob.ID, "B", "B", "b1@x.com")

	got, err := c.List(context.Background(), bob.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Email != "b1@x.com" {
		t.Errorf("List() = %+v, want only bob's contact", got)
	}
}

// =========================================================================
// SEARCH TESTS
// =========================================================================

func TestContactSearch(t *testing.T) {
	c, owner := newTestContactDB(t)
	createTestContact(t, c, owner.ID, "John", "Doe", "john@example.com")
	createTestContact(t, c, owner.ID, "Jane", "Smith", "jane@example.com")
	createTestContact(t, c, owner.ID, "Bob", "Johnson", "bob@test.com")

	tests := []struct {
		query string
		want  int
	}{
		{"john", 2},     // first name John + last name Johnson
		{"SMITH", 1},    // case-insensitive
		{"test.com", 1}, // email
		{"zzz", 0},
		{"%", 0}, // wildcard matched literally
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := c.Search(context.Background(), owner.ID, tt.query)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Search(%q) returned %d contacts, want %d", tt.query, len(got), tt.want)
			}
		})
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestContactUpdate(t *testing.T) {
	c, owner := newTestContactDB(t)
	contact := createTestContact(t, c, owner.ID, "John", "Doe", "john@example.com")
	ctx := context.Background()

	contact.FirstName = "Jonathan"
	contact.Email = "updated@example.com"
	if err := c.Update(ctx, contact); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := c.GetByID(ctx, owner.ID, contact.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.FirstName != "Jonathan" || found.Email != "updated@example.com" {
		t.Errorf("after Update() got %s / %s", found.FirstName, found.Email)
	}
}

func TestContactUpdate_NotFound(t *testing.T) {
	c, owner := newTestContactDB(t)

	err := c.Update(context.Background(), &model.Contact{ID: "nope", UserID: owner.ID})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestContactDelete(t *testing.T) {
	c, owner := newTestContactDB(t)
	contact := createTestContact(t, c, owner.ID, "John", "Doe", "john@example.com")
	ctx := context.Background()

	if err := c.Delete(ctx, owner.ID, contact.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := c.GetByID(ctx, owner.ID, contact.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := c.Delete(ctx, owner.ID, contact.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
