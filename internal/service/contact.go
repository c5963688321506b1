package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

const (
	MaxNameLength = 100
	// BirthdayWindow is how far ahead UpcomingBirthdays looks, inclusive.
	BirthdayWindow = 7 * 24 * time.Hour
)

// ContactInput carries the editable fields of a contact.
type ContactInput struct {
	FirstName      string
	LastName       string
	Email          string
	PhoneNumber    string
	Birthday       time.Time
	AdditionalData *string
}

// ContactService manages the address book of one owner at a time. Every
// method takes the owner's ID explicitly; there is no way to reach another
// owner's contacts.
type ContactService struct {
	repo   repository.ContactRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewContactService(repo repository.ContactRepository, logger *slog.Logger) *ContactService {
	return &ContactService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (in ContactInput) validate() error {
	if in.FirstName == "" {
		return apperror.ValidationFailed("first_name", "first name is required")
	}
	if len(in.FirstName) > MaxNameLength {
		return apperror.ValidationFailed("first_name",
			fmt.Sprintf("first name must be %d characters or less", MaxNameLength))
	}
	if in.LastName == "" {
		return apperror.ValidationFailed("last_name", "last name is required")
	}
	if len(in.LastName) > MaxNameLength {
		return apperror.ValidationFailed("last_name",
			fmt.Sprintf("last name must be %d characters or less", MaxNameLength))
	}
	if in.Email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if in.PhoneNumber == "" {
		return apperror.ValidationFailed("phone_number", "phone number is required")
	}
	if in.Birthday.IsZero() {
		return apperror.ValidationFailed("birthday", "birthday is required")
	}
	return nil
}

func (in ContactInput) normalized() ContactInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	y, m, d := in.Birthday.Date()
	if !in.Birthday.IsZero() {
		in.Birthday = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return in
}

func (in ContactInput) applyTo(c *model.Contact) {
	c.FirstName = in.FirstName
	c.LastName = in.LastName
	c.Email = in.Email
	c.PhoneNumber = in.PhoneNumber
	c.Birthday = in.Birthday
	c.AdditionalData = in.AdditionalData
}

// Create adds a contact to ownerID's address book.
func (s *ContactService) Create(ctx context.Context, ownerID string, in ContactInput) (*model.Contact, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}

	contact := &model.Contact{UserID: ownerID}
	in.applyTo(contact)

	if err := s.repo.Create(ctx, contact); err != nil {
		return nil, err
	}

	s.logger.Info("contact created",
		slog.String("id", contact.ID),
		slog.String("userID", ownerID),
	)
	return contact, nil
}

func (s *ContactService) Get(ctx context.Context, ownerID, id string) (*model.Contact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "contact ID is required")
	}
	return s.repo.GetByID(ctx, ownerID, id)
}

// List returns one page of contacts. limit is clamped to 1..100 and
// defaults to 100.
func (s *ContactService) List(ctx context.Context, ownerID string, skip, limit int) ([]model.Contact, error) {
	opts := repository.ListOptions{Limit: limit, Offset: skip}.Normalize()

	contacts, err := s.repo.List(ctx, ownerID, opts)
	if err != nil {
		s.logger.Error("failed to list contacts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	return contacts, nil
}

// Search matches query against first name, last name and email.
func (s *ContactService) Search(ctx context.Context, ownerID, query string) ([]model.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("query", "search query is required")
	}

	contacts, err := s.repo.Search(ctx, ownerID, query)
	if err != nil {
		return nil, fmt.Errorf("searching contacts: %w", err)
	}
	return contacts, nil
}

// Update replaces every editable field of the contact.
func (s *ContactService) Update(ctx context.Context, ownerID, id string, in ContactInput) (*model.Contact, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}

	contact, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	in.applyTo(contact)

	if err := s.repo.Update(ctx, contact); err != nil {
		return nil, err
	}

	s.logger.Info("contact updated", slog.String("id", contact.ID))
	return contact, nil
}

// Delete removes the contact and returns what was removed.
func (s *ContactService) Delete(ctx context.Context, ownerID, id string) (*model.Contact, error) {
	contact, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, ownerID, contact.ID); err != nil {
		return nil, err
	}

	s.logger.Info("contact deleted", slog.String("id", contact.ID))
	return contact, nil
}

// UpcomingBirthdays returns the contacts whose next birthday falls within
// the next seven days, today included, soonest first. The birth year is
// ignored.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, ownerID string) ([]model.Contact, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	upcoming := make([]model.Contact, 0)
	for offset := 0; ; offset += repository.MaxPageSize {
		page, err := s.repo.List(ctx, ownerID, repository.ListOptions{
			Limit:  repository.MaxPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("listing contacts for birthdays: %w", err)
		}

		for _, c := range page {
			if c.NextBirthday(today).Sub(today) <= BirthdayWindow {
				upcoming = append(upcoming, c)
			}
		}

		if len(page) < repository.MaxPageSize {
			break
		}
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].NextBirthday(today).Before(upcoming[j].NextBirthday(today))
	})
	return upcoming, nil
}
