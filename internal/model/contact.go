package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire and storage format of Contact.Birthday.
const DateLayout = "2006-01-02"

// Contact is an address book entry owned by exactly one user.
//
// Every repository query is scoped by UserID, so one user can never read or
// change another user's contacts.
type Contact struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	PhoneNumber    string    `json:"phone_number"`
	Birthday       time.Time `json:"-"`
	AdditionalData *string   `json:"additional_data"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// BirthdayString formats Birthday as YYYY-MM-DD.
func (c *Contact) BirthdayString() string {
	return c.Birthday.Format(DateLayout)
}

// NextBirthday returns the first anniversary of Birthday on or after the
// calendar day of now. Feb 29 birthdays fall on Mar 1 in non-leap years.
func (c *Contact) NextBirthday(now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := time.Date(today.Year(), c.Birthday.Month(), c.Birthday.Day(), 0, 0, 0, 0, time.UTC)
	if next.Before(today) {
		next = time.Date(today.Year()+1, c.Birthday.Month(), c.Birthday.Day(), 0, 0, 0, 0, time.UTC)
	}
	return next
}

// MarshalJSON renders Birthday as a plain date.
func (c Contact) MarshalJSON() ([]byte, error) {
	type contact Contact
	return json.Marshal(struct {
		contact
		Birthday string `json:"birthday"`
	}{contact: contact(c), Birthday: c.BirthdayString()})
}
