package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

var _ repository.ContactRepository = (*ContactDB)(nil)

// ContactDB is the address book view of DB.
type ContactDB struct {
	conn *sql.DB
}

const contactColumns = `id, user_id, first_name, last_name, email, phone_number,
	birthday, additional_data, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts contact for contact.UserID and sets its ID and timestamps.
func (c *ContactDB) Create(ctx context.Context, contact *model.Contact) error {
	contact.ID = xid.New().String()
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contact.ID,
		contact.UserID,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		contact.BirthdayString(),
		contact.AdditionalData,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ContactExists()
		}
		return fmt.Errorf("sqlite: creating contact: %w", err)
	}

	return nil
}

// GetByID returns the contact only if ownerID owns it. Someone else's
// contact is indistinguishable from a missing one.
func (c *ContactDB) GetByID(ctx context.Context, ownerID, id string) (*model.Contact, error) {
	row := c.conn.QueryRowContext(ctx,
		`SELECT `+contactColumns+`
		 FROM contacts
		 WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)

	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("contact", id)
		}
		return nil, fmt.Errorf("sqlite: getting contact %s: %w", id, err)
	}

	return contact, nil
}

// List returns one page of ownerID's contacts, oldest first.
func (c *ContactDB) List(ctx context.Context, ownerID string, opts repository.ListOptions) ([]model.Contact, error) {
	opts = opts.Normalize()

	rows, err := c.conn.QueryContext(ctx,
		`SELECT `+contactColumns+`
		 FROM contacts
		 WHERE user_id = ?
		 ORDER BY created_at, id
		 LIMIT ? OFFSET ?`,
		ownerID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows, opts.Limit)
}

// Search matches query against first name, last name or email,
// case-insensitively.
func (c *ContactDB) Search(ctx context.Context, ownerID, query string) ([]model.Contact, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	rows, err := c.conn.QueryContext(ctx,
		`SELECT `+contactColumns+`
		 FROM contacts
		 WHERE user_id = ?
		   AND (LOWER(first_name) LIKE ? ESCAPE '\'
		     OR LOWER(last_name)  LIKE ? ESCAPE '\'
		     OR LOWER(email)      LIKE ? ESCAPE '\')
		 ORDER BY created_at, id`,
		ownerID, pattern, pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows, 0)
}

// Update replaces every editable field of contact. The WHERE clause includes
// the owner, so a foreign contact reports not found.
func (c *ContactDB) Update(ctx context.Context, contact *model.Contact) error {
	contact.UpdatedAt = time.Now().UTC()

	result, err := c.conn.ExecContext(ctx,
		`UPDATE contacts
		 SET first_name = ?, last_name = ?, email = ?, phone_number = ?,
		     birthday = ?, additional_data = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		contact.BirthdayString(),
		contact.AdditionalData,
		contact.UpdatedAt,
		contact.ID,
		contact.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ContactExists()
		}
		return fmt.Errorf("sqlite: updating contact %s: %w", contact.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("contact", contact.ID)
	}

	return nil
}

func (c *ContactDB) Delete(ctx context.Context, ownerID, id string) error {
	result, err := c.conn.ExecContext(ctx,
		`DELETE FROM contacts WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting contact %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("contact", id)
	}

	return nil
}

func collectContacts(rows *sql.Rows, capHint int) ([]model.Contact, error) {
	contacts := make([]model.Contact, 0, capHint)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning contact row: %w", err)
		}
		contacts = append(contacts, *contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating contacts: %w", err)
	}
	return contacts, nil
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var (
		contact  model.Contact
		birthday string
		extra    sql.NullString
	)
	err := row.Scan(
		&contact.ID,
		&contact.UserID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.PhoneNumber,
		&birthday,
		&extra,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	contact.Birthday, err = time.Parse(model.DateLayout, birthday)
	if err != nil {
		return nil, fmt.Errorf("parsing birthday %q: %w", birthday, err)
	}
	if extra.Valid {
		contact.AdditionalData = &extra.String
	}
	return &contact, nil
}

// escapeLike escapes the LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
