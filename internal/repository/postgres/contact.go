package postgres

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

var _ repository.ContactRepository = (*ContactRepository)(nil)

type ContactRepository struct {
	db DBTX
}

func NewContactRepository(db DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id, user_id, first_name, last_name, email, phone_number, birthday, additional_data, created_at, updated_at`

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	c.ID = xid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `INSERT INTO contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.PhoneNumber,
		c.Birthday, c.AdditionalData, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ContactExists()
		}
		return fmt.Errorf("postgres: creating contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) GetByID(ctx context.Context, ownerID, id string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`

	c, err := scanContact(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("contact", id)
		}
		return nil, fmt.Errorf("postgres: getting contact %s: %w", id, err)
	}
	return c, nil
}

func (r *ContactRepository) List(ctx context.Context, ownerID string, opts repository.ListOptions) ([]model.Contact, error) {
	opts = opts.Normalize()

	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE user_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, ownerID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows)
}

func (r *ContactRepository) Search(ctx context.Context, ownerID, q string) ([]model.Contact, error) {
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"

	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE user_id = $1
		  AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2)
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID, pattern)
	if err != nil {
		return nil, fmt.Errorf("postgres: searching contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows)
}

func (r *ContactRepository) Update(ctx context.Context, c *model.Contact) error {
	c.UpdatedAt = time.Now().UTC()

	query := `UPDATE contacts
		SET first_name = $1, last_name = $2, email = $3, phone_number = $4,
		    birthday = $5, additional_data = $6, updated_at = $7
		WHERE id = $8 AND user_id = $9`

	res, err := r.db.ExecContext(ctx, query,
		c.FirstName, c.LastName, c.Email, c.PhoneNumber,
		c.Birthday, c.AdditionalData, c.UpdatedAt, c.ID, c.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ContactExists()
		}
		return fmt.Errorf("postgres: updating contact %s: %w", c.ID, err)
	}
	return checkAffected(res, c.ID)
}

func (r *ContactRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM contacts WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: deleting contact %s: %w", id, err)
	}
	return checkAffected(res, id)
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("contact", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var (
		c     model.Contact
		extra sql.NullString
	)
	if err := row.Scan(
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
		&c.Birthday, &extra, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Birthday = c.Birthday.UTC()
	if extra.Valid {
		c.AdditionalData = &extra.String
	}
	return &c, nil
}

func collectContacts(rows *sql.Rows) ([]model.Contact, error) {
	out := make([]model.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning contact row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating contacts: %w", err)
	}
	return out, nil
}
