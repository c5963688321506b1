package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

var _ repository.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	db DBTX
}

// NewUserRepository builds a repository over any DBTX, a transaction
// included.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, hashed_password, verified, verification_token, reset_token, role, avatar_url, created_at, updated_at`

func (r *UserRepository) Insert(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Verified,
		nullable(user.VerificationToken), nullable(user.ResetToken),
		string(user.Role), user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateEmail()
		}
		return fmt.Errorf("postgres: inserting user: %w", err)
	}
	return nil
}

func (r *UserRepository) SetVerificationToken(ctx context.Context, id, token string) error {
	query := `UPDATE users SET verification_token = $1, updated_at = $2
		WHERE id = $3 AND NOT verified`
	return r.execOne(ctx, "setting verification token", id, query, nullable(token), time.Now().UTC(), id)
}

// RedeemVerificationToken clears the token in the statement that matches
// it; a concurrent second redemption finds no row.
func (r *UserRepository) RedeemVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "verification token")
	}
	query := `UPDATE users SET verified = TRUE, verification_token = NULL, updated_at = $1
		WHERE verification_token = $2`
	return r.updateReturning(ctx, "redeeming verification token", "verification token", query, time.Now().UTC(), token)
}

func (r *UserRepository) SetResetToken(ctx context.Context, id, token string) error {
	query := `UPDATE users SET reset_token = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, "setting reset token", id, query, nullable(token), time.Now().UTC(), id)
}

func (r *UserRepository) RedeemResetToken(ctx context.Context, token, passwordHash string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "reset token")
	}
	query := `UPDATE users SET hashed_password = $1, reset_token = NULL, updated_at = $2
		WHERE reset_token = $3`
	return r.updateReturning(ctx, "redeeming reset token", "reset token", query, passwordHash, time.Now().UTC(), token)
}

func (r *UserRepository) SetAvatar(ctx context.Context, id, url string) (*model.User, error) {
	query := `UPDATE users SET avatar_url = $1, updated_at = $2 WHERE id = $3`
	return r.updateReturning(ctx, "setting avatar", id, query, url, time.Now().UTC(), id)
}

func (r *UserRepository) SetRole(ctx context.Context, id string, role model.Role) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, "setting role", id, query, string(role), time.Now().UTC(), id)
}

func (r *UserRepository) execOne(ctx context.Context, op, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: %s for user %s: %w", op, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (r *UserRepository) updateReturning(ctx context.Context, op, label, query string, args ...any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query+` RETURNING `+userColumns, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", label)
		}
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "id", id, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email", email, email)
}

func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "verification token")
	}
	return r.findOne(ctx, "verification_token", token, "verification token")
}

func (r *UserRepository) FindByResetToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "reset token")
	}
	return r.findOne(ctx, "reset_token", token, "reset token")
}

// findOne runs a single-row lookup. label replaces the value in errors so
// tokens never end up in logs.
func (r *UserRepository) findOne(ctx context.Context, column, value, label string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", label)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", column, err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u           model.User
		role        string
		verifyToken sql.NullString
		resetToken  sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Verified,
		&verifyToken, &resetToken, &role, &u.AvatarURL,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.VerificationToken = verifyToken.String
	u.ResetToken = resetToken.String
	return &u, nil
}
