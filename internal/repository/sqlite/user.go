package sqlite

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

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the credential store view of DB.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, email, hashed_password, verified, verification_token,
	reset_token, role, avatar_url, created_at, updated_at`

// Insert creates a new identity. ID, CreatedAt and UpdatedAt are set on user.
//
// The UNIQUE constraint on email is the only duplicate check: two concurrent
// signups for the same address race to the constraint and exactly one wins.
func (u *UserDB) Insert(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Verified,
		nullable(user.VerificationToken),
		nullable(user.ResetToken),
		string(user.Role),
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateEmail()
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

func (u *UserDB) SetVerificationToken(ctx context.Context, id, token string) error {
	return u.execOne(ctx, "setting verification token", id,
		`UPDATE users SET verification_token = ?, updated_at = ?
		 WHERE id = ? AND verified = 0`,
		nullable(token), time.Now().UTC(), id,
	)
}

// RedeemVerificationToken checks and clears the token in one statement, so
// of two concurrent redemptions only the first matches a row.
func (u *UserDB) RedeemVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "verification token")
	}
	return u.updateReturning(ctx, "redeeming verification token", "verification token",
		`UPDATE users SET verified = 1, verification_token = NULL, updated_at = ?
		 WHERE verification_token = ?`,
		time.Now().UTC(), token,
	)
}

func (u *UserDB) SetResetToken(ctx context.Context, id, token string) error {
	return u.execOne(ctx, "setting reset token", id,
		`UPDATE users SET reset_token = ?, updated_at = ? WHERE id = ?`,
		nullable(token), time.Now().UTC(), id,
	)
}

// RedeemResetToken is the reset counterpart of RedeemVerificationToken.
func (u *UserDB) RedeemResetToken(ctx context.Context, token, passwordHash string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "reset token")
	}
	return u.updateReturning(ctx, "redeeming reset token", "reset token",
		`UPDATE users SET hashed_password = ?, reset_token = NULL, updated_at = ?
		 WHERE reset_token = ?`,
		passwordHash, time.Now().UTC(), token,
	)
}

func (u *UserDB) SetAvatar(ctx context.Context, id, url string) (*model.User, error) {
	return u.updateReturning(ctx, "setting avatar", id,
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		url, time.Now().UTC(), id,
	)
}

func (u *UserDB) SetRole(ctx context.Context, id string, role model.Role) error {
	return u.execOne(ctx, "setting role", id,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id,
	)
}

// execOne runs an UPDATE that must hit exactly one row. RowsAffected tells
// us whether the identity matched.
func (u *UserDB) execOne(ctx context.Context, op, id, query string, args ...any) error {
	result, err := u.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s for user %s: %w", op, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// updateReturning runs an UPDATE ... RETURNING and scans the changed row.
// label stands in for the match value in errors.
func (u *UserDB) updateReturning(ctx context.Context, op, label, query string, args ...any) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx, query+` RETURNING `+userColumns, args...)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", label)
		}
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}

	return user, nil
}

func (u *UserDB) FindByID(ctx context.Context, id string) (*model.User, error) {
	return u.findOne(ctx, "id", id)
}

func (u *UserDB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.findOne(ctx, "email", email)
}

func (u *UserDB) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "verification token")
	}
	return u.findOne(ctx, "verification_token", token)
}

func (u *UserDB) FindByResetToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "reset token")
	}
	return u.findOne(ctx, "reset_token", token)
}

// findOne selects the single user whose column equals value. column is
// always one of the constants above, never caller input.
func (u *UserDB) findOne(ctx context.Context, column, value string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// tokens are secrets; keep them out of error messages
			what := value
			if column != "id" && column != "email" {
				what = column
			}
			return nil, apperror.NotFound("user", what)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}

	return user, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		user        model.User
		role        string
		verifyToken sql.NullString
		resetToken  sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Verified,
		&verifyToken,
		&resetToken,
		&role,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	user.VerificationToken = verifyToken.String
	user.ResetToken = resetToken.String
	return &user, nil
}
