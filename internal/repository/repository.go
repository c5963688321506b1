// Package repository declares the persistence ports. The sqlite and
// postgres subpackages implement them; services depend only on these
// interfaces.
package repository

import (
	"context"

	"github.com/sakif/contacts-api/internal/model"
)

// MaxPageSize caps ListOptions.Limit.
const MaxPageSize = 100

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options into the accepted range. A non-positive
// limit selects MaxPageSize.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// UserRepository is the credential store. It is the source of truth for
// identities; every lookup returns an error wrapping apperror.ErrNotFound
// when nothing matches.
//
// Token lookups never match an empty token.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*model.User, error)
	FindByResetToken(ctx context.Context, token string) (*model.User, error)

	// Insert assigns ID and timestamps. A taken email fails with
	// apperror.ErrDuplicateEmail.
	Insert(ctx context.Context, user *model.User) error

	// The mutations below are single conditional UPDATE statements that
	// touch only the columns they name. Two concurrent requests can never
	// undo each other's writes, and a token is cleared by the same
	// statement that checks it.

	// SetVerificationToken replaces the pending verification token of an
	// unverified identity. A missing or already verified identity is
	// apperror.ErrNotFound.
	SetVerificationToken(ctx context.Context, id, token string) error

	// RedeemVerificationToken marks the holder of token verified and clears
	// the token, returning the updated identity. At most one caller wins for
	// a given token; the others get apperror.ErrNotFound.
	RedeemVerificationToken(ctx context.Context, token string) (*model.User, error)

	// SetResetToken stores token as the identity's only valid reset token.
	SetResetToken(ctx context.Context, id, token string) error

	// RedeemResetToken replaces the password hash of the holder of token
	// and clears the token. At most one caller wins for a given token; the
	// others get apperror.ErrNotFound.
	RedeemResetToken(ctx context.Context, token, passwordHash string) (*model.User, error)

	// SetAvatar stores the avatar URL and returns the updated identity.
	SetAvatar(ctx context.Context, id, url string) (*model.User, error)

	// SetRole changes the authorization level of an identity.
	SetRole(ctx context.Context, id string, role model.Role) error
}

// ContactRepository stores address book entries. Every method is scoped by
// the owning user's ID.
type ContactRepository interface {
	Create(ctx context.Context, contact *model.Contact) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Contact, error)
	List(ctx context.Context, ownerID string, opts ListOptions) ([]model.Contact, error)
	Search(ctx context.Context, ownerID, query string) ([]model.Contact, error)
	Update(ctx context.Context, contact *model.Contact) error
	Delete(ctx context.Context, ownerID, id string) error
}
