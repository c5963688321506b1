// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the authorization level of an identity.
//
// It is a closed set: new levels are added as new constants, never by
// comparing free-form strings at call sites.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered account (an identity).
//
// Token fields use the empty string for "absent"; the repositories store
// them as NULL so that lookups by token never match a cleared value.
//
// PasswordHash, VerificationToken and ResetToken are excluded from JSON so
// they can never leak through an API response.
type User struct {
	ID                string    `json:"id"        db:"id"`
	Email             string    `json:"email"     db:"email"`
	PasswordHash      string    `json:"-"         db:"hashed_password"`
	Verified          bool      `json:"verified"  db:"verified"`
	VerificationToken string    `json:"-"         db:"verification_token"`
	ResetToken        string    `json:"-"         db:"reset_token"`
	Role              Role      `json:"role"      db:"role"`
	AvatarURL         string    `json:"avatar"    db:"avatar_url"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// IdentitySnapshot is the denormalized copy of a User kept in the identity
// cache. The store stays the source of truth; a snapshot may be stale until
// it expires or is invalidated.
type IdentitySnapshot struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Verified  bool   `json:"verified"`
	Role      Role   `json:"role"`
}

// SnapshotOf projects the cached fields of u.
func SnapshotOf(u *User) IdentitySnapshot {
	return IdentitySnapshot{
		ID:        u.ID,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Verified:  u.Verified,
		Role:      u.Role,
	}
}
