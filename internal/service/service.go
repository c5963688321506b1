// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take interfaces (repository.UserRepository, IdentityCache,
// notify.Notifier, blob.Uploader) and return domain errors from apperror.
// They know nothing about HTTP.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
)

// IdentityCache is the best-effort snapshot cache. *cache.IdentityCache
// implements it; none of its methods can fail from the caller's view.
type IdentityCache interface {
	Get(ctx context.Context, id string) (*model.IdentitySnapshot, bool)
	Put(ctx context.Context, id string, snap model.IdentitySnapshot, ttl time.Duration)
	Invalidate(ctx context.Context, id string)
	PutResetToken(ctx context.Context, email, token string, ttl time.Duration)
	ResetToken(ctx context.Context, email string) (string, bool)
	InvalidateResetToken(ctx context.Context, email string)
}

// newOpaqueToken returns a fresh single-use token (UUID v4).
func newOpaqueToken() string {
	return uuid.NewString()
}

// RequireRole returns user unchanged if it holds role.
func RequireRole(user *model.User, role model.Role) (*model.User, error) {
	if user == nil {
		return nil, apperror.Unauthenticated()
	}
	if user.Role != role {
		return nil, apperror.Forbidden("Admin access required")
	}
	return user, nil
}
