package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/blob"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// UserService owns profile mutations.
type UserService struct {
	users    repository.UserRepository
	uploader blob.Uploader
	cache    IdentityCache
	logger   *slog.Logger
}

func NewUserService(users repository.UserRepository, uploader blob.Uploader, cache IdentityCache, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		uploader: uploader,
		cache:    cache,
		logger:   logger,
	}
}

// AvatarKey is the object key the avatar of userID is stored under.
func AvatarKey(userID string) string {
	return "avatars/" + userID
}

// UpdateAvatar uploads file as actor's avatar and stores the returned URL.
//
// Only admins may change avatars. The upload happens before any write, so
// a failed upload leaves the identity untouched.
func (s *UserService) UpdateAvatar(ctx context.Context, actor *model.User, file io.Reader, contentType string) (*model.User, error) {
	if _, err := RequireRole(actor, model.RoleAdmin); err != nil {
		return nil, err
	}

	url, err := s.uploader.Upload(ctx, file, AvatarKey(actor.ID), contentType)
	if err != nil {
		s.logger.Error("avatar upload failed",
			slog.String("userID", actor.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.UploadFailed(err)
	}

	// only the avatar column is written, so a password reset committed
	// during the upload is kept
	user, err := s.users.SetAvatar(ctx, actor.ID, url)
	if err != nil {
		return nil, fmt.Errorf("service/user: saving avatar for %s: %w", actor.ID, err)
	}

	s.cache.Invalidate(ctx, user.ID)

	s.logger.Info("avatar updated", slog.String("userID", user.ID))
	return user, nil
}
