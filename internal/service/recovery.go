package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/notify"
	"github.com/sakif/contacts-api/internal/repository"
)

// DefaultResetTokenTTL is how long a reset token is mirrored in the cache.
const DefaultResetTokenTTL = time.Hour

// RecoveryService runs the password reset flow:
//
//	RequestReset(email) → token stored on identity + mirrored in cache
//	ConfirmReset(token, password) → new hash, token cleared, caches dropped
type RecoveryService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	cache     IdentityCache
	notifier  notify.Notifier
	logger    *slog.Logger
	resetTTL  time.Duration
	newToken  func() string
}

func NewRecoveryService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	cache IdentityCache,
	notifier notify.Notifier,
	logger *slog.Logger,
	resetTTL time.Duration,
) *RecoveryService {
	if resetTTL <= 0 {
		resetTTL = DefaultResetTokenTTL
	}
	return &RecoveryService{
		users:     users,
		passwords: passwords,
		cache:     cache,
		notifier:  notifier,
		logger:    logger,
		resetTTL:  resetTTL,
		newToken:  newOpaqueToken,
	}
}

// RequestReset issues a reset token for a verified identity and returns it.
// Any earlier token on the identity is overwritten and stops working.
//
// The distinct UserNotFound / UserNotVerified errors are for internal
// callers. The public entry point is RequestResetQuietly.
func (s *RecoveryService) RequestReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.UserNotFound()
		}
		return "", fmt.Errorf("service/recovery: loading identity: %w", err)
	}
	if !user.Verified {
		return "", apperror.UserNotVerified()
	}

	token := s.newToken()
	if err := s.users.SetResetToken(ctx, user.ID, token); err != nil {
		return "", fmt.Errorf("service/recovery: storing reset token: %w", err)
	}

	s.cache.PutResetToken(ctx, user.Email, token, s.resetTTL)

	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return token, nil
}

// RequestResetQuietly is RequestReset for anonymous callers. It sends the
// token on success and hides whether the email exists or is verified: both
// outcomes return nil. Only internal failures are returned.
func (s *RecoveryService) RequestResetQuietly(ctx context.Context, email string) error {
	token, err := s.RequestReset(ctx, email)
	switch {
	case err == nil:
		if err := s.notifier.SendPasswordReset(ctx, email, token); err != nil {
			s.logger.Warn("failed to send reset token", slog.String("error", err.Error()))
		}
		return nil
	case errors.Is(err, apperror.ErrUserNotFound), errors.Is(err, apperror.ErrUserNotVerified):
		s.logger.Info("password reset request ignored", slog.String("reason", err.Error()))
		return nil
	default:
		return err
	}
}

// ConfirmReset redeems a reset token and sets a new password.
//
// The new password is hashed before anything is written, so a rejected
// password leaves the token usable for another attempt. The write matches
// on the token itself: of two concurrent redemptions only one succeeds.
func (s *RecoveryService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if _, err := s.users.FindByResetToken(ctx, token); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.InvalidOrExpiredToken()
		}
		return fmt.Errorf("service/recovery: looking up reset token: %w", err)
	}

	if newPassword == "" {
		return apperror.ValidationFailed("new_password", "new password is required")
	}
	hash, err := hashPassword(s.passwords, newPassword)
	if err != nil {
		return err
	}

	user, err := s.users.RedeemResetToken(ctx, token, hash)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.InvalidOrExpiredToken()
		}
		return fmt.Errorf("service/recovery: updating password: %w", err)
	}

	s.cache.InvalidateResetToken(ctx, user.Email)
	s.cache.Invalidate(ctx, user.ID)

	s.logger.Info("password reset completed", slog.String("userID", user.ID))
	return nil
}
