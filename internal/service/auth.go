package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/notify"
	"github.com/sakif/contacts-api/internal/repository"
)

// DefaultAccessTokenTTL is the lifetime of tokens issued by Authenticate.
const DefaultAccessTokenTTL = 30 * time.Minute

// AuthConfig holds the AuthService tunables.
type AuthConfig struct {
	AccessTokenTTL time.Duration
	// SnapshotTTL is passed to the cache on warm-up. Zero uses the cache's
	// own default.
	SnapshotTTL time.Duration
}

// AuthService authenticates callers and runs the email verification state
// machine:
//
//	Signup → unverified + token ─┬─ VerifyEmail(token) → verified, token cleared
//	                             └─ ResendVerification → token replaced
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	cache     IdentityCache
	notifier  notify.Notifier
	logger    *slog.Logger
	cfg       AuthConfig
	newToken  func() string
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	cache IdentityCache,
	notifier notify.Notifier,
	logger *slog.Logger,
	cfg AuthConfig,
) *AuthService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		cache:     cache,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
		newToken:  newOpaqueToken,
	}
}

// ResolveIdentity maps a bearer token to the identity it was issued for.
//
// Every failure the caller could learn from (bad token, empty subject,
// unknown email) collapses into apperror.Unauthenticated. The store is read
// on every call; the cache is only warmed, never trusted.
func (s *AuthService) ResolveIdentity(ctx context.Context, bearerToken string) (*model.User, error) {
	claims, err := s.tokens.Decode(bearerToken)
	if err != nil {
		s.logger.Debug("token rejected", slog.String("error", err.Error()))
		return nil, apperror.Unauthenticated()
	}
	if claims.Subject == "" {
		return nil, apperror.Unauthenticated()
	}

	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated()
		}
		return nil, fmt.Errorf("service/auth: loading identity: %w", err)
	}

	if _, ok := s.cache.Get(ctx, user.ID); !ok {
		s.cache.Put(ctx, user.ID, model.SnapshotOf(user), s.cfg.SnapshotTTL)
	}

	return user, nil
}

// Authenticate checks email and password and issues an access token whose
// subject is the email.
//
// Unknown email and wrong password give the same error. The verified check
// runs only after the password matched, so it reveals nothing to someone
// who does not know the password.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.InvalidCredentials()
		}
		return "", fmt.Errorf("service/auth: loading identity: %w", err)
	}

	if !s.passwords.Verify(user.PasswordHash, password) {
		return "", apperror.InvalidCredentials()
	}
	if !user.Verified {
		return "", apperror.EmailNotVerified()
	}

	token, err := s.tokens.Issue(user.Email, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return token, nil
}

// RequireRole is the service-level role check used by handlers.
func (s *AuthService) RequireRole(user *model.User, role model.Role) (*model.User, error) {
	return RequireRole(user, role)
}

// Signup creates an unverified identity and sends its verification token.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := hashPassword(s.passwords, password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:             email,
		PasswordHash:      hash,
		Role:              model.RoleUser,
		VerificationToken: s.newToken(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating identity: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	s.sendVerification(ctx, user)

	return user, nil
}

// VerifyEmail redeems a verification token. A token that was already
// redeemed or replaced matches nobody and reports not found; the check and
// the write are one statement, so concurrent redemptions cannot both win.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	user, err := s.users.RedeemVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrNotFound,
				Message: "User not found or already verified",
			}
		}
		return nil, fmt.Errorf("service/auth: redeeming verification token: %w", err)
	}

	// verified is part of the snapshot
	s.cache.Invalidate(ctx, user.ID)

	s.logger.Info("email verified", slog.String("userID", user.ID))
	return user, nil
}

// ResendVerification replaces the pending verification token with a new
// one and sends it. The old token stops working.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.UserNotFound()
		}
		return fmt.Errorf("service/auth: loading identity: %w", err)
	}
	if user.Verified {
		return apperror.AlreadyVerified()
	}

	token := s.newToken()
	if err := s.users.SetVerificationToken(ctx, user.ID, token); err != nil {
		// verified between the lookup and the write
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.AlreadyVerified()
		}
		return fmt.Errorf("service/auth: replacing verification token: %w", err)
	}
	user.VerificationToken = token

	s.sendVerification(ctx, user)
	return nil
}

// sendVerification is best effort: the token is persisted, and the user
// can ask for a resend if delivery failed.
func (s *AuthService) sendVerification(ctx context.Context, user *model.User) {
	if err := s.notifier.SendVerification(ctx, user.Email, user.VerificationToken); err != nil {
		s.logger.Warn("failed to send verification token",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// hashPassword maps the hasher's input limit to a validation error.
func hashPassword(p *auth.PasswordService, password string) (string, error) {
	hash, err := p.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed("password", err.Error())
		}
		return "", fmt.Errorf("service: hashing password: %w", err)
	}
	return hash, nil
}
