// Package apperror defines the error kinds shared by the service and
// transport layers. Services return *AppError values; handlers map the
// wrapped sentinel to a status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	ErrInvalidToken          = errors.New("invalid token")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserNotVerified       = errors.New("user not verified")
	ErrAlreadyVerified       = errors.New("user already verified")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrDuplicateEmail        = errors.New("duplicate email")
	ErrUploadFailed          = errors.New("upload failed")

	// ErrCacheUnavailable is recovered inside the cache package and never
	// returned to a caller.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidToken is returned by the token codec for any token it refuses:
// bad signature, malformed structure, or expiry in the past.
func InvalidToken(reason string) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: "invalid token: " + reason,
	}
}

// Unauthenticated carries one fixed message so callers learn nothing about
// which step of identity resolution failed.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "Could not validate credentials",
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Incorrect username or password",
	}
}

func EmailNotVerified() *AppError {
	return &AppError{
		Err:     ErrEmailNotVerified,
		Message: "Please verify your email address",
	}
}

func UserNotFound() *AppError {
	return &AppError{
		Err:     ErrUserNotFound,
		Message: "User not found",
	}
}

func UserNotVerified() *AppError {
	return &AppError{
		Err:     ErrUserNotVerified,
		Message: "User not verified",
	}
}

func AlreadyVerified() *AppError {
	return &AppError{
		Err:     ErrAlreadyVerified,
		Message: "User already verified",
	}
}

func InvalidOrExpiredToken() *AppError {
	return &AppError{
		Err:     ErrInvalidOrExpiredToken,
		Message: "Invalid or expired token",
	}
}

func DuplicateEmail() *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: "Email already registered",
		Field:   "email",
	}
}

// UploadFailed wraps the collaborator's error so it stays visible to
// errors.Is/As while the message stays generic.
func UploadFailed(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUploadFailed, cause),
		Message: "Avatar upload failed",
	}
}

// ContactExists is the per-owner counterpart of DuplicateEmail.
func ContactExists() *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: "Contact with this email already exists",
		Field:   "email",
	}
}
