package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "Contact not found", "field": "..."}
//
// The status code comes from the sentinel wrapped by the service error, so a
// handler never decides a status on its own for a domain failure.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/contacts-api/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, if any
}

// MessageResponse is the body of endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set before the body: once Encode writes, any
// later header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorMapping ties a sentinel to its HTTP status and machine-readable type.
// Order matters: the first sentinel found in the chain wins.
var errorMapping = []struct {
	target    error
	status    int
	errorType string
}{
	{apperror.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{apperror.ErrEmailNotVerified, http.StatusUnauthorized, "email_not_verified"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrUserNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrUserNotVerified, http.StatusBadRequest, "user_not_verified"},
	{apperror.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid_token"},
	{apperror.ErrAlreadyVerified, http.StatusBadRequest, "already_verified"},
	{apperror.ErrDuplicateEmail, http.StatusConflict, "conflict"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrUploadFailed, http.StatusBadGateway, "upload_failed"},
}

// statusFor returns the status code and error type for err.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return m.status, m.errorType
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The service layer never knows about HTTP status codes; this is the only
// place where apperror sentinels become 4xx/5xx.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := statusFor(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		// NEVER expose internal error details to the client.
		// The raw message might contain SQL or connection strings.
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// validate is shared by every handler; validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = newValidator()

// newValidator reports failures under the json name of the field so the
// "field" of an error response matches what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and runs the struct's validate tags.
// Failures come back as apperror validation errors naming the first bad field.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		return apperror.ValidationFailed(field, describe(field, fe))
	}
	return apperror.ValidationFailed("body", err.Error())
}

// describe turns a validator failure into a short message.
func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	default:
		return field + " is invalid"
	}
}
