package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
)

// MaxAvatarBytes caps the multipart body of an avatar upload.
const MaxAvatarBytes = 5 << 20

// AvatarUpdater is the part of service.UserService the profile endpoints use.
type AvatarUpdater interface {
	UpdateAvatar(ctx context.Context, actor *model.User, file io.Reader, contentType string) (*model.User, error)
}

// UserHandler serves the authenticated identity's profile.
type UserHandler struct {
	avatars AvatarUpdater
	logger  *slog.Logger
}

func NewUserHandler(avatars AvatarUpdater, logger *slog.Logger) *UserHandler {
	return &UserHandler{avatars: avatars, logger: logger}
}

// HandleMe returns the identity resolved by RequireAuth.
//
// HTTP: GET /api/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateAvatar replaces the caller's avatar.
//
// HTTP: PATCH /api/users/avatar (multipart/form-data, field "file")
func (h *UserHandler) HandleUpdateAvatar(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes)
	if err := r.ParseMultipartForm(MaxAvatarBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("file", "file is too large"))
			return
		}
		writeError(w, apperror.ValidationFailed("file", "multipart form with a file is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	user, err := h.avatars.UpdateAvatar(r.Context(), actor, file, contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
