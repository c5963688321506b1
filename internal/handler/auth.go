package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
)

// Authenticator is the part of service.AuthService the auth endpoints use.
type Authenticator interface {
	Signup(ctx context.Context, email, password string) (*model.User, error)
	VerifyEmail(ctx context.Context, token string) (*model.User, error)
	ResendVerification(ctx context.Context, email string) error
	Authenticate(ctx context.Context, email, password string) (string, error)
}

// Recovery is the part of service.RecoveryService the reset endpoints use.
type Recovery interface {
	RequestResetQuietly(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
}

// AuthHandler serves signup, email verification, login and password reset.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup             → create an unverified identity
//   - HandleVerifyEmail        → redeem a verification token
//   - HandleResendVerification → issue a fresh verification token
//   - HandleLogin              → exchange credentials for a bearer token
//   - HandleRequestReset       → start password recovery (uniform answer)
//   - HandleConfirmReset       → finish password recovery
type AuthHandler struct {
	auth     Authenticator
	recovery Recovery
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth Authenticator, recovery Recovery, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		recovery: recovery,
		logger:   logger,
	}
}

type signupRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is the body of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"        validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// resetAcceptedMessage is returned for every well-formed reset request so
// the response never reveals whether the address is registered.
const resetAcceptedMessage = "If the account exists and is verified, a password reset link has been sent"

// HandleSignup creates an account.
//
// HTTP: POST /api/signup
// REQUEST BODY: {"email": "a@x.com", "password": "..."}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleVerifyEmail redeems a verification token.
//
// HTTP: GET /api/verifyemail/{token}
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleResendVerification replaces the pending verification token.
//
// HTTP: POST /api/resend-verification-email?email=a@x.com
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, apperror.ValidationFailed("email", "email is required"))
		return
	}

	if err := h.auth.ResendVerification(r.Context(), email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Verification email resent"})
}

// HandleLogin exchanges credentials for a bearer token.
//
// HTTP: POST /api/login
//
// Two body formats are accepted:
//   - application/json: {"email": "...", "password": "..."}
//   - application/x-www-form-urlencoded: username=...&password=...
//     (the OAuth2 password-grant form most API clients send)
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := readLogin(r)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func readLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(r, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, apperror.ValidationFailed("body", "Invalid form body")
	}
	req.Email = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	if req.Email == "" {
		return req, apperror.ValidationFailed("username", "username is required")
	}
	if req.Password == "" {
		return req, apperror.ValidationFailed("password", "password is required")
	}
	return req, nil
}

// HandleRequestReset starts password recovery.
//
// HTTP: POST /api/password-reset/request
// REQUEST BODY: {"email": "a@x.com"}
//
// Unknown and unverified addresses get the same 202 as a real request.
func (h *AuthHandler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.recovery.RequestResetQuietly(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageResponse{Message: resetAcceptedMessage})
}

// HandleConfirmReset sets a new password using a reset token.
//
// HTTP: POST /api/password-reset/confirm
// REQUEST BODY: {"token": "...", "new_password": "..."}
func (h *AuthHandler) HandleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.recovery.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("password reset completed")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset"})
}
