package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
)

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the values stored here.
type contextKey string

const userKey contextKey = "user"

// IdentityResolver turns a bearer token into the identity it belongs to.
// service.AuthService implements it.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, bearerToken string) (*model.User, error)
}

const (
	unauthorizedBody = `{"error":"unauthorized","message":"Could not validate credentials"}`
	forbiddenBody    = `{"error":"forbidden","message":"Admin access required"}`
	internalBody     = `{"error":"internal_error","message":"An internal error occurred"}`
)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the "Authorization: Bearer <token>" header, resolves the identity
// and stores it in the request context. Any authentication failure answers
// 401 with a WWW-Authenticate challenge and stops the chain.
func RequireAuth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			user, err := resolver.ResolveIdentity(r.Context(), token)
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthenticated) || errors.Is(err, apperror.ErrInvalidToken) {
					writeUnauthorized(w)
					return
				}
				writeRaw(w, http.StatusInternalServerError, internalBody)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is a middleware that only lets identities with the given role
// through. It must run after RequireAuth.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			if user.Role != role {
				writeRaw(w, http.StatusForbidden, forbiddenBody)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated identity from the request context.
//
// Returns (nil, false) on routes not protected by RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// ContextWithUser returns a copy of ctx carrying user. Handlers under test use
// it to skip the middleware.
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeRaw(w, http.StatusUnauthorized, unauthorizedBody)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
