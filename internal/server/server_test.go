package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/model"
)

// =========================================================================
// HELPERS
// =========================================================================

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()

	cfg := config.LoadDefaults()
	cfg.Database.Path = ":memory:"
	cfg.Auth.Secret = "server-test-secret-32-characters"
	cfg.Auth.BcryptCost = 4
	cfg.RateLimit.MeRequests = 3
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(srv.close)
	return srv
}

func send(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

// verifiedUser signs up through the API, redeems the verification token
// straight from storage (the log notifier only prints it) and logs in.
func verifiedUser(t *testing.T, srv *Server, email string) string {
	t.Helper()
	ctx := context.Background()

	rr := send(t, srv, http.MethodPost, "/api/signup", "", `{"email":"`+email+`","password":"pw"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	u, err := srv.store.users.FindByEmail(ctx, email)
	require.NoError(t, err)
	rr = send(t, srv, http.MethodGet, "/api/verifyemail/"+u.VerificationToken, "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = send(t, srv, http.MethodPost, "/api/login", "", `{"email":"`+email+`","password":"pw"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&tok))
	return tok.AccessToken
}

// =========================================================================
// ROUTING TESTS
// =========================================================================

func TestServiceRoutes(t *testing.T) {
	srv := newTestServer(t)

	rr := send(t, srv, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Welcome to the Contacts API")

	rr = send(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok","cache":"disabled"}`, rr.Body.String())

	// one request so the http metrics have a sample
	rr = send(t, srv, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "contacts_http_requests_total")

	rr = send(t, srv, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_found")

	rr = send(t, srv, http.MethodGet, "/api/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTrailingSlashes(t *testing.T) {
	srv := newTestServer(t)
	token := verifiedUser(t, srv, "a@x.com")

	for _, path := range []string{"/api/users/me", "/api/users/me/"} {
		rr := send(t, srv, http.MethodGet, path, token, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	body := `{"first_name":"J","last_name":"D","email":"j@x.com","phone_number":"1","birthday":"1990-01-01"}`
	rr := send(t, srv, http.MethodPost, "/api/contacts/", token, body)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	for _, path := range []string{"/api/contacts", "/api/contacts/"} {
		rr := send(t, srv, http.MethodGet, path, token, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestMeIsRateLimited(t *testing.T) {
	srv := newTestServer(t)
	token := verifiedUser(t, srv, "a@x.com")

	for i := 0; i < 3; i++ {
		rr := send(t, srv, http.MethodGet, "/api/users/me", token, "")
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}
	rr := send(t, srv, http.MethodGet, "/api/users/me", token, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// other routes are not limited
	rr = send(t, srv, http.MethodGet, "/api/contacts", token, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAvatarRoute(t *testing.T) {
	srv := newTestServer(t)
	userToken := verifiedUser(t, srv, "u@x.com")
	adminToken := verifiedUser(t, srv, "root@x.com")

	ctx := context.Background()
	admin, err := srv.store.users.FindByEmail(ctx, "root@x.com")
	require.NoError(t, err)
	require.NoError(t, srv.store.users.SetRole(ctx, admin.ID, model.RoleAdmin))

	rr := send(t, srv, http.MethodPatch, "/api/users/avatar", userToken, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// No bucket configured: the upload collaborator refuses and nothing changes.
	req := httptest.NewRequest(http.MethodPatch, "/api/users/avatar", strings.NewReader(
		"--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.png\"\r\n"+
			"Content-Type: image/png\r\n\r\npng\r\n--b--\r\n"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadGateway, rr.Code, rr.Body.String())

	after, err := srv.store.users.FindByEmail(ctx, "root@x.com")
	require.NoError(t, err)
	assert.Empty(t, after.AvatarURL)
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Database.Driver = "mysql"
	cfg.Auth.Secret = "server-test-secret-32-characters"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestNew_RejectsShortSecret(t *testing.T) {
	cfg := config.LoadDefaults()
	cfg.Database.Path = ":memory:"
	cfg.Auth.Secret = "short"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

// =========================================================================
// CORS TESTS
// =========================================================================

func TestCORS(t *testing.T) {
	srv := newTestServer(t)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/users/avatar", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		return rr
	}

	t.Run("allowed origin preflight", func(t *testing.T) {
		rr := preflight("http://localhost:8000")
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "http://localhost:8000", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, http.MethodPatch, rr.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unknown origin gets no grant", func(t *testing.T) {
		rr := preflight("https://evil.example.com")
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("simple request carries the grant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:8000")
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "http://localhost:8000", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCORS_ConfiguredOrigins(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.CORS.AllowedOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://app.example.com")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnreachableRedisFallsBackToMemory(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Redis.URL = "redis://127.0.0.1:1/0"
		c.Redis.DialTimeout = 100 * time.Millisecond
		c.Redis.MaxRetries = -1
	})
	assert.Nil(t, srv.redis)

	rr := send(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok","cache":"disabled"}`, rr.Body.String())
}
