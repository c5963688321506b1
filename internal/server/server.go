// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer. It decides:
//   - which storage driver, cache backend and blob uploader to build
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → storage (sqlite | postgres)
//	              → cache.Store (redis | memory) → cache.IdentityCache
//	              → blob.Uploader (s3 | disabled)
//	              → services → handlers → routes
//
// All dependencies are wired here (New/setupRoutes), the "composition root".
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/blob"
	"github.com/sakif/contacts-api/internal/cache"
	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/middleware"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/notify"
	"github.com/sakif/contacts-api/internal/repository"
	pgRepo "github.com/sakif/contacts-api/internal/repository/postgres"
	sqliteRepo "github.com/sakif/contacts-api/internal/repository/sqlite"
	"github.com/sakif/contacts-api/internal/service"
)

// database is what the server needs from either storage driver besides the
// repositories themselves.
type database interface {
	Ping() error
	Close() error
}

// storage bundles the repositories of the selected driver.
type storage struct {
	db       database
	users    repository.UserRepository
	contacts repository.ContactRepository
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig) (*storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := pgRepo.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return &storage{db: db, users: db.Users(), contacts: db.Contacts()}, nil
	case config.DriverSQLite, "":
		db, err := sqliteRepo.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &storage{db: db, users: db.Users(), contacts: db.Contacts()}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database pool and the redis client. Both are closed
// when Start returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  *storage
	redis  *redis.Client // nil when the identity cache is in-memory
}

// New creates a new Server from cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStorage(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// cacheStore picks the identity cache backend. A configured but unreachable
// redis does not stop the server: the cache is best-effort, so it starts on
// the in-memory store and says so.
func (s *Server) cacheStore(ctx context.Context) cache.Store {
	client, err := cache.NewRedisClient(ctx, s.config.Redis)
	if err != nil {
		s.logger.Warn("redis unavailable, identity cache falls back to memory",
			slog.String("error", err.Error()),
		)
		return cache.NewMemoryStore()
	}
	if client == nil {
		s.logger.Info("REDIS_URL not set, identity cache is in-memory")
		return cache.NewMemoryStore()
	}

	s.redis = client
	return cache.NewRedisStore(client)
}

func (s *Server) uploader(ctx context.Context) (blob.Uploader, error) {
	if !s.config.S3.Enabled() {
		s.logger.Warn("S3_BUCKET not set, avatar uploads are disabled")
		return blob.Disabled{}, nil
	}
	up, err := blob.NewS3Uploader(ctx, s.config.S3)
	if err != nil {
		return nil, fmt.Errorf("creating s3 uploader: %w", err)
	}
	return up, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                              → welcome
// GET    /healthz                       → liveness
// GET    /metrics                       → prometheus
// POST   /api/signup
// GET    /api/verifyemail/{token}
// POST   /api/resend-verification-email?email=
// POST   /api/login
// POST   /api/password-reset/request
// POST   /api/password-reset/confirm
// GET    /api/users/me                  [auth, rate limited]
// PATCH  /api/users/avatar              [auth, admin]
// POST   /api/contacts                  [auth]
// GET    /api/contacts?skip=&limit=     [auth]
// GET    /api/contacts/search?query=    [auth]
// GET    /api/contacts/birthdays        [auth]
// GET    /api/contacts/{id}             [auth]
// PUT    /api/contacts/{id}             [auth]
// DELETE /api/contacts/{id}             [auth]
//
// Trailing slashes are stripped, so "/api/users/me/" also works.
func (s *Server) setupRoutes(ctx context.Context) error {
	// === Dependencies ===
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: s.config.Auth.Secret,
		Issuer: s.config.Auth.Issuer,
	})
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService(s.config.Auth.BcryptCost)

	store := s.cacheStore(ctx)
	identities := cache.NewIdentityCache(store, s.config.Cache, s.logger)

	uploader, err := s.uploader(ctx)
	if err != nil {
		return err
	}
	notifier := notify.NewLogNotifier(s.logger)

	authService := service.NewAuthService(s.store.users, tokens, passwords, identities, notifier, s.logger,
		service.AuthConfig{AccessTokenTTL: s.config.Auth.AccessTokenTTL, SnapshotTTL: s.config.Cache.TTL})
	recoveryService := service.NewRecoveryService(s.store.users, passwords, identities, notifier, s.logger,
		s.config.Auth.ResetTokenTTL)
	userService := service.NewUserService(s.store.users, uploader, identities, s.logger)
	contactService := service.NewContactService(s.store.contacts, s.logger)

	// the in-memory fallback has nothing to check and reports "disabled"
	var cacheCheck handler.PingerFunc
	if rs, ok := store.(*cache.RedisStore); ok {
		cacheCheck = rs.Health
	}

	systemHandler := handler.NewSystemHandler(s.store.db, cacheCheck, s.logger)
	authHandler := handler.NewAuthHandler(authService, recoveryService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	contactHandler := handler.NewContactHandler(contactService, s.logger)

	meLimiter := middleware.NewRateLimiter(s.config.RateLimit.MeRequests, s.config.RateLimit.MeWindow, s.logger)

	// === Global Middleware ===
	// Order matters: the request ID must exist before the logger reads it,
	// and Recoverer sits innermost so a panic is still logged as a 500.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.StripSlashes)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           int(s.config.CORS.MaxAge.Seconds()),

		OptionsSuccessStatus: http.StatusNoContent,
	}))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"Not Found"}` + "\n"))
	})

	// === Service Routes ===
	s.router.Get("/", systemHandler.HandleRoot)
	s.router.Get("/healthz", systemHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Get("/verifyemail/{token}", authHandler.HandleVerifyEmail)
		r.Post("/resend-verification-email", authHandler.HandleResendVerification)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/password-reset/request", authHandler.HandleRequestReset)
		r.Post("/password-reset/confirm", authHandler.HandleConfirmReset)

		// Protected routes. RequireAuth resolves the bearer token and puts
		// the identity into the request context.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authService))

			r.With(meLimiter.Handler).Get("/users/me", userHandler.HandleMe)
			r.With(auth.RequireRole(model.RoleAdmin)).Patch("/users/avatar", userHandler.HandleUpdateAvatar)

			r.Route("/contacts", func(r chi.Router) {
				r.Post("/", contactHandler.HandleCreate)
				r.Get("/", contactHandler.HandleList)
				r.Get("/search", contactHandler.HandleSearch)
				r.Get("/birthdays", contactHandler.HandleBirthdays)
				r.Get("/{id}", contactHandler.HandleGetByID)
				r.Put("/{id}", contactHandler.HandleUpdate)
				r.Delete("/{id}", contactHandler.HandleDelete)
			})
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (ShutdownTimeout)
//  3. Close the redis client and the database pool
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Driver),
			slog.Bool("redis", s.redis != nil),
			slog.Bool("s3", s.config.S3.Enabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.store.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
