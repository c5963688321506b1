// Package main is the entry point for the contacts API server.
//
// The main package is kept minimal. Its job is to:
//  1. Read configuration (internal/config: defaults + environment)
//  2. Create the logger
//  3. Start the application (internal/server)
//
// Environment:
//
//	PORT, LOG_LEVEL                      HTTP port, slog level
//	DB_DRIVER, DB_PATH, DATABASE_URL     sqlite (default) or postgres
//	SECRET_KEY (or JWT_SECRET)           token signing secret, required
//	BCRYPT_COST, ACCESS_TOKEN_TTL        credential tunables
//	REDIS_URL, CACHE_TTL                 identity cache (in-memory if unset)
//	S3_BUCKET, S3_REGION, S3_ENDPOINT,   avatar storage (uploads disabled if unset)
//	S3_ACCESS_KEY, S3_SECRET_KEY, S3_PUBLIC_URL
//	ME_RATE_LIMIT                        GET /api/users/me requests per minute
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load()

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	// The log notifier prints verification and reset tokens at debug level.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel,
	}))

	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	// Startup (database, migrations, redis ping, AWS config) gets a bounded budget.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
