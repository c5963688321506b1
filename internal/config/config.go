// Package config loads the service configuration.
//
// Configuration is built once in main: LoadDefaults, then FromEnv overlays
// the environment, then Validate. The result is passed down by value; no
// package reads the environment on its own.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/blob"
	"github.com/sakif/contacts-api/internal/cache"
)

// Supported DB_DRIVER values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ServerConfig struct {
	Port            int
	LogLevel        slog.Level
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver string
	// Path is the SQLite file. ":memory:" keeps everything in process.
	Path string
	// URL is the Postgres DSN, used when Driver is postgres.
	URL string
}

type AuthConfig struct {
	Secret         string
	Issuer         string
	BcryptCost     int
	AccessTokenTTL time.Duration
	ResetTokenTTL  time.Duration
}

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type RateLimitConfig struct {
	// MeRequests per MeWindow are allowed on GET /api/users/me per client.
	MeRequests int
	MeWindow   time.Duration
}

// Config is the whole service configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Redis     cache.RedisConfig
	Cache     cache.Config
	S3        blob.S3Config
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// LoadDefaults returns a configuration that runs locally with SQLite and
// an in-memory identity cache. Auth.Secret has no default.
func LoadDefaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			LogLevel:        slog.LevelInfo,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/contacts.db",
		},
		Auth: AuthConfig{
			Issuer:         auth.DefaultIssuer,
			BcryptCost:     auth.DefaultCost,
			AccessTokenTTL: 30 * time.Minute,
			ResetTokenTTL:  cache.DefaultResetTTL,
		},
		Redis: cache.RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   1,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Cache: cache.Config{
			TTL:       cache.DefaultTTL,
			ResetTTL:  cache.DefaultResetTTL,
			OpTimeout: cache.DefaultOpTimeout,
		},
		S3: blob.S3Config{
			Region: "us-east-1",
		},
		RateLimit: RateLimitConfig{
			MeRequests: 10,
			MeWindow:   time.Minute,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"http://localhost:8000"},
			AllowCredentials: true,
			MaxAge:           5 * time.Minute,
		},
	}
}

// Load is LoadDefaults + FromEnv(os.LookupEnv) + Validate.
func Load() (Config, error) {
	cfg := LoadDefaults()
	if err := cfg.FromEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv overlays variables found by lookup onto cfg. Every malformed
// value is reported, not just the first.
func (cfg *Config) FromEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.int("PORT", &cfg.Server.Port)
	e.level("LOG_LEVEL", &cfg.Server.LogLevel)

	e.str("DB_DRIVER", &cfg.Database.Driver)
	e.str("DB_PATH", &cfg.Database.Path)
	e.str("DATABASE_URL", &cfg.Database.URL)

	// SECRET_KEY wins over the older JWT_SECRET name.
	e.str("JWT_SECRET", &cfg.Auth.Secret)
	e.str("SECRET_KEY", &cfg.Auth.Secret)
	e.str("JWT_ISSUER", &cfg.Auth.Issuer)
	e.int("BCRYPT_COST", &cfg.Auth.BcryptCost)
	e.duration("ACCESS_TOKEN_TTL", &cfg.Auth.AccessTokenTTL)
	e.duration("RESET_TOKEN_TTL", &cfg.Auth.ResetTokenTTL)

	e.str("REDIS_URL", &cfg.Redis.URL)
	e.duration("CACHE_TTL", &cfg.Cache.TTL)
	e.duration("CACHE_OP_TIMEOUT", &cfg.Cache.OpTimeout)
	cfg.Cache.ResetTTL = cfg.Auth.ResetTokenTTL

	e.str("S3_BUCKET", &cfg.S3.Bucket)
	e.str("S3_REGION", &cfg.S3.Region)
	e.str("S3_ENDPOINT", &cfg.S3.Endpoint)
	e.str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	e.str("S3_SECRET_KEY", &cfg.S3.SecretKey)
	e.str("S3_PUBLIC_URL", &cfg.S3.PublicURL)

	e.int("ME_RATE_LIMIT", &cfg.RateLimit.MeRequests)

	e.list("CORS_ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins)
	e.bool("CORS_ALLOW_CREDENTIALS", &cfg.CORS.AllowCredentials)

	return errors.Join(e.errs...)
}

// Validate checks the values no component can run without.
func (cfg Config) Validate() error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", cfg.Server.Port))
	}
	if len(cfg.Auth.Secret) < 16 {
		errs = append(errs, errors.New("config: SECRET_KEY must be set to at least 16 characters"))
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("config: ACCESS_TOKEN_TTL must be positive"))
	}

	switch cfg.Database.Driver {
	case DriverSQLite:
		if cfg.Database.Path == "" {
			errs = append(errs, errors.New("config: DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown DB_DRIVER %q", cfg.Database.Driver))
	}

	if cfg.S3.Bucket != "" && (cfg.S3.AccessKey == "") != (cfg.S3.SecretKey == "") {
		errs = append(errs, errors.New("config: S3_ACCESS_KEY and S3_SECRET_KEY must be set together"))
	}
	if cfg.RateLimit.MeRequests < 1 {
		errs = append(errs, errors.New("config: ME_RATE_LIMIT must be at least 1"))
	}
	if cfg.CORS.AllowCredentials && slices.Contains(cfg.CORS.AllowedOrigins, "*") {
		errs = append(errs, errors.New("config: CORS_ALLOWED_ORIGINS cannot be \"*\" when credentials are allowed"))
	}

	return errors.Join(errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

// list splits a comma-separated value, dropping empty entries.
func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
		return
	}
	*dst = n
}

// duration accepts Go durations ("90s", "1h") or a bare number of seconds.
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not a duration", key, v))
		return
	}
	*dst = d
}

func (e *envReader) level(key string, dst *slog.Level) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not a log level", key, v))
	}
}
