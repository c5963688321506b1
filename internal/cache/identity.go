package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
)

const (
	DefaultTTL       = 3600 * time.Second
	DefaultResetTTL  = time.Hour
	DefaultOpTimeout = 250 * time.Millisecond

	snapshotPrefix   = "user:"
	resetTokenPrefix = "reset_token:"
)

// Config holds the identity cache tunables.
type Config struct {
	TTL       time.Duration // snapshot lifetime
	ResetTTL  time.Duration // reset-token mirror lifetime
	OpTimeout time.Duration // upper bound for each store call
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = DefaultResetTTL
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	return c
}

// IdentityCache keeps identity snapshots and reset-token mirrors in a Store.
//
// None of its methods return an error. A failing store is logged, counted
// and then reported as a miss (reads) or ignored (writes).
type IdentityCache struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// NewIdentityCache creates an IdentityCache over store. Zero Config fields
// take the package defaults.
func NewIdentityCache(store Store, cfg Config, logger *slog.Logger) *IdentityCache {
	if store == nil {
		store = NoopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityCache{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// TTL is the lifetime used when Put is called with a zero ttl.
func (c *IdentityCache) TTL() time.Duration { return c.cfg.TTL }

// ResetTTL is the lifetime used when PutResetToken is called with a zero ttl.
func (c *IdentityCache) ResetTTL() time.Duration { return c.cfg.ResetTTL }

// Get returns the cached snapshot for the identity id.
func (c *IdentityCache) Get(ctx context.Context, id string) (*model.IdentitySnapshot, bool) {
	raw, ok := c.read(ctx, "snapshot", snapshotPrefix+id)
	if !ok {
		return nil, false
	}

	var snap model.IdentitySnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		c.unavailable("get", snapshotPrefix+id, fmt.Errorf("decode snapshot: %w", err))
		return nil, false
	}
	return &snap, true
}

// Put stores snap under the identity id. A zero ttl uses Config.TTL.
func (c *IdentityCache) Put(ctx context.Context, id string, snap model.IdentitySnapshot, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.cfg.TTL
	}
	data, err := json.Marshal(snap)
	if err != nil {
		c.unavailable("put", snapshotPrefix+id, fmt.Errorf("encode snapshot: %w", err))
		return
	}
	c.write(ctx, "put", snapshotPrefix+id, string(data), ttl)
}

// Invalidate drops the snapshot of the identity id.
func (c *IdentityCache) Invalidate(ctx context.Context, id string) {
	c.remove(ctx, snapshotPrefix+id)
}

// PutResetToken mirrors a pending reset token for email. A zero ttl uses
// Config.ResetTTL.
func (c *IdentityCache) PutResetToken(ctx context.Context, email, token string, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.cfg.ResetTTL
	}
	c.write(ctx, "put_reset_token", resetTokenPrefix+email, token, ttl)
}

// ResetToken returns the mirrored reset token for email.
func (c *IdentityCache) ResetToken(ctx context.Context, email string) (string, bool) {
	return c.read(ctx, "reset_token", resetTokenPrefix+email)
}

// InvalidateResetToken drops the mirrored reset token for email.
func (c *IdentityCache) InvalidateResetToken(ctx context.Context, email string) {
	c.remove(ctx, resetTokenPrefix+email)
}

func (c *IdentityCache) read(ctx context.Context, namespace, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	start := time.Now()
	v, err := c.store.Get(ctx, key)
	observe("get", start)

	switch {
	case err == nil:
		lookupsTotal.WithLabelValues(namespace, "hit").Inc()
		return v, true
	case errors.Is(err, ErrMiss):
		lookupsTotal.WithLabelValues(namespace, "miss").Inc()
		return "", false
	default:
		lookupsTotal.WithLabelValues(namespace, "error").Inc()
		c.unavailable("get", key, err)
		return "", false
	}
}

func (c *IdentityCache) write(ctx context.Context, op, key, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	start := time.Now()
	err := c.store.Set(ctx, key, value, ttl)
	observe("set", start)
	if err != nil {
		c.unavailable(op, key, err)
	}
}

func (c *IdentityCache) remove(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	start := time.Now()
	err := c.store.Delete(ctx, key)
	observe("delete", start)
	if err != nil {
		c.unavailable("delete", key, err)
	}
}

// unavailable records a swallowed store failure.
func (c *IdentityCache) unavailable(op, key string, err error) {
	unavailableTotal.WithLabelValues(op).Inc()
	c.logger.Warn("identity cache unavailable",
		slog.String("op", op),
		slog.String("key", key),
		slog.String("error", fmt.Errorf("%w: %w", apperror.ErrCacheUnavailable, err).Error()),
	)
}

func observe(op string, start time.Time) {
	opDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
