// Package cache holds the best-effort identity cache.
//
// The cache is never authoritative. A Store reports failures to
// IdentityCache, which logs and counts them and then behaves as if the key
// were simply missing. A cache outage costs latency, never correctness.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key does not exist or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the key-value capability the identity cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NoopStore caches nothing. Every Get is a miss.
type NoopStore struct{}

var _ Store = NoopStore{}

func (NoopStore) Get(context.Context, string) (string, error) { return "", ErrMiss }

func (NoopStore) Set(context.Context, string, string, time.Duration) error { return nil }

func (NoopStore) Delete(context.Context, string) error { return nil }
