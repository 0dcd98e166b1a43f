package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// ErrCacheMiss is returned by [Store.Get] when no live entry exists for a key.
var ErrCacheMiss = errors.New("cache miss")

// Store defines the backend operations the cache layer needs.
type Store interface {
	// Get retrieves the value for key, or [ErrCacheMiss] if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Keys returns all live keys beginning with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Cache provides read-through caching over a [Store].
type Cache struct {
	store  Store
	logger *log.Logger
}

// New creates a Cache backed by the given store.
func New(store Store, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{store: store, logger: logger}
}

// GetOrFetch returns the cached value for key if a non-expired entry exists,
// otherwise invokes fetch, stores its result with the given TTL, and returns it.
//
// A fetch error is returned as-is and nothing is stored. Storage failures are
// logged but do not fail the request; the fetched value is still returned.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	value, err := c.store.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("cache read failed, fetching", "key", key, "error", err)
	}

	value, err = fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}

	return value, nil
}

// Invalidate removes all entries whose key begins with prefix.
func (c *Cache) Invalidate(ctx context.Context, prefix string) error {
	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list keys for prefix %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete %d keys for prefix %q: %w", len(keys), prefix, err)
	}

	c.logger.Debug("cache invalidated", "prefix", prefix, "keys", len(keys))
	return nil
}
