// Package tiered composes two cache levels behind the single cache port.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/fatturaflow/fatturaflow/internal/port/cache"
)

// Cache reads through an in-process level before a shared remote one.
// Writes and deletes reach both levels so workers sharing the remote
// level converge on the same entries.
type Cache struct {
	local    cache.Cache
	shared   cache.Cache
	localTTL time.Duration
}

// New composes the two levels. localTTL bounds how long a shared hit
// stays warm in the local level.
func New(local, shared cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, localTTL: localTTL}
}

// Get serves from the local level when it can; a shared hit warms the
// local level for the next lookup.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok, err := c.local.Get(ctx, key); err != nil || ok {
		return data, ok, err
	}

	data, ok, err := c.shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	_ = c.local.Set(ctx, key, data, c.localTTL)
	return data, true, nil
}

// Set writes to both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Join(
		c.local.Set(ctx, key, value, ttl),
		c.shared.Set(ctx, key, value, ttl),
	)
}

// Delete removes the key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(
		c.local.Delete(ctx, key),
		c.shared.Delete(ctx, key),
	)
}
