// Package cache memoizes match results. Entries live in an in-process LRU
// and, optionally, in Redis so that several matcher processes share work.
// Concurrent misses on one key are collapsed into a single computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/resilience"
)

// Remote is the shared second level, implemented by pkg/redis.Client.
// Get reports apperrors.ErrCacheMiss for absent keys.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache maps query keys to values of type V.
type Cache[V any] struct {
	local  *lru.Cache[string, V]
	remote Remote
	ttl    time.Duration
	prefix string
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache whose keys are namespaced by prefix. remote may be
// nil for a process-local cache.
func New[V any](prefix string, size int, remote Remote, ttl time.Duration) (*Cache[V], error) {
	local, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	return &Cache[V]{
		local:  local,
		remote: remote,
		ttl:    ttl,
		prefix: prefix,
		logger: slog.Default().With("component", "match-cache", "prefix", prefix),
	}, nil
}

// Get looks in the local LRU, then in the remote. Remote hits are copied
// into the LRU.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	k := c.buildKey(key)
	if v, ok := c.local.Get(k); ok {
		c.hits.Add(1)
		return v, true
	}
	var zero V
	if c.remote == nil {
		c.misses.Add(1)
		return zero, false
	}
	data, err := c.remote.Get(ctx, k)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			c.remoteFailed("cache get failed", k, err)
		}
		c.misses.Add(1)
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.misses.Add(1)
		return zero, false
	}
	c.local.Add(k, v)
	c.hits.Add(1)
	return v, true
}

// Set stores v in both levels. Remote failures are logged, not returned.
func (c *Cache[V]) Set(ctx context.Context, key string, v V) {
	k := c.buildKey(key)
	c.local.Add(k, v)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.remote.Set(ctx, k, data, c.ttl); err != nil {
		c.remoteFailed("cache set failed", k, err)
	}
}

// remoteFailed logs remote errors. Calls short-circuited by an open
// breaker are expected and only logged at debug level.
func (c *Cache[V]) remoteFailed(msg, key string, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug(msg, "key", key, "error", err)
		return
	}
	c.logger.Error(msg, "key", key, "error", err)
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. The bool reports a cache hit.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, true, nil
	}
	val, err, _ := c.group.Do(c.buildKey(key), func() (any, error) {
		if v, ok := c.Get(ctx, key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return val.(V), false, nil
}

// Invalidate drops every entry under this cache's prefix.
func (c *Cache[V]) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	deleted, err := c.remote.FlushByPattern(ctx, c.prefix+":*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counters.
func (c *Cache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache[V]) buildKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return c.prefix + ":" + hex.EncodeToString(sum[:16])
}
