// Package memcached provides a cache.Store that uses gomemcache to store
// values in a memcached server.
//
// The memcached protocol cannot enumerate keys, so DeletePattern, Clear and
// Keys report cache.ErrUnsupported. The template-cache invalidation after a
// template sync logs the error and goes on; cache-only sync operations record
// it in their result errors, and CacheStats returns it.
package memcached

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/corestack/corestack/cache"
)

// Store is a cache.Store that keeps values in a memcached server.
type Store struct {
	client *memcache.Client
}

var _ cache.Store = (*Store)(nil)

// New returns a Store talking to the given server addresses.
func New(servers ...string) *Store {
	return &Store{client: memcache.New(servers...)}
}

// NewWithClient returns a Store over an existing client.
func NewWithClient(client *memcache.Client) *Store {
	return &Store{client: client}
}

// Get returns the value corresponding to key if present.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := s.client.Get(key)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("memcache get failed for key %q: %w", key, err)
	}
	return item.Value, true, nil
}

// Set saves value to key. A ttl of zero stores without expiry. TTLs beyond
// the protocol's 30-day relative limit are clamped.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	seconds := int64(ttl.Seconds())
	if seconds > 30*24*60*60 || seconds > math.MaxInt32 {
		seconds = 30*24*60*60 - 1
	}
	item := &memcache.Item{Key: key, Value: value, Expiration: int32(seconds)}
	if err := s.client.Set(item); err != nil {
		return fmt.Errorf("memcache set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the value associated with key.
func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.client.Delete(key); err != nil {
		if err == memcache.ErrCacheMiss {
			return nil
		}
		return fmt.Errorf("memcache delete failed for key %q: %w", key, err)
	}
	return nil
}

// DeletePattern is not expressible over the memcached protocol.
func (s *Store) DeletePattern(context.Context, string) ([]string, error) {
	return nil, cache.ErrUnsupported
}

// Clear is not expressible over the memcached protocol. FlushAll is
// deliberately not used: it would drop keys outside the namespace.
func (s *Store) Clear(context.Context, string) error {
	return cache.ErrUnsupported
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Keys is not expressible over the memcached protocol.
func (s *Store) Keys(context.Context, string) ([]string, error) {
	return nil, cache.ErrUnsupported
}

// Info returns empty statistics; per-server stats are not aggregated.
func (s *Store) Info(context.Context) (cache.StoreInfo, error) {
	return cache.StoreInfo{Keys: -1}, nil
}
