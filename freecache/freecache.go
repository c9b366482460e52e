// Package freecache provides a high-performance, zero-GC overhead cache.Store
// using github.com/coocood/freecache as the underlying storage.
//
// This backend suits applications caching large entry counts with minimal GC
// overhead and automatic LRU eviction. Pattern operations scan the cache with
// the freecache iterator.
package freecache

import (
	"context"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/gobwas/glob"

	"github.com/corestack/corestack/cache"
)

// Store is a cache.Store on freecache with automatic LRU eviction when full.
type Store struct {
	cache *freecache.Cache
}

var _ cache.Store = (*Store)(nil)

// New creates a Store with the given size in bytes. freecache enforces a
// 512KB minimum.
//
// For large cache sizes you may want to call debug.SetGCPercent() with a
// lower value to reduce GC overhead.
func New(size int) *Store {
	return &Store{cache: freecache.NewCache(size)}
}

// Get returns the value for key and true if present, false if not found.
// The context parameter is accepted for interface compliance but not used
// for in-memory operations.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, err := s.cache.Get([]byte(key))
	if err != nil {
		if err == freecache.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("freecache get failed for key %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value with the given key. A ttl of zero stores without
// expiry; entries may still be evicted LRU when the cache fills.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.cache.Set([]byte(key), value, int(ttl.Seconds())); err != nil {
		return fmt.Errorf("freecache set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry with the given key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.cache.Del([]byte(key))
	return nil
}

// DeletePattern removes every key matching the glob pattern and returns the
// removed keys.
func (s *Store) DeletePattern(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		s.cache.Del([]byte(key))
	}
	return keys, nil
}

// Clear removes every key in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	_, err := s.DeletePattern(ctx, namespace+":*")
	return err
}

// Exists reports whether key is present.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	_, err := s.cache.Get([]byte(key))
	if err != nil {
		if err == freecache.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("freecache exists failed for key %q: %w", key, err)
	}
	return true, nil
}

// Keys returns the keys matching the glob pattern by scanning the cache.
func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var keys []string
	iter := s.cache.NewIterator()
	for entry := iter.Next(); entry != nil; entry = iter.Next() {
		key := string(entry.Key)
		if g.Match(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Info returns cache statistics.
func (s *Store) Info(_ context.Context) (cache.StoreInfo, error) {
	return cache.StoreInfo{
		KeyspaceHits:   s.cache.HitCount(),
		KeyspaceMisses: s.cache.MissCount(),
		Keys:           s.cache.EntryCount(),
	}, nil
}
