package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a Store that keeps values in an in-memory map. It honours
// TTLs lazily (expired entries are dropped on access) and supports glob
// patterns, namespace clears and hit/miss statistics. Suitable for tests and
// single-process deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]memoryEntry
	hits   int64
	misses int64
}

// NewMemoryStore returns a new Store that keeps items in an in-memory map.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memoryEntry{}}
}

// Get returns the value for key and true if present, false if not.
func (c *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[key]
	if ok && entry.expired(time.Now()) {
		delete(c.items, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return entry.value, true, nil
}

// Set saves value to the store with key. A ttl of zero stores without expiry.
func (c *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = entry
	c.mu.Unlock()
	return nil
}

// Delete removes key from the store.
func (c *MemoryStore) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// DeletePattern removes every key matching the glob pattern and returns the
// removed keys.
func (c *MemoryStore) DeletePattern(_ context.Context, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []string
	for key := range c.items {
		if g.Match(key) {
			delete(c.items, key)
			removed = append(removed, key)
		}
	}
	return removed, nil
}

// Clear removes every key in the given namespace.
func (c *MemoryStore) Clear(_ context.Context, namespace string) error {
	prefix := namespace + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

// Exists reports whether key is present and not expired.
func (c *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	return ok && !entry.expired(time.Now()), nil
}

// Keys returns the keys matching the glob pattern.
func (c *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for key, entry := range c.items {
		if !entry.expired(now) && g.Match(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Info returns store statistics.
func (c *MemoryStore) Info(_ context.Context) (StoreInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var used int64
	for key, entry := range c.items {
		used += int64(len(key) + len(entry.value))
	}
	return StoreInfo{
		UsedMemory:     used,
		KeyspaceHits:   c.hits,
		KeyspaceMisses: c.misses,
		Keys:           int64(len(c.items)),
	}, nil
}
