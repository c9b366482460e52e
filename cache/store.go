// Package cache provides a rule-governed, Vary-aware HTTP response cache as
// server middleware, backed by a pluggable key-value store.
//
// The middleware caches GET and HEAD responses whose status code is in the
// cacheable set, replays hits without invoking downstream, and invalidates
// stored entries when a mutating method succeeds against the same URL.
package cache

import (
	"context"
	"time"
)

// Store is the key-value collaborator used by the cache layer and the sync
// engine. Values are opaque byte slices. Implementations must make a write
// for a key visible to subsequent reads of the same key on the same store
// instance; no other ordering is guaranteed.
//
// Failure of any operation is non-fatal to request handling: callers log and
// degrade to miss / no-op.
type Store interface {
	// Get returns the value for key.
	// Returns (nil, false, nil) if the key doesn't exist.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value against key. A ttl of zero stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the value associated with key.
	Delete(ctx context.Context, key string) error
	// DeletePattern removes every key matching the glob pattern and returns
	// the keys that were removed.
	DeletePattern(ctx context.Context, pattern string) ([]string, error)
	// Clear removes every key in the given namespace (keys prefixed with
	// "<namespace>:").
	Clear(ctx context.Context, namespace string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys returns the keys matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Info returns store statistics.
	Info(ctx context.Context) (StoreInfo, error)
}

// StoreInfo carries the statistics exposed by a Store.
type StoreInfo struct {
	// UsedMemory is the approximate number of bytes held by the store.
	UsedMemory int64
	// KeyspaceHits counts lookups that found a key.
	KeyspaceHits int64
	// KeyspaceMisses counts lookups that found nothing.
	KeyspaceMisses int64
	// Keys is the number of keys currently stored, -1 if unknown.
	Keys int64
}

// HitRate returns the ratio of hits to total lookups.
func (i StoreInfo) HitRate() float64 {
	total := i.KeyspaceHits + i.KeyspaceMisses
	if total == 0 {
		return 0
	}
	return float64(i.KeyspaceHits) / float64(total)
}
