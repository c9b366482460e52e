// Package diskcache provides a persistent cache.Store using the diskv
// package to supplement an in-memory map with disk storage.
//
// Keys are hex-encoded into filenames so that the key space survives a
// round-trip through the filesystem and pattern scans can recover original
// keys. Values carry an expiry envelope; diskv has no native TTL.
package diskcache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/peterbourgon/diskv"

	"github.com/corestack/corestack/cache"
)

// Store is a cache.Store that supplements an in-memory map with persistent
// disk storage.
type Store struct {
	d *diskv.Diskv
}

var _ cache.Store = (*Store)(nil)

// New returns a Store storing files under basePath with a 100MB memory
// cache.
func New(basePath string) *Store {
	return &Store{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		CacheSizeMax: 100 * 1024 * 1024,
	})}
}

// NewWithDiskv returns a Store using the provided Diskv store.
func NewWithDiskv(d *diskv.Diskv) *Store {
	return &Store{d: d}
}

func filename(key string) string {
	return hex.EncodeToString([]byte(key))
}

func keyFromFilename(name string) (string, bool) {
	raw, err := hex.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func encode(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, 8+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(time.Now().Add(ttl).UnixNano()))
	}
	copy(buf[8:], value)
	return buf
}

func decode(raw []byte) (value []byte, expired bool) {
	if len(raw) < 8 {
		return nil, true
	}
	deadline := binary.BigEndian.Uint64(raw)
	if deadline != 0 && time.Now().UnixNano() > int64(deadline) {
		return nil, true
	}
	return raw[8:], false
}

// Get returns the value corresponding to key if present and unexpired.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := s.d.Read(filename(key))
	if err != nil {
		// File not found is a miss, not an error.
		return nil, false, nil
	}
	value, expired := decode(raw)
	if expired {
		_ = s.d.Erase(filename(key))
		return nil, false, nil
	}
	return value, true, nil
}

// Set saves value to key. A ttl of zero stores without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.d.Write(filename(key), encode(value, ttl)); err != nil {
		return fmt.Errorf("diskcache set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the value associated with key.
func (s *Store) Delete(_ context.Context, key string) error {
	// Erase errors on missing files are not real errors.
	_ = s.d.Erase(filename(key))
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
		_ = s.d.Erase(filename(key))
	}
	return keys, nil
}

// Clear removes every key in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	_, err := s.DeletePattern(ctx, namespace+":*")
	return err
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Keys returns the keys matching the glob pattern, skipping expired entries.
func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var keys []string
	for name := range s.d.Keys(nil) {
		key, ok := keyFromFilename(name)
		if !ok || !g.Match(key) {
			continue
		}
		if raw, err := s.d.Read(name); err == nil {
			if _, expired := decode(raw); expired {
				continue
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Info returns approximate store statistics. Hit and miss counters are not
// tracked by diskv.
func (s *Store) Info(_ context.Context) (cache.StoreInfo, error) {
	var used, count int64
	for name := range s.d.Keys(nil) {
		if raw, err := s.d.Read(name); err == nil {
			used += int64(len(raw))
			count++
		}
	}
	return cache.StoreInfo{UsedMemory: used, Keys: count}, nil
}
