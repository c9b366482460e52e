// Package leveldbcache provides a persistent cache.Store using
// github.com/syndtr/goleveldb/leveldb.
//
// LevelDB has no native expiry, so values carry a small envelope recording
// their deadline; expired entries are dropped lazily on access.
package leveldbcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/corestack/corestack/cache"
)

// Store is a cache.Store with leveldb storage.
type Store struct {
	db *leveldb.DB
}

var _ cache.Store = (*Store)(nil)

// New returns a Store at the given file path.
func New(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb open failed for %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB returns a Store over an already-open database.
func NewWithDB(db *leveldb.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// envelope layout: 8 bytes big-endian unix-nano deadline (0 = no expiry),
// then the value.
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
	raw, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("leveldb get failed for key %q: %w", key, err)
	}
	value, expired := decode(raw)
	if expired {
		_ = s.db.Delete([]byte(key), nil)
		return nil, false, nil
	}
	return value, true, nil
}

// Set saves value to key. A ttl of zero stores without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.db.Put([]byte(key), encode(value, ttl), nil); err != nil {
		return fmt.Errorf("leveldb set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the value associated with key.
func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb delete failed for key %q: %w", key, err)
	}
	return nil
}

// DeletePattern removes every key matching the glob pattern and returns the
// removed keys.
func (s *Store) DeletePattern(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	for _, key := range keys {
		batch.Delete([]byte(key))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("leveldb delete pattern %q failed: %w", pattern, err)
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
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key := string(iter.Key())
		if !g.Match(key) {
			continue
		}
		if _, expired := decode(iter.Value()); expired {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb iteration failed: %w", err)
	}
	return keys, nil
}

// Info returns approximate store statistics. Hit and miss counters are not
// tracked by leveldb.
func (s *Store) Info(_ context.Context) (cache.StoreInfo, error) {
	var used, count int64
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		used += int64(len(iter.Key()) + len(iter.Value()))
		count++
	}
	if err := iter.Error(); err != nil {
		return cache.StoreInfo{}, fmt.Errorf("leveldb iteration failed: %w", err)
	}
	return cache.StoreInfo{UsedMemory: used, Keys: count}, nil
}
