// Package redis provides a cache.Store backed by a Redis server. Redis is
// the reference backend: TTLs, glob patterns and keyspace statistics all map
// onto native commands.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/corestack/corestack/cache"
)

// Config holds the configuration for creating a Redis store.
type Config struct {
	// Address is the Redis server address (e.g. "localhost:6379").
	// Required field.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// KeyPrefix is prepended to every key to avoid collision with other data
	// stored in the same database. Optional.
	KeyPrefix string

	// DialTimeout is the timeout for connecting to Redis.
	// Optional - defaults to 5 seconds.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for reading from Redis.
	// Optional - defaults to 5 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing to Redis.
	// Optional - defaults to 5 seconds.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Store is a cache.Store backed by Redis.
type Store struct {
	client *goredis.Client
	prefix string
}

var _ cache.Store = (*Store)(nil)

// New creates a Store connected to the configured Redis server. The
// connection is verified with a PING. Call Close on the returned store when
// done.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	def := DefaultConfig()
	if config.DialTimeout == 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Store{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient returns a Store over an existing client. The caller keeps
// ownership of the client.
func NewWithClient(client *goredis.Client, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

// Get returns the value corresponding to key if present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get failed for key %q: %w", key, err)
	}
	return value, true, nil
}

// Set saves value to key. A ttl of zero stores without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed for key %q: %w", key, err)
	}
	return nil
}

// DeletePattern removes every key matching the glob pattern and returns the
// removed keys.
func (s *Store) DeletePattern(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.scan(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return nil, fmt.Errorf("redis delete pattern %q failed: %w", pattern, err)
	}
	return keys, nil
}

// Clear removes every key in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	_, err := s.DeletePattern(ctx, namespace+":*")
	return err
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for key %q: %w", key, err)
	}
	return n > 0, nil
}

// Keys returns the keys matching the glob pattern.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.scan(ctx, pattern)
}

func (s *Store) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(pattern), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q failed: %w", pattern, err)
	}
	return keys, nil
}

// Info returns server statistics from INFO memory and INFO stats.
func (s *Store) Info(ctx context.Context) (cache.StoreInfo, error) {
	info := cache.StoreInfo{Keys: -1}

	raw, err := s.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return info, fmt.Errorf("redis info failed: %w", err)
	}
	for _, line := range strings.Split(raw, "\n") {
		name, value, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found {
			continue
		}
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		switch name {
		case "used_memory":
			info.UsedMemory = parsed
		case "keyspace_hits":
			info.KeyspaceHits = parsed
		case "keyspace_misses":
			info.KeyspaceMisses = parsed
		}
	}

	if size, err := s.client.DBSize(ctx).Result(); err == nil {
		info.Keys = size
	}
	return info, nil
}
