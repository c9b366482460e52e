// Package compress provides a cache.Store wrapper that transparently
// compresses values before they reach the underlying backend.
//
// Stored values carry a one-byte codec marker so that reads work across
// codec changes: entries written with a different codec are still
// decompressed with the codec they were written with.
package compress

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"

	"github.com/corestack/corestack/cache"
)

// Codec identifies a compression algorithm.
type Codec byte

const (
	// None stores values uncompressed.
	None Codec = iota
	// Gzip uses compress/gzip at the default level.
	Gzip
	// Brotli uses andybalholm/brotli at the default level.
	Brotli
	// Snappy uses golang/snappy block encoding.
	Snappy
)

func (c Codec) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Snappy:
		return "snappy"
	default:
		return "none"
	}
}

// Store wraps an underlying cache.Store with value compression. Key-space
// operations (patterns, clears, key listings) pass through untouched.
type Store struct {
	underlying cache.Store
	codec      Codec
	// minSize is the smallest value worth compressing; smaller values are
	// stored as-is with the None marker.
	minSize int
}

var _ cache.Store = (*Store)(nil)

// New wraps underlying with the given codec. Values shorter than 64 bytes
// are stored uncompressed.
func New(underlying cache.Store, codec Codec) *Store {
	return &Store{underlying: underlying, codec: codec, minSize: 64}
}

// Get retrieves and decompresses the value for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := s.underlying.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	value, err := decompress(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decompress failed for key %q: %w", key, err)
	}
	return value, true, nil
}

// Set compresses and stores value against key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	compressed, err := s.compress(value)
	if err != nil {
		return fmt.Errorf("compress failed for key %q: %w", key, err)
	}
	return s.underlying.Set(ctx, key, compressed, ttl)
}

// Delete removes the value associated with key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.underlying.Delete(ctx, key)
}

// DeletePattern removes every key matching the glob pattern.
func (s *Store) DeletePattern(ctx context.Context, pattern string) ([]string, error) {
	return s.underlying.DeletePattern(ctx, pattern)
}

// Clear removes every key in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	return s.underlying.Clear(ctx, namespace)
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.underlying.Exists(ctx, key)
}

// Keys returns the keys matching the glob pattern.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.underlying.Keys(ctx, pattern)
}

// Info returns the underlying store statistics.
func (s *Store) Info(ctx context.Context) (cache.StoreInfo, error) {
	return s.underlying.Info(ctx)
}

func (s *Store) compress(value []byte) ([]byte, error) {
	codec := s.codec
	if len(value) < s.minSize {
		codec = None
	}

	switch codec {
	case None:
		return append([]byte{byte(None)}, value...), nil
	case Snappy:
		return append([]byte{byte(Snappy)}, snappy.Encode(nil, value)...), nil
	case Gzip, Brotli:
		var buf bytes.Buffer
		buf.WriteByte(byte(codec))
		var w io.WriteCloser
		if codec == Gzip {
			w = gzip.NewWriter(&buf)
		} else {
			w = brotli.NewWriter(&buf)
		}
		if _, err := w.Write(value); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown codec %d", codec)
	}
}

func decompress(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty compressed value")
	}
	codec, payload := Codec(raw[0]), raw[1:]

	switch codec {
	case None:
		return payload, nil
	case Snappy:
		return snappy.Decode(nil, payload)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case Brotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(payload)))
	default:
		return nil, fmt.Errorf("unknown codec marker %d", codec)
	}
}
