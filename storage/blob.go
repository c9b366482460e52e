package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gocloud.dev/blob"
)

// Config holds the configuration for a blob-backed Store.
type Config struct {
	// BucketURLs maps logical bucket names to Go Cloud blob URLs
	// (e.g. "s3://assets?region=us-west-2", "file:///var/data", "mem://").
	BucketURLs map[string]string

	// KeyPrefix is prepended to all object keys (default: none).
	KeyPrefix string

	// Timeout bounds each blob operation (default: 30s).
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second}
}

// BlobStore implements Store on Go Cloud blob buckets.
type BlobStore struct {
	buckets     map[string]*bucket
	ownsBuckets bool
}

type bucket struct {
	b         *blob.Bucket
	keyPrefix string
	timeout   time.Duration
}

// Open creates a Store by opening each configured bucket URL. Remember to
// import the drivers for the URL schemes in use (fileblob, memblob, s3blob).
// Call Close to clean up.
func Open(ctx context.Context, config Config) (*BlobStore, error) {
	if len(config.BucketURLs) == 0 {
		return nil, fmt.Errorf("at least one bucket URL must be provided")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	buckets := make(map[string]*bucket, len(config.BucketURLs))
	for name, url := range config.BucketURLs {
		b, err := blob.OpenBucket(ctx, url)
		if err != nil {
			for _, opened := range buckets {
				_ = opened.b.Close()
			}
			return nil, fmt.Errorf("failed to open bucket %q: %w", name, err)
		}
		buckets[name] = &bucket{b: b, keyPrefix: config.KeyPrefix, timeout: config.Timeout}
	}
	return &BlobStore{buckets: buckets, ownsBuckets: true}, nil
}

// NewWithBuckets creates a Store over already-opened buckets. The caller is
// responsible for closing them.
func NewWithBuckets(buckets map[string]*blob.Bucket, keyPrefix string, timeout time.Duration) *BlobStore {
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}
	out := make(map[string]*bucket, len(buckets))
	for name, b := range buckets {
		out[name] = &bucket{b: b, keyPrefix: keyPrefix, timeout: timeout}
	}
	return &BlobStore{buckets: out}
}

// Bucket returns the named logical bucket. Unknown names return an empty
// bucket whose operations fail, keeping errors on the operation path.
func (s *BlobStore) Bucket(name string) Bucket {
	if b, ok := s.buckets[name]; ok {
		return b
	}
	return unknownBucket(name)
}

// Close closes the underlying buckets if this store opened them.
func (s *BlobStore) Close() error {
	if !s.ownsBuckets {
		return nil
	}
	var firstErr error
	for name, b := range s.buckets {
		if err := b.b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close bucket %q: %w", name, err)
		}
	}
	return firstErr
}

func (b *bucket) key(path string) string {
	return b.keyPrefix + path
}

func (b *bucket) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b *bucket) Exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.b.Exists(ctx, b.key(path))
}

func (b *bucket) Read(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	data, err := b.b.ReadAll(ctx, b.key(path))
	if err != nil {
		return nil, fmt.Errorf("blob read failed for %q: %w", path, err)
	}
	return data, nil
}

func (b *bucket) Write(ctx context.Context, path string, data []byte, opts *WriteOptions) error {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	var wopts *blob.WriterOptions
	if opts != nil && opts.ContentType != "" {
		wopts = &blob.WriterOptions{ContentType: opts.ContentType}
	}
	if err := b.b.WriteAll(ctx, b.key(path), data, wopts); err != nil {
		return fmt.Errorf("blob write failed for %q: %w", path, err)
	}
	return nil
}

func (b *bucket) Stat(ctx context.Context, path string) (Attributes, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	attrs, err := b.b.Attributes(ctx, b.key(path))
	if err != nil {
		return Attributes{}, fmt.Errorf("blob stat failed for %q: %w", path, err)
	}
	return Attributes{ModTime: attrs.ModTime, Size: attrs.Size}, nil
}

func (b *bucket) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	iter := b.b.List(&blob.ListOptions{Prefix: b.key(prefix)})
	var paths []string
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blob list failed for prefix %q: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		paths = append(paths, strings.TrimPrefix(obj.Key, b.keyPrefix))
	}
	return paths, nil
}

type unknownBucket string

func (b unknownBucket) Exists(context.Context, string) (bool, error) {
	return false, fmt.Errorf("unknown bucket %q", string(b))
}

func (b unknownBucket) Read(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("unknown bucket %q", string(b))
}

func (b unknownBucket) Write(context.Context, string, []byte, *WriteOptions) error {
	return fmt.Errorf("unknown bucket %q", string(b))
}

func (b unknownBucket) Stat(context.Context, string) (Attributes, error) {
	return Attributes{}, fmt.Errorf("unknown bucket %q", string(b))
}

func (b unknownBucket) List(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("unknown bucket %q", string(b))
}
