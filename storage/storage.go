// Package storage defines the bucketed object-store collaborator used by the
// sync engine, with an implementation backed by Go Cloud Development Kit
// blob storage (S3, GCS, Azure, local filesystem, in-memory).
package storage

import (
	"context"
	"time"
)

// Attributes describes a stored object.
type Attributes struct {
	ModTime time.Time
	Size    int64
}

// WriteOptions carries optional metadata for a write.
type WriteOptions struct {
	ContentType string
}

// Bucket is one logical bucket of the object store.
type Bucket interface {
	// Exists reports whether path is present in the bucket.
	Exists(ctx context.Context, path string) (bool, error)
	// Read returns the full content of path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write stores data at path. opts may be nil.
	Write(ctx context.Context, path string, data []byte, opts *WriteOptions) error
	// Stat returns the attributes of path.
	Stat(ctx context.Context, path string) (Attributes, error)
	// List returns the paths stored under prefix. The sync engine uses it to
	// discover remote-only files when pulling.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Store is the bucketed object-store collaborator. Bucket returns the named
// logical bucket; the conventional names are "templates", "settings" and
// "static".
type Store interface {
	Bucket(name string) Bucket
}
