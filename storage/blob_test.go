package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/memblob"
)

func newMemStore(t *testing.T) *BlobStore {
	t.Helper()
	store, err := Open(context.Background(), Config{
		BucketURLs: map[string]string{"templates": "mem://", "static": "mem://"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBlobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	bucket := store.Bucket("templates")

	exists, err := bucket.Exists(ctx, "index.html")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, bucket.Write(ctx, "index.html", []byte("<h1/>"), nil))

	exists, err = bucket.Exists(ctx, "index.html")
	require.NoError(t, err)
	assert.True(t, exists)

	content, err := bucket.Read(ctx, "index.html")
	require.NoError(t, err)
	assert.Equal(t, []byte("<h1/>"), content)
}

func TestBlobStoreStat(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	bucket := store.Bucket("templates")

	before := time.Now().Add(-time.Minute)
	require.NoError(t, bucket.Write(ctx, "a.html", []byte("abc"), nil))

	attrs, err := bucket.Stat(ctx, "a.html")
	require.NoError(t, err)
	assert.Equal(t, int64(3), attrs.Size)
	assert.True(t, attrs.ModTime.After(before))
}

func TestBlobStoreList(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	bucket := store.Bucket("templates")

	require.NoError(t, bucket.Write(ctx, "a.html", []byte("1"), nil))
	require.NoError(t, bucket.Write(ctx, "sub/b.html", []byte("2"), nil))

	paths, err := bucket.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.html", "sub/b.html"}, paths)

	paths, err = bucket.List(ctx, "sub/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/b.html"}, paths)
}

func TestBlobStoreContentType(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	bucket := store.Bucket("static")

	err := bucket.Write(ctx, "style.css", []byte("body{}"), &WriteOptions{ContentType: "text/css"})
	require.NoError(t, err)

	content, err := bucket.Read(ctx, "style.css")
	require.NoError(t, err)
	assert.Equal(t, []byte("body{}"), content)
}

func TestUnknownBucketFailsOnOperations(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	bucket := store.Bucket("nope")

	_, err := bucket.Read(ctx, "x")
	assert.Error(t, err)
	_, err = bucket.Exists(ctx, "x")
	assert.Error(t, err)
	err = bucket.Write(ctx, "x", nil, nil)
	assert.Error(t, err)
}

func TestOpenRequiresBuckets(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}
