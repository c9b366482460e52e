package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/memblob"

	"github.com/corestack/corestack/cache"
)

type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) InvalidatePattern(pattern string) {
	r.patterns = append(r.patterns, pattern)
}

func TestCacheSyncInvalidateNamespaces(t *testing.T) {
	ctx := context.Background()
	engine, _, cacheStore := newTestEngine(t)

	require.NoError(t, cacheStore.Set(ctx, "template:a.html", []byte("1"), 0))
	require.NoError(t, cacheStore.Set(ctx, "bccache:a.html", []byte("2"), 0))
	require.NoError(t, cacheStore.Set(ctx, "response:GET./", []byte("3"), 0))
	require.NoError(t, cacheStore.Set(ctx, "unrelated:x", []byte("4"), 0))

	result := engine.SyncCache(ctx, CacheSyncOptions{Operation: OpInvalidate})

	require.Empty(t, result.Errors)
	assert.ElementsMatch(t, []string{"template:a.html", "bccache:a.html", "response:GET./"}, result.InvalidatedKeys)

	ok, _ := cacheStore.Exists(ctx, "unrelated:x")
	assert.True(t, ok, "namespaces outside the set are untouched")
}

func TestCacheSyncInvalidateSpecificKeys(t *testing.T) {
	ctx := context.Background()
	engine, _, cacheStore := newTestEngine(t)
	require.NoError(t, cacheStore.Set(ctx, "template:one", []byte("1"), 0))

	result := engine.SyncCache(ctx, CacheSyncOptions{
		Operation:  OpInvalidate,
		Namespaces: []string{"responses"},
		Keys:       []string{"template:one"},
	})

	require.Empty(t, result.Errors)
	assert.Contains(t, result.InvalidatedKeys, "template:one")
	ok, _ := cacheStore.Exists(ctx, "template:one")
	assert.False(t, ok)
}

func TestCacheSyncGatherInvalidatesStack(t *testing.T) {
	ctx := context.Background()
	invalidator := &recordingInvalidator{}
	store := newTestStorage(t)
	cacheStore := cache.NewMemoryStore()
	engine := New(store, cacheStore, WithStackInvalidator(invalidator))
	require.NoError(t, cacheStore.Set(ctx, "routes:all", []byte("1"), 0))
	require.NoError(t, cacheStore.Set(ctx, "middleware:stack", []byte("2"), 0))

	result := engine.SyncCache(ctx, CacheSyncOptions{
		Operation:  OpInvalidate,
		Namespaces: []string{"gather"},
	})

	require.Empty(t, result.Errors)
	assert.Contains(t, result.InvalidatedKeys, "routes:all")
	assert.Contains(t, result.InvalidatedKeys, "middleware:stack")
	assert.Equal(t, []string{"gather:*"}, invalidator.patterns)
}

func TestCacheSyncWarmReadsTemplatesFromStorage(t *testing.T) {
	ctx := context.Background()
	engine, store, cacheStore := newTestEngine(t)

	writeRemote(t, store, "templates", "index.html", []byte("<html/>"))
	writeRemote(t, store, "templates", "404.html", []byte("lost"))

	result := engine.SyncCache(ctx, CacheSyncOptions{
		Operation:  OpWarm,
		Namespaces: []string{"templates"},
	})

	require.Empty(t, result.Errors)
	assert.ElementsMatch(t, []string{"template:index.html", "template:404.html"}, result.WarmedKeys)

	value, ok, err := cacheStore.Get(ctx, "template:index.html")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("<html/>"), value)
}

func TestCacheSyncRefreshInvalidatesThenWarms(t *testing.T) {
	ctx := context.Background()
	engine, store, cacheStore := newTestEngine(t)

	require.NoError(t, cacheStore.Set(ctx, "template:stale.html", []byte("old"), 0))
	writeRemote(t, store, "templates", "index.html", []byte("fresh"))

	result := engine.SyncCache(ctx, CacheSyncOptions{Operation: OpRefresh})

	require.Empty(t, result.Errors)
	assert.Contains(t, result.InvalidatedKeys, "template:stale.html")
	assert.Contains(t, result.WarmedKeys, "template:index.html")

	ok, _ := cacheStore.Exists(ctx, "template:stale.html")
	assert.False(t, ok)
}

func TestCacheSyncClear(t *testing.T) {
	ctx := context.Background()
	engine, _, cacheStore := newTestEngine(t)
	require.NoError(t, cacheStore.Set(ctx, "templates:a", []byte("1"), 0))

	result := engine.SyncCache(ctx, CacheSyncOptions{
		Operation:  OpClear,
		Namespaces: []string{"templates"},
	})

	require.Empty(t, result.Errors)
	assert.Equal(t, []string{"templates"}, result.ClearedNamespaces)
	ok, _ := cacheStore.Exists(ctx, "templates:a")
	assert.False(t, ok)
}

func TestCacheSyncDryRun(t *testing.T) {
	ctx := context.Background()
	engine, _, cacheStore := newTestEngine(t)
	require.NoError(t, cacheStore.Set(ctx, "template:keep", []byte("1"), 0))

	result := engine.SyncCache(ctx, CacheSyncOptions{Operation: OpRefresh, DryRun: true})

	assert.Equal(t, []string{"DRY_RUN_INVALIDATION"}, result.InvalidatedKeys)
	assert.Equal(t, []string{"DRY_RUN_WARMING"}, result.WarmedKeys)
	ok, _ := cacheStore.Exists(ctx, "template:keep")
	assert.True(t, ok)
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	engine, _, cacheStore := newTestEngine(t)
	require.NoError(t, cacheStore.Set(ctx, "templates:a", []byte("1"), 0))
	require.NoError(t, cacheStore.Set(ctx, "templates:b", []byte("2"), 0))

	stats, err := engine.CacheStats(ctx, []string{"templates"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats["templates"].KeyCount)
}
