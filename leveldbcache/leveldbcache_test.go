package leveldbcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	_, ok, _ := store.Get(ctx, "k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestValueSurvivesEnvelope(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	payload := []byte{0, 1, 2, 3, 255}
	require.NoError(t, store.Set(ctx, "bin", payload, time.Hour))
	value, ok, err := store.Get(ctx, "bin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, value)
}

func TestDeletePatternAndKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Set(ctx, "template:a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "template:b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "other:c", []byte("3"), 0))

	keys, err := store.Keys(ctx, "template:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"template:a", "template:b"}, keys)

	removed, err := store.DeletePattern(ctx, "template:*")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	ok, _ := store.Exists(ctx, "other:c")
	assert.True(t, ok)
}

func TestInfo(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Set(ctx, "a", []byte("11"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("22"), 0))

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Keys)
	assert.Greater(t, info.UsedMemory, int64(0))
}
