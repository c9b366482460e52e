package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"

	goredis "github.com/redis/go-redis/v9"
)

// TestContainerBackedStore exercises the store against a real Redis in a
// container. Requires a container runtime; skipped in short mode and when no
// runtime is available.
func TestContainerBackedStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	store := NewWithClient(goredis.NewClient(opts), "it:")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Set(ctx, "template:index.html", []byte("<html/>"), time.Minute))
	require.NoError(t, store.Set(ctx, "bccache:index.html", []byte{1, 2, 3}, time.Minute))

	value, ok, err := store.Get(ctx, "template:index.html")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("<html/>"), value)

	removed, err := store.DeletePattern(ctx, "template:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"template:index.html"}, removed)

	require.NoError(t, store.Clear(ctx, "bccache"))
	ok, _ = store.Exists(ctx, "bccache:index.html")
	assert.False(t, ok)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.UsedMemory, int64(0))
}
