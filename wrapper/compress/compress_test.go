package compress

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestack/corestack/cache"
)

func TestRoundTripAllCodecs(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("compressible content "), 100)

	for _, codec := range []Codec{None, Gzip, Brotli, Snappy} {
		t.Run(codec.String(), func(t *testing.T) {
			store := New(cache.NewMemoryStore(), codec)

			require.NoError(t, store.Set(ctx, "k", payload, 0))
			value, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, payload, value)
		})
	}
}

func TestSmallValuesStayUncompressed(t *testing.T) {
	ctx := context.Background()
	underlying := cache.NewMemoryStore()
	store := New(underlying, Gzip)

	require.NoError(t, store.Set(ctx, "k", []byte("tiny"), 0))

	raw, ok, err := underlying.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(None), raw[0])
	assert.Equal(t, []byte("tiny"), raw[1:])
}

func TestCompressionShrinksStoredValue(t *testing.T) {
	ctx := context.Background()
	underlying := cache.NewMemoryStore()
	store := New(underlying, Gzip)
	payload := bytes.Repeat([]byte("aaaaaaaaaa"), 1000)

	require.NoError(t, store.Set(ctx, "k", payload, 0))

	raw, _, err := underlying.Get(ctx, "k")
	require.NoError(t, err)
	assert.Less(t, len(raw), len(payload))
}

func TestReadsAcrossCodecChanges(t *testing.T) {
	ctx := context.Background()
	underlying := cache.NewMemoryStore()
	payload := bytes.Repeat([]byte("payload "), 50)

	writer := New(underlying, Snappy)
	require.NoError(t, writer.Set(ctx, "k", payload, 0))

	// A store reconfigured to another codec still reads old entries.
	reader := New(underlying, Brotli)
	value, ok, err := reader.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, value)
}

func TestKeySpaceOperationsPassThrough(t *testing.T) {
	ctx := context.Background()
	store := New(cache.NewMemoryStore(), Gzip)
	payload := bytes.Repeat([]byte("x"), 200)

	require.NoError(t, store.Set(ctx, "template:a", payload, 0))
	require.NoError(t, store.Set(ctx, "other:b", payload, 0))

	keys, err := store.Keys(ctx, "template:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"template:a"}, keys)

	removed, err := store.DeletePattern(ctx, "template:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"template:a"}, removed)
}
