package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestack/corestack/cache"
)

func TestInstrumentedStoreRecordsOperations(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	store := NewInstrumentedStore(cache.NewMemoryStore(), "memory", NewCollector(registry))

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx, "k"))

	families, err := registry.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "cache_store_operations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			var op, result string
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "operation":
					op = label.GetValue()
				case "result":
					result = label.GetValue()
				}
			}
			counts[op+"/"+result] = metric.GetCounter().GetValue()
		}
	}

	assert.Equal(t, float64(1), counts["set/success"])
	assert.Equal(t, float64(1), counts["get/hit"])
	assert.Equal(t, float64(1), counts["get/miss"])
	assert.Equal(t, float64(1), counts["delete/success"])
}

func TestInstrumentedStoreIsTransparent(t *testing.T) {
	ctx := context.Background()
	store := NewInstrumentedStore(cache.NewMemoryStore(), "memory", NewCollector(prometheus.NewRegistry()))

	require.NoError(t, store.Set(ctx, "template:a", []byte("1"), 0))
	keys, err := store.Keys(ctx, "template:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"template:a"}, keys)

	removed, err := store.DeletePattern(ctx, "template:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"template:a"}, removed)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Keys)
}
