// Package prometheus provides a cache.Store wrapper that records operation
// metrics with Prometheus.
package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corestack/corestack/cache"
)

// Metric result labels.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultSuccess = "success"
	resultError   = "error"
)

// Collector holds the Prometheus instruments shared by instrumented stores.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with the given
// registerer (prometheus.DefaultRegisterer when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_store_operations_total",
			Help: "Cache store operations by operation, backend and result.",
		}, []string{"operation", "backend", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cache_store_operation_duration_seconds",
			Help:    "Cache store operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "backend"}),
	}
	reg.MustRegister(c.operations, c.duration)
	return c
}

func (c *Collector) record(op, backend, result string, elapsed time.Duration) {
	c.operations.WithLabelValues(op, backend, result).Inc()
	c.duration.WithLabelValues(op, backend).Observe(elapsed.Seconds())
}

// InstrumentedStore wraps a cache.Store with Prometheus metrics.
type InstrumentedStore struct {
	underlying cache.Store
	collector  *Collector
	backend    string
}

var _ cache.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps store, labelling metrics with the backend name
// (e.g. "memory", "redis", "leveldb").
func NewInstrumentedStore(store cache.Store, backend string, collector *Collector) *InstrumentedStore {
	return &InstrumentedStore{underlying: store, collector: collector, backend: backend}
}

// Get retrieves a value, recording hit/miss/error.
func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.underlying.Get(ctx, key)
	result := resultMiss
	switch {
	case err != nil:
		result = resultError
	case ok:
		result = resultHit
	}
	s.collector.record("get", s.backend, result, time.Since(start))
	return value, ok, err
}

// Set stores a value, recording success/error.
func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.underlying.Set(ctx, key, value, ttl)
	s.collector.record("set", s.backend, resultOf(err), time.Since(start))
	return err
}

// Delete removes a value, recording success/error.
func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.underlying.Delete(ctx, key)
	s.collector.record("delete", s.backend, resultOf(err), time.Since(start))
	return err
}

// DeletePattern removes keys by pattern, recording success/error.
func (s *InstrumentedStore) DeletePattern(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	keys, err := s.underlying.DeletePattern(ctx, pattern)
	s.collector.record("delete_pattern", s.backend, resultOf(err), time.Since(start))
	return keys, err
}

// Clear clears a namespace, recording success/error.
func (s *InstrumentedStore) Clear(ctx context.Context, namespace string) error {
	start := time.Now()
	err := s.underlying.Clear(ctx, namespace)
	s.collector.record("clear", s.backend, resultOf(err), time.Since(start))
	return err
}

// Exists checks a key, recording success/error.
func (s *InstrumentedStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.underlying.Exists(ctx, key)
	s.collector.record("exists", s.backend, resultOf(err), time.Since(start))
	return ok, err
}

// Keys lists keys by pattern, recording success/error.
func (s *InstrumentedStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	keys, err := s.underlying.Keys(ctx, pattern)
	s.collector.record("keys", s.backend, resultOf(err), time.Since(start))
	return keys, err
}

// Info passes through to the underlying store.
func (s *InstrumentedStore) Info(ctx context.Context) (cache.StoreInfo, error) {
	return s.underlying.Info(ctx)
}

func resultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
