package cache

import (
	"context"
	"time"
)

// Instrumented wraps a Cache and counts hits, misses, sets and errors. The
// counters are folded into Stats so the registry surfaces them alongside the
// inner cache's own figures.
type Instrumented struct {
	inner   Cache
	metrics *Metrics
}

// WithMetrics wraps a cache with a fresh metrics tracker.
func WithMetrics(inner Cache) *Instrumented {
	return &Instrumented{inner: inner, metrics: NewMetrics()}
}

// Metrics exposes the tracker, mainly for tests.
func (i *Instrumented) Metrics() *Metrics { return i.metrics }

func (i *Instrumented) Get(ctx context.Context, key string) (interface{}, bool, error) {
	value, hit, err := i.inner.Get(ctx, key)
	switch {
	case err != nil:
		i.metrics.RecordError()
	case hit:
		i.metrics.RecordHit()
	default:
		i.metrics.RecordMiss()
	}
	return value, hit, err
}

func (i *Instrumented) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	err := i.inner.Set(ctx, key, value, ttl)
	if err != nil {
		i.metrics.RecordError()
	} else {
		i.metrics.RecordSet()
	}
	return err
}

func (i *Instrumented) Delete(ctx context.Context, key string) error {
	return i.inner.Delete(ctx, key)
}

func (i *Instrumented) Invalidate(ctx context.Context, pattern string) error {
	return i.inner.Invalidate(ctx, pattern)
}

func (i *Instrumented) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats, err := i.inner.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range i.metrics.Stats() {
		stats[k] = v
	}
	return stats, nil
}

func (i *Instrumented) Close() error {
	return i.inner.Close()
}
