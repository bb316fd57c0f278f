package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumented_CountsHitsMissesSets(t *testing.T) {
	ctx := context.Background()
	c := WithMetrics(NewTTLLRU(4))

	_, hit, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))

	_, hit, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
	assert.Equal(t, int64(1), stats["sets"])
	assert.Equal(t, float64(50), stats["hit_rate"])
}

func TestInstrumented_StatsMergeInnerFigures(t *testing.T) {
	ctx := context.Background()
	c := WithMetrics(NewTTLLRU(4))
	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ttl_lru", stats["type"], "inner cache stats survive the merge")
	assert.Equal(t, 1, stats["size"])
}

type failingCache struct {
	NoOp
}

func (f *failingCache) Get(context.Context, string) (interface{}, bool, error) {
	return nil, false, errors.New("backend down")
}

func (f *failingCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("backend down")
}

func TestInstrumented_CountsErrors(t *testing.T) {
	ctx := context.Background()
	c := WithMetrics(&failingCache{})

	_, _, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(ctx, "k", 1, time.Minute))

	assert.Equal(t, int64(2), c.Metrics().Stats()["errors"])
}
