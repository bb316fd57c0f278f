package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Memory is an unbounded in-process TTL cache backed by go-cache, used for
// query-result caching when Redis is not configured.
type Memory struct {
	store  *gocache.Cache
	logger *zap.Logger
}

// NewMemory creates an in-process cache with the given default TTL.
func NewMemory(defaultTTL time.Duration, logger *zap.Logger) *Memory {
	return &Memory{
		store:  gocache.New(defaultTTL, 2*defaultTTL),
		logger: logger,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (interface{}, bool, error) {
	value, found := m.store.Get(key)
	return value, found, nil
}

func (m *Memory) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.store.Set(key, value, ttl)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	deleted := 0
	for key := range m.store.Items() {
		if strings.HasPrefix(key, prefix) {
			m.store.Delete(key)
			deleted++
		}
	}
	if deleted > 0 {
		m.logger.Debug("Memory cache invalidated",
			zap.String("pattern", pattern),
			zap.Int("keys_deleted", deleted))
	}
	return nil
}

func (m *Memory) Stats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"connected": true,
		"type":      "memory",
		"size":      m.store.ItemCount(),
	}, nil
}

func (m *Memory) Close() error {
	m.store.Flush()
	return nil
}
