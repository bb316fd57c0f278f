package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

// Cache is the contract shared by every cache implementation.
type Cache interface {
	// Get retrieves data from cache.
	// Returns: data, hit/miss, error.
	Get(ctx context.Context, key string) (interface{}, bool, error)

	// Set stores data in cache with TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Invalidate removes all keys matching a prefix pattern ("query:*").
	Invalidate(ctx context.Context, pattern string) error

	// Stats returns cache statistics.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes any connections.
	Close() error
}

// Key builds a stable cache key from a source name and a query text.
func Key(source, query string) string {
	hash := sha256.Sum256([]byte(source + ":" + query))
	return fmt.Sprintf("query:%s:%x", source, hash[:8])
}

// NoOp is a cache that does nothing, used when caching is disabled.
type NoOp struct{}

func (n *NoOp) Get(ctx context.Context, key string) (interface{}, bool, error) {
	return nil, false, nil
}

func (n *NoOp) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (n *NoOp) Delete(ctx context.Context, key string) error {
	return nil
}

func (n *NoOp) Invalidate(ctx context.Context, pattern string) error {
	return nil
}

func (n *NoOp) Stats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"connected": false,
		"type":      "noop",
	}, nil
}

func (n *NoOp) Close() error {
	return nil
}
