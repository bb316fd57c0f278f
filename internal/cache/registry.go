package cache

import (
	"context"
	"fmt"
	"sync"
)

// Registry maps cache names to cache instances. It is owned by the
// composition root and passed explicitly to whoever needs named caches;
// there is no package-level registry.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]Cache
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]Cache)}
}

// Register adds a named cache, replacing any previous cache with the name.
func (r *Registry) Register(name string, c Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[name] = c
}

// Lookup returns the named cache.
func (r *Registry) Lookup(name string) (Cache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names returns all registered cache names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	return names
}

// Stats collects statistics from every registered cache.
func (r *Registry) Stats(ctx context.Context) map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[string]interface{}, len(r.caches))
	for name, c := range r.caches {
		s, err := c.Stats(ctx)
		if err != nil {
			s = map[string]interface{}{"error": err.Error()}
		}
		stats[name] = s
	}
	return stats
}

// ClearAll invalidates every entry in every registered cache.
func (r *Registry) ClearAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for name, c := range r.caches {
		if err := c.Invalidate(ctx, "*"); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("clearing cache %q: %w", name, err)
		}
	}
	return firstErr
}

// CloseAll closes every registered cache.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, c := range r.caches {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing cache %q: %w", name, err)
		}
		delete(r.caches, name)
	}
	return firstErr
}
