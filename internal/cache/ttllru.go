package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// TTLLRU is a thread-safe bounded cache with per-entry expiry. Reads of a
// live entry refresh its recency; inserting past capacity evicts the least
// recently used entries. Expired entries are evicted on read.
type TTLLRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
	now      func() time.Time
}

type lruEntry struct {
	key    string
	value  interface{}
	expiry time.Time
}

// NewTTLLRU creates a bounded cache holding at most capacity entries.
func NewTTLLRU(capacity int) *TTLLRU {
	if capacity < 1 {
		capacity = 1
	}
	return &TTLLRU{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the live value for key. An expired entry counts as a miss and
// is removed immediately.
func (c *TTLLRU) Get(ctx context.Context, key string) (interface{}, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*lruEntry)
	if c.now().After(entry.expiry) {
		c.removeLocked(elem)
		return nil, false, nil
	}
	c.order.MoveToFront(elem)
	return entry.value, true, nil
}

// Set inserts or refreshes an entry, evicting LRU entries beyond capacity.
func (c *TTLLRU) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry := c.now().Add(ttl)
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiry = expiry
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&lruEntry{key: key, value: value, expiry: expiry})
	c.entries[key] = elem

	for c.order.Len() > c.capacity {
		c.removeLocked(c.order.Back())
	}
	return nil
}

// Delete removes a key.
func (c *TTLLRU) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Invalidate removes all keys matching a prefix pattern ("query:*" removes
// every key starting with "query:"); "*" clears the cache.
func (c *TTLLRU) Invalidate(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
		}
	}
	return nil
}

// Stats returns size and capacity.
func (c *TTLLRU) Stats(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"connected": true,
		"type":      "ttl_lru",
		"size":      c.order.Len(),
		"capacity":  c.capacity,
	}, nil
}

// Close is a no-op; the cache holds no external resources.
func (c *TTLLRU) Close() error {
	return nil
}

// Len returns the current number of entries, expired or not.
func (c *TTLLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *TTLLRU) removeLocked(elem *list.Element) {
	entry := elem.Value.(*lruEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
