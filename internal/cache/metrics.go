package cache

import (
	"sync"
	"time"
)

// Metrics tracks cache performance for the query-result cache.
type Metrics struct {
	mu        sync.RWMutex
	hits      int64
	misses    int64
	sets      int64
	errors    int64
	lastReset time.Time
}

// NewMetrics creates a metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{lastReset: time.Now()}
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

// RecordSet records a cache set operation.
func (m *Metrics) RecordSet() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
}

// RecordError records a cache error.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// Stats returns current statistics.
func (m *Metrics) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.hits + m.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(m.hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"hits":     m.hits,
		"misses":   m.misses,
		"sets":     m.sets,
		"errors":   m.errors,
		"hit_rate": hitRate,
		"uptime":   time.Since(m.lastReset).String(),
	}
}
