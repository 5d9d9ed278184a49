package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// TTLMap is a mutex guarded map whose entries may carry an expiry. A zero
// expiry means the entry lives until the process exits.
type TTLMap[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]item[V]
	now   func() time.Time
}

func NewTTLMap[K comparable, V any]() *TTLMap[K, V] {
	return &TTLMap[K, V]{items: map[K]item[V]{}, now: time.Now}
}

// Get returns the value for key if present and not expired.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !it.ExpiresAt.IsZero() && !m.now().Before(it.ExpiresAt) {
		return zero, false
	}
	return it.Value, true
}

// Set stores value under key. ttl <= 0 stores it without expiry.
// Concurrent writers for the same key resolve last-writer-wins.
func (m *TTLMap[K, V]) Set(key K, value V, ttl time.Duration) {
	if m == nil {
		return
	}
	it := item[V]{Value: value}
	if ttl > 0 {
		it.ExpiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
}
