package cart

import (
	"context"
	"sync"
	"time"
)

// MemoryIdempotency is an in-process IdempotencyStore for single-instance
// deployments without Redis.
type MemoryIdempotency struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	locks   map[string]time.Time
	results map[string]memoryEntry
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryIdempotency keeps locks and results for ttl (24h when zero).
func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryIdempotency{
		ttl:     ttl,
		now:     time.Now,
		locks:   make(map[string]time.Time),
		results: make(map[string]memoryEntry),
	}
}

func (m *MemoryIdempotency) TryLock(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	now := m.now()
	if exp, ok := m.locks[k]; ok && now.Before(exp) {
		return false, nil
	}
	m.locks[k] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, scope+":"+key)
	return nil
}

func (m *MemoryIdempotency) Remember(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[scope+":"+key] = memoryEntry{value: value, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryIdempotency) Recall(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	e, ok := m.results[k]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.results, k)
		return "", false, nil
	}
	return e.value, true, nil
}

var _ IdempotencyStore = (*MemoryIdempotency)(nil)
