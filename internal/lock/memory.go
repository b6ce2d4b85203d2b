package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	owner   string
	expires time.Time
}

// Memory is an in-process Locker with the same held-iff-present and fenced
// release semantics as the Redis implementation. Single-node deployments
// and tests use it.
type Memory struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
}

// NewMemory returns an empty in-memory locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]memoryEntry)}
}

func (m *Memory) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.locks[key]; ok && time.Now().Before(e.expires) {
		return false, nil
	}
	m.locks[key] = memoryEntry{owner: owner, expires: time.Now().Add(ttl)}
	return true, nil
}

func (m *Memory) Release(ctx context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok || e.owner != owner || time.Now().After(e.expires) {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}
