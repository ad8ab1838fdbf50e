package locking

import (
	"context"
	"sync"
	"time"
)

// memEntry holds a value with its expiry deadline.
type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemStore is an in-process Store implementation with lazy expiry.
// It serves single-process deployments, lock-bypass paths, and tests.
// Safe for concurrent use.
type MemStore struct {
	mu    sync.Mutex
	store map[string]memEntry
	// now is swappable so tests can control expiry.
	now func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		store: make(map[string]memEntry),
		now:   time.Now,
	}
}

func (m *MemStore) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}

func (m *MemStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.store[key]; ok && !m.expired(e) {
		return false, nil
	}
	m.store[key] = memEntry{value: value, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[key]
	if !ok || m.expired(e) {
		delete(m.store, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = memEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemStore) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}
