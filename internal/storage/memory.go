// ABOUTME: In-memory KV implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject storage failures

package storage

import (
	"context"
	"sync"
)

// MemoryKV is an in-memory KV implementation for testing. Setting
// GetErr or SetErr makes the corresponding operations fail, which is
// how tests exercise the engine's fail-open behavior.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte

	// Injected failures. When non-nil, the matching operation returns
	// the error instead of touching data. Set these before handing the
	// store to the engine.
	GetErr    error
	SetErr    error
	RemoveErr error

	writes int
}

// NewMemoryKV creates a new empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns the value stored under key, or ErrNotFound.
func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to avoid external modification
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under key.
func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.writes++
	return nil
}

// WriteCount returns the number of successful Set calls.
func (m *MemoryKV) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Remove deletes key.
func (m *MemoryKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	delete(m.data, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryKV) Close() error {
	return nil
}
