package sessionstore

import (
	"context"
	"sync"

	"github.com/AmmannChristian/go-sierra/oauth2client"
)

var _ oauth2client.Cache = (*Memory)(nil)

// Memory is a process-local cache. The zero value is not usable; call NewMemory.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Set stores a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = append([]byte(nil), value...)
	return nil
}
