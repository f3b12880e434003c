package repository

import (
	"context"
	"sort"
	"sync"
)

type memoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() KV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryKV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// List pages through keys in order; the cursor is the last key returned.
func (m *memoryKV) List(_ context.Context, cursor string, limit int) (*ListPage, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if cursor == "" || k > cursor {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	if limit <= 0 || len(keys) <= limit {
		return &ListPage{Keys: keys, Complete: true}, nil
	}

	page := keys[:limit]
	return &ListPage{Keys: page, Cursor: page[len(page)-1]}, nil
}
