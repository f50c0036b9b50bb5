package partition

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend. It is safe for concurrent use.
type MemoryBackend struct {
	mu         sync.RWMutex
	partitions map[string]map[string]*Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		partitions: make(map[string]map[string]*Entry),
	}
}

// Open creates the named partition if absent.
func (m *MemoryBackend) Open(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.partitions[name]; !ok {
		m.partitions[name] = make(map[string]*Entry)
	}
	return nil
}

// Get returns the entry stored under key, or ErrMiss.
func (m *MemoryBackend) Get(ctx context.Context, name, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.partitions[name]
	if !ok {
		return nil, ErrMiss
	}
	entry, ok := entries[key]
	if !ok {
		return nil, ErrMiss
	}
	return entry, nil
}

// Put stores the entry under key, creating the partition if needed.
func (m *MemoryBackend) Put(ctx context.Context, name, key string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.partitions[name]
	if !ok {
		entries = make(map[string]*Entry)
		m.partitions[name] = entries
	}
	entries[key] = entry
	return nil
}

// Names lists all partition names in sorted order.
func (m *MemoryBackend) Names(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Drop deletes the named partition and all its entries.
func (m *MemoryBackend) Drop(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, name)
	return nil
}
