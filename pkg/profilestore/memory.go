package profilestore

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-memory Backend. It is safe for concurrent use and
// intended for tests and single-process tooling.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[key.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	m.data[key.String()] = slices.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...Key) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k.String())
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Scan(_ context.Context, prefix Key) iter.Seq2[Record, error] {
	p := string(prefix.prefixBytes())

	m.mu.RLock()
	snapshot := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			snapshot[k] = slices.Clone(v)
		}
	}
	m.mu.RUnlock()

	return func(yield func(Record, error) bool) {
		for _, k := range slices.Sorted(maps.Keys(snapshot)) {
			if !yield(Record{Key: parseKey([]byte(k)), Value: snapshot[k]}, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error { return nil }
