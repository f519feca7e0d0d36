package backend

import (
	"sort"
	"sync"
)

// Memory is an in-process backend, the always-available default (selected
// with -b memory) that serves as both the smoke-test target and the only
// backend that supports FirstKey/NextKey iteration. A sync.RWMutex-guarded
// map store, trimmed to the Store/Iterable contract nmdb needs (no
// Stats/List surface — those live in internal/stats, per spec.md's
// 21-counter vector rather than a backend-local metric).
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[string(key)] = stored
	return nil
}

func (m *Memory) Del(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *Memory) Close() error { return nil }

// FirstKey and NextKey implement Iterable over a stable sorted snapshot of
// the key space, satisfying the "at-least-once visit, no ordering
// guarantee" contract with a concrete (and therefore testable) ordering.
func (m *Memory) FirstKey() ([]byte, bool) {
	keys := m.sortedKeys()
	if len(keys) == 0 {
		return nil, false
	}
	return []byte(keys[0]), true
}

func (m *Memory) NextKey(prev []byte) ([]byte, bool) {
	keys := m.sortedKeys()
	idx := sort.SearchStrings(keys, string(prev))
	if idx < len(keys) && keys[idx] == string(prev) {
		idx++
	}
	if idx >= len(keys) {
		return nil, false
	}
	return []byte(keys[idx]), true
}

func (m *Memory) sortedKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
