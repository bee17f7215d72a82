package safe

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Map is a concurrency & type safe map
type Map[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

// NewMap returns a Map holding a copy of the data
func NewMap[T any](data map[string]T) *Map[T] {
	m := &Map[T]{data: map[string]T{}}
	for k, v := range data {
		m.data[k] = v
	}
	return m
}

func (m *Map[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Map[T]) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

func (m *Map[T]) Set(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]T{}
	}
	m.data[key] = value
}

// SetIfAbsent sets the value if the key is not present and reports whether it was set
func (m *Map[T]) SetIfAbsent(key string, value T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]T{}
	}
	if _, ok := m.data[key]; ok {
		return false
	}
	m.data[key] = value
	return true
}

func (m *Map[T]) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *Map[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns the keys in ascending order
func (m *Map[T]) Keys() []string {
	m.mu.RLock()
	keys := lo.Keys(m.data)
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (m *Map[T]) Range(fn func(key string, t T) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, m := range m.data {
		if !fn(key, m) {
			break
		}
	}
}
