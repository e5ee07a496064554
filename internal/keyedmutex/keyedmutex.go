// Package keyedmutex provides per-key serialization: callers lock a
// string key and only contend with other callers locking the same key.
package keyedmutex

import "sync"

// Map hands out a *sync.Mutex per key, lazily, and reaps it once no
// caller holds a reference.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	refcount int
}

// New builds an empty Map.
func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Lock blocks until key is uncontended, then locks it. The returned
// function must be called exactly once to release it.
func (m *Map) Lock(key string) func() {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refcount++
	m.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		m.mu.Lock()
		e.refcount--
		if e.refcount == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
