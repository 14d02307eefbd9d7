// Package handle maps small integer IDs to Go values so they can travel
// through native userData pointers without handing Go pointers to C.
package handle

import "sync"

// ID identifies a value stored in a Table. Zero is never issued.
type ID = uintptr

// Table is a concurrency-safe ID to value registry.
type Table[T any] struct {
	mu    sync.RWMutex
	next  ID
	items map[ID]T
}

// New returns an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{items: make(map[ID]T)}
}

// Insert stores v and returns its ID.
func (t *Table[T]) Insert(v T) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.items[id] = v
	return id
}

// Get returns the value stored under id.
func (t *Table[T]) Get(id ID) (T, bool) {
	t.mu.RLock()
	v, ok := t.items[id]
	t.mu.RUnlock()
	return v, ok
}

// Remove deletes id and returns the value it held. Only the first Remove of
// an ID reports ok, which callers use to run teardown exactly once.
func (t *Table[T]) Remove(id ID) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[id]
	if ok {
		delete(t.items, id)
	}
	return v, ok
}

// RemoveFunc deletes every entry for which match reports true and returns
// the removed values.
func (t *Table[T]) RemoveFunc(match func(T) bool) []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []T
	for id, v := range t.items {
		if match(v) {
			delete(t.items, id)
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
