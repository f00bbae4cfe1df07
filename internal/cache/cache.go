// Package cache provides a time-boxed in-memory key/value store. Entries
// carry their creation time; a read with a TTL purges and hides anything
// older.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	payload T
	created time.Time
}

// Store retains payloads by key until they age past the TTL supplied at
// read time. It is safe for concurrent use.
type Store[T any] struct {
	mu    sync.Mutex
	items map[string]entry[T]
	now   func() time.Time
}

// New creates an empty store using the wall clock.
func New[T any]() *Store[T] {
	return NewWithClock[T](time.Now)
}

// NewWithClock creates an empty store with an injectable clock for tests.
func NewWithClock[T any](now func() time.Time) *Store[T] {
	return &Store[T]{
		items: make(map[string]entry[T]),
		now:   now,
	}
}

// Get returns the payload stored under key if it is younger than ttl.
// Expired entries are deleted on read.
func (s *Store[T]) Get(key string, ttl time.Duration) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.items[key]
	if !ok {
		return zero, false
	}
	if s.now().Sub(e.created) >= ttl {
		delete(s.items, key)
		return zero, false
	}
	return e.payload, true
}

// Set stores payload under key, stamping it with the current time. An
// existing entry is replaced, not mutated.
func (s *Store[T]) Set(key string, payload T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = entry[T]{payload: payload, created: s.now()}
}

// Clear removes all entries.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]entry[T])
}

// Len reports the number of retained entries, expired or not.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}
