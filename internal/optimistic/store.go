// Package optimistic holds the snapshot store and the three-phase mutation
// protocol shared by every synchronizer: snapshot, optimistic apply, then
// commit or rollback to the snapshot.
package optimistic

import (
	"sync"
	"sync/atomic"
)

// Store owns one snapshot of T. Snapshots are replaced whole, so a reader
// never sees a half-updated value. Values stored must be treated as immutable.
type Store[T any] struct {
	current atomic.Pointer[T]

	mu        sync.Mutex
	listeners map[uint64]func(T)
	nextID    uint64
}

func NewStore[T any](initial T) *Store[T] {
	s := &Store[T]{listeners: make(map[uint64]func(T))}
	s.current.Store(&initial)
	return s
}

func (s *Store[T]) Load() T {
	return *s.current.Load()
}

// Swap publishes next and returns the snapshot it replaced.
func (s *Store[T]) Swap(next T) T {
	prev := s.current.Swap(&next)
	s.notify(next)
	return *prev
}

// Update publishes fn applied to the current snapshot.
func (s *Store[T]) Update(fn func(T) T) T {
	for {
		cur := s.current.Load()
		next := fn(*cur)
		if s.current.CompareAndSwap(cur, &next) {
			s.notify(next)
			return next
		}
	}
}

// Subscribe registers fn to be called with every published snapshot.
func (s *Store[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store[T]) notify(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
