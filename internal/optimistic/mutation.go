package optimistic

import (
	"context"
	"errors"
)

var ErrMutationFinished = errors.New("mutation already committed or rolled back")

// Mutation is one in-flight optimistic change against a Store.
//
// Concurrent mutations on the same store each capture their own snapshot and
// are not serialized against each other; the last authoritative refetch wins.
type Mutation[T any] struct {
	store    *Store[T]
	snapshot T
	applied  T
	finished bool
}

// Begin captures the current snapshot.
func Begin[T any](s *Store[T]) *Mutation[T] {
	return &Mutation[T]{store: s, snapshot: s.Load()}
}

func (m *Mutation[T]) Snapshot() T { return m.snapshot }

// Apply publishes fn(snapshot) immediately and returns it.
func (m *Mutation[T]) Apply(fn func(T) T) T {
	m.applied = fn(m.snapshot)
	m.store.Swap(m.applied)
	return m.applied
}

// Commit keeps the optimistic state; the caller follows up with an authoritative read.
func (m *Mutation[T]) Commit() error {
	if m.finished {
		return ErrMutationFinished
	}
	m.finished = true
	return nil
}

// Rollback restores the exact snapshot captured by Begin.
func (m *Mutation[T]) Rollback() error {
	if m.finished {
		return ErrMutationFinished
	}
	m.finished = true
	m.store.Swap(m.snapshot)
	return nil
}

// Run executes the whole protocol: apply, then call, then commit on success
// or rollback on failure. The error returned is call's error.
func Run[T any](ctx context.Context, s *Store[T], apply func(T) T, call func(context.Context) error) error {
	m := Begin(s)
	m.Apply(apply)
	if err := call(ctx); err != nil {
		_ = m.Rollback()
		return err
	}
	return m.Commit()
}
