package state

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Store is a generic state cell with subscription.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run
// outside the lock, on the goroutine that is delivering the round.
type Store[T any] struct {
	mu    sync.Mutex
	state T
	subs  []*subscription

	// notifying is true while some goroutine is delivering rounds.
	// pending counts committed updates whose round has not started.
	notifying bool
	pending   int
}

type subscription struct {
	fn     func()
	active atomic.Bool
}

// New creates a Store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{state: initial}
}

// GetState returns the current value. It always reflects the most recent
// successful SetState, including one whose listeners are still running.
func (s *Store[T]) GetState() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState replaces the value with update(prev) and notifies listeners.
//
// If update returns an error the value is left unchanged, no listener is
// notified and the error is returned as-is. A panicking update also leaves
// the value unchanged.
//
// update runs while the store is locked and must not call back into the
// store. Use the prev argument instead of GetState.
//
// When SetState is called while a round is being delivered (from a
// listener, or from another goroutine), the new value is visible at once
// and its round runs after the current one, on the delivering goroutine.
func (s *Store[T]) SetState(update func(prev T) (T, error)) error {
	if err := s.commit(update); err != nil {
		return err
	}
	s.deliver()
	return nil
}

func (s *Store[T]) commit(update func(prev T) (T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := update(s.state)
	if err != nil {
		return err
	}
	s.state = next
	s.pending++
	return nil
}

// deliver runs queued rounds until none are left. Only one goroutine
// delivers at a time.
func (s *Store[T]) deliver() {
	s.mu.Lock()
	if s.notifying {
		s.mu.Unlock()
		return
	}
	s.notifying = true

	finished := false
	defer func() {
		if !finished {
			// A listener panicked. Drop the remaining rounds so the
			// store stays usable.
			s.mu.Lock()
			s.notifying = false
			s.pending = 0
			s.mu.Unlock()
		}
	}()

	for s.pending > 0 {
		s.pending--
		round := slices.Clone(s.subs)
		s.mu.Unlock()

		for _, sub := range round {
			if sub.active.Load() {
				sub.fn()
			}
		}

		s.mu.Lock()
	}
	s.notifying = false
	s.mu.Unlock()
	finished = true
}

// Subscribe registers listener and returns its unsubscribe function.
//
// Listeners are called with no arguments, in subscription order, once per
// round. Subscribing the same function twice registers it twice.
//
// The returned function reports whether the listener was still
// subscribed: true on the first call, false on every later call.
func (s *Store[T]) Subscribe(listener func()) (unsubscribe func() bool) {
	sub := &subscription{fn: listener}
	sub.active.Store(true)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return func() bool {
		if !sub.active.CompareAndSwap(true, false) {
			return false
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(x *subscription) bool {
			return x == sub
		})
		return true
	}
}

// Subscribers returns the number of active listeners.
func (s *Store[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
