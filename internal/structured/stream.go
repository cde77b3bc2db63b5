package structured

import (
	"iter"
	"sync"
)

// ProduceFunc drives a stream. It calls emit for every partial value and
// returns the final value. emit reports false once the consumer has stopped
// listening; the producer should then stop work and return.
type ProduceFunc[P, T any] func(emit func(P) bool) (T, error)

// Stream is a single-use live sequence of partial values P followed by a
// final value T.
//
// Work starts lazily on the first call to Partials or Collect and runs on the
// caller's goroutine, so abandoning a range loop stops the producer without
// leaving anything running in the background.
type Stream[P, T any] struct {
	produce ProduceFunc[P, T]

	mu      sync.Mutex
	started bool
	done    bool
	final   T
	err     error
}

// NewStream wraps produce in a Stream.
func NewStream[P, T any](produce ProduceFunc[P, T]) *Stream[P, T] {
	return &Stream[P, T]{produce: produce}
}

// Failed returns a stream that yields nothing and reports err from Collect.
func Failed[P, T any](err error) *Stream[P, T] {
	return NewStream(func(func(P) bool) (T, error) {
		var zero T
		return zero, err
	})
}

func (s *Stream[P, T]) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

func (s *Stream[P, T]) finish(final T, err error) {
	s.mu.Lock()
	s.final, s.err, s.done = final, err, true
	s.mu.Unlock()
}

// Partials ranges over the partial values as they arrive. Breaking out of the
// loop cancels the underlying work. A second range yields nothing.
func (s *Stream[P, T]) Partials() iter.Seq[P] {
	return func(yield func(P) bool) {
		if !s.begin() {
			return
		}
		stopped := false
		final, err := s.produce(func(p P) bool {
			if stopped {
				return false
			}
			if !yield(p) {
				stopped = true
			}
			return !stopped
		})
		if stopped && err == nil {
			err = ErrStreamAbandoned
		}
		s.finish(final, err)
	}
}

// Collect returns the final value, driving the stream to completion if no one
// has ranged over Partials yet.
func (s *Stream[P, T]) Collect() (T, error) {
	if s.begin() {
		final, err := s.produce(func(P) bool { return true })
		s.finish(final, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		var zero T
		return zero, ErrStreamConsumed
	}
	return s.final, s.err
}
