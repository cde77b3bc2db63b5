package reasoning

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pocketomega/reasonloop/internal/conversation"
)

// Stats counts what happened during a session.
type Stats struct {
	Accepted      int `json:"accepted"`
	Rejected      int `json:"rejected"`
	ForcedAccepts int `json:"forced_accepts"`
	Evaluations   int `json:"evaluations"`
}

// Session is one run of the reasoning loop for one target message. It is
// single-use: Snapshots may be ranged over once.
type Session struct {
	o       *Orchestrator
	ctx     context.Context
	target  conversation.Message
	history *conversation.Conversation

	consumed atomic.Bool

	mu    sync.Mutex
	done  bool
	items []conversation.ReasoningItem
	err   error
	stats Stats
}

// Snapshots runs the session on the caller's goroutine and yields a snapshot
// after every change to the reasoning list. A capability failure ends the
// sequence with a single (nil, err) pair. Breaking out of the loop cancels
// the in-flight model call.
func (s *Session) Snapshots() iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(nil, ErrSessionConsumed)
			return
		}

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()

		items, err := s.run(ctx, func(snap Snapshot) bool {
			return yield(snap, nil)
		})
		switch {
		case errors.Is(err, errStopped):
			s.finish(nil, ErrSessionAbandoned)
		case err != nil:
			s.finish(nil, err)
			yield(nil, err)
		default:
			s.finish(items, nil)
			s.o.recordFinal(items)
		}
	}
}

// Run drains the session and returns the accepted items.
func (s *Session) Run() ([]conversation.ReasoningItem, error) {
	for _, err := range s.Snapshots() {
		if err != nil {
			return nil, err
		}
	}
	return s.FinalItems()
}

// FinalItems returns the accepted items once the session has finished
// successfully.
func (s *Session) FinalItems() ([]conversation.ReasoningItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		return nil, ErrSessionPending
	}
	if s.err != nil {
		return nil, s.err
	}
	return slices.Clone(s.items), nil
}

// Stats returns the counters collected so far.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) addStat(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}

func (s *Session) finish(items []conversation.ReasoningItem, err error) {
	s.mu.Lock()
	s.done, s.items, s.err = true, items, err
	s.mu.Unlock()
}
