// Package reasoning drives the chain-of-thought loop: it asks for reasoning
// items one at a time, gates each candidate through similarity and redundancy
// checks, re-estimates how much reasoning is left, and streams snapshots of
// the growing list to its caller.
package reasoning

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"

	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/evaluator"
	"github.com/pocketomega/reasonloop/internal/generator"
	"github.com/pocketomega/reasonloop/internal/util"
)

// DefaultSimilarityThreshold is the score at or above which a candidate is
// rejected without consulting the redundancy evaluator.
const DefaultSimilarityThreshold = 0.90

var (
	// ErrSessionConsumed is yielded when Snapshots is ranged over twice.
	ErrSessionConsumed = errors.New("reasoning: session already consumed")
	// ErrSessionAbandoned is reported by FinalItems after the consumer
	// stopped iterating before the session finished.
	ErrSessionAbandoned = errors.New("reasoning: session abandoned")
	// ErrSessionPending is reported by FinalItems before the session ends.
	ErrSessionPending = errors.New("reasoning: session not finished")
)

type (
	CompletenessEvaluator = evaluator.Evaluator[*conversation.Conversation, evaluator.CompletenessEstimate]
	SimilarityEvaluator   = evaluator.Evaluator[evaluator.TextPair, float64]
	RedundancyEvaluator   = evaluator.Evaluator[evaluator.RedundancyInput, bool]
	ItemGenerator         = generator.Generator[*conversation.Conversation, conversation.PartialReasoningItem, conversation.ReasoningItem]
)

// Capabilities are the model-backed collaborators of an Orchestrator.
type Capabilities struct {
	Completeness CompletenessEvaluator
	Similarity   SimilarityEvaluator
	Redundancy   RedundancyEvaluator
	Items        ItemGenerator
}

// Limits are safety caps on top of the loop. The zero value imposes none,
// so a session runs until the completeness estimate reaches zero and a
// candidate may be regenerated any number of times.
type Limits struct {
	// MaxItems ends the session normally once this many items are accepted.
	MaxItems int
	// MaxRejectionsPerSlot force-accepts the next candidate for a slot after
	// this many rejections.
	MaxRejectionsPerSlot int
	// SimilarityThreshold overrides DefaultSimilarityThreshold when > 0.
	SimilarityThreshold float64
}

func (l Limits) threshold() float64 {
	if l.SimilarityThreshold > 0 {
		return l.SimilarityThreshold
	}
	return DefaultSimilarityThreshold
}

// Orchestrator runs reasoning sessions. It keeps no per-session state, so one
// Orchestrator may serve many concurrent sessions.
type Orchestrator struct {
	caps   Capabilities
	limits Limits

	mu   sync.Mutex
	last []conversation.ReasoningItem
}

// New creates an Orchestrator.
func New(caps Capabilities, limits Limits) *Orchestrator {
	return &Orchestrator{caps: caps, limits: limits}
}

// Reason prepares a session that reasons about target, the in-progress
// message that will follow conv. Neither argument is modified. No work
// happens until the session's Snapshots are ranged over. A nil conv is an
// empty history.
func (o *Orchestrator) Reason(ctx context.Context, target conversation.Message, conv *conversation.Conversation) *Session {
	if conv == nil {
		conv = conversation.New()
	}
	return &Session{
		o:       o,
		ctx:     ctx,
		target:  target.WithItems(),
		history: conversation.New(conv.Messages()...),
	}
}

// FinalItems returns the accepted items of the most recently completed
// session.
func (o *Orchestrator) FinalItems() []conversation.ReasoningItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.last)
}

func (o *Orchestrator) recordFinal(items []conversation.ReasoningItem) {
	o.mu.Lock()
	o.last = slices.Clone(items)
	o.mu.Unlock()
}

// loopState is owned by the goroutine ranging over a session.
type loopState struct {
	accepted         []conversation.ReasoningItem
	additionalNeeded int
	untilNextEval    int
}

// errStopped signals that the consumer broke out of the snapshot range.
var errStopped = errors.New("consumer stopped")

// run is the production loop.
func (s *Session) run(ctx context.Context, emit func(Snapshot) bool) ([]conversation.ReasoningItem, error) {
	var st loopState
	if err := s.evaluate(ctx, &st, "initial"); err != nil {
		return nil, err
	}

	limits := s.o.limits
	rejections := 0
	for st.additionalNeeded > 0 {
		if limits.MaxItems > 0 && len(st.accepted) >= limits.MaxItems {
			log.Printf("[Reason] Item cap %d reached with %d still estimated, finishing", limits.MaxItems, st.additionalNeeded)
			break
		}

		candidate, err := s.generate(ctx, st.accepted, emit)
		if err != nil {
			return nil, err
		}

		reject, err := s.shouldReject(ctx, st.accepted, candidate)
		if err != nil {
			return nil, err
		}
		if reject {
			if limits.MaxRejectionsPerSlot > 0 && rejections >= limits.MaxRejectionsPerSlot {
				log.Printf("[Reason] Rejection cap %d reached for slot %d, force-accepting %q", limits.MaxRejectionsPerSlot, len(st.accepted)+1, candidate.Title)
				s.addStat(func(c *Stats) { c.ForcedAccepts++ })
			} else {
				rejections++
				s.addStat(func(c *Stats) { c.Rejected++ })
				if !emit(Merge(st.accepted, nil)) {
					return nil, errStopped
				}
				continue
			}
		}

		rejections = 0
		st.accepted = append(st.accepted, candidate)
		s.addStat(func(c *Stats) { c.Accepted++ })
		if !emit(Merge(st.accepted, nil)) {
			return nil, errStopped
		}

		st.additionalNeeded--
		st.untilNextEval--
		if candidate.EvalNeeded {
			st.untilNextEval = 0
		}
		if st.additionalNeeded > 0 && st.untilNextEval <= 0 {
			if err := s.evaluate(ctx, &st, "re-evaluation"); err != nil {
				return nil, err
			}
		}
	}
	return st.accepted, nil
}

// evaluate overwrites both counters with a fresh completeness estimate for
// the accepted items.
func (s *Session) evaluate(ctx context.Context, st *loopState, phase string) error {
	est, err := s.o.caps.Completeness.Evaluate(ctx, s.derived(st.accepted))
	if err != nil {
		return err
	}
	s.addStat(func(c *Stats) { c.Evaluations++ })
	log.Printf("[Reason] Completeness %s: %d more needed, next check in %d (%s)",
		phase, est.ItemsStillNeeded, est.ItemsUntilNextCheck, util.OneLine(est.Explanation, 160))
	if est.ItemsUntilNextCheck > est.ItemsStillNeeded {
		log.Printf("[Reason] Warning: next check %d exceeds items still needed %d", est.ItemsUntilNextCheck, est.ItemsStillNeeded)
	}
	st.additionalNeeded = est.ItemsStillNeeded
	st.untilNextEval = est.ItemsUntilNextCheck
	return nil
}

// generate streams one candidate, emitting a placeholder snapshot before the
// first partial and a fresh snapshot after every partial.
func (s *Session) generate(ctx context.Context, accepted []conversation.ReasoningItem, emit func(Snapshot) bool) (conversation.ReasoningItem, error) {
	stream, err := s.o.caps.Items.Generate(ctx, s.derived(accepted))
	if err != nil {
		return conversation.ReasoningItem{}, err
	}
	if !emit(Merge(accepted, &conversation.PartialReasoningItem{})) {
		return conversation.ReasoningItem{}, errStopped
	}

	stopped := false
	for partial := range stream.Partials() {
		if !emit(Merge(accepted, &partial)) {
			stopped = true
			break
		}
	}
	if stopped {
		return conversation.ReasoningItem{}, errStopped
	}
	return stream.Collect()
}

// shouldReject applies the acceptance gate to candidate.
func (s *Session) shouldReject(ctx context.Context, accepted []conversation.ReasoningItem, candidate conversation.ReasoningItem) (bool, error) {
	var similarity float64
	if n := len(accepted); n > 0 {
		score, err := s.o.caps.Similarity.Evaluate(ctx, evaluator.TextPair{A: accepted[n-1].Content, B: candidate.Content})
		if err != nil {
			return false, err
		}
		similarity = score
	}
	log.Printf("[Reason] Similarity with last item: %.2f", similarity)

	if threshold := s.o.limits.threshold(); similarity >= threshold {
		log.Printf("[Reason] Rejecting %q: similarity %.2f >= %.2f", candidate.Title, similarity, threshold)
		return true, nil
	}

	withCandidate := append(slices.Clone(accepted), candidate)
	redundant, err := s.o.caps.Redundancy.Evaluate(ctx, evaluator.RedundancyInput{
		Conversation: s.derived(withCandidate),
		Candidate:    candidate,
		Similarity:   similarity,
	})
	if err != nil {
		return false, err
	}
	log.Printf("[Reason] Redundancy verdict for %q: %v", candidate.Title, redundant)
	return redundant, nil
}

// derived returns history followed by the target message holding items.
func (s *Session) derived(items []conversation.ReasoningItem) *conversation.Conversation {
	body := make([]conversation.Item, len(items))
	for i, it := range items {
		body[i] = it
	}
	return s.history.With(s.target.WithItems(body...))
}
