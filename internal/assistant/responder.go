// Package assistant produces a complete assistant reply: the reasoning loop
// followed by the visible answer written from the accepted reasoning.
package assistant

import (
	"context"
	"errors"
	"iter"
	"log"
	"sync"
	"sync/atomic"

	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/generator"
	"github.com/pocketomega/reasonloop/internal/reasoning"
)

// ErrReplyConsumed is yielded when Events is ranged over twice.
var ErrReplyConsumed = errors.New("assistant: reply already consumed")

// ErrReplyIncomplete is returned by Message before the reply has finished
// successfully.
var ErrReplyIncomplete = errors.New("assistant: reply not complete")

// EventKind distinguishes reply events.
type EventKind string

const (
	EventReasoning EventKind = "reasoning"
	EventAnswer    EventKind = "answer"
)

// Event is one update of a reply in progress.
type Event struct {
	Kind      EventKind
	Reasoning reasoning.Snapshot // set for EventReasoning
	Accepted  int                // accepted reasoning items so far
	Answer    string             // partial answer text, set for EventAnswer
}

// AnswerGenerator writes the visible answer.
type AnswerGenerator = generator.Generator[*conversation.Conversation, conversation.PartialPlainText, conversation.PlainTextItem]

// Responder generates assistant replies.
type Responder struct {
	orchestrator *reasoning.Orchestrator
	answers      AnswerGenerator
}

// NewResponder creates a Responder.
func NewResponder(o *reasoning.Orchestrator, answers AnswerGenerator) *Responder {
	return &Responder{orchestrator: o, answers: answers}
}

// Respond prepares a reply to the last message of conv. conv is not
// modified; append Reply.Message to it once the reply completes.
func (r *Responder) Respond(ctx context.Context, conv *conversation.Conversation) *Reply {
	return &Reply{
		responder: r,
		ctx:       ctx,
		conv:      conversation.New(conv.Messages()...),
		target:    conversation.NewMessage(conversation.RoleAssistant),
	}
}

// Reply is a single-use assistant reply in progress.
type Reply struct {
	responder *Responder
	ctx       context.Context
	conv      *conversation.Conversation
	target    conversation.Message

	consumed atomic.Bool

	mu      sync.Mutex
	done    bool
	message conversation.Message
	err     error
	stats   reasoning.Stats
}

// Events runs the reply on the caller's goroutine: reasoning snapshots first,
// then partial answers. A failure ends the sequence with (Event{}, err).
// Breaking out of the loop cancels the in-flight model call.
func (rp *Reply) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if !rp.consumed.CompareAndSwap(false, true) {
			yield(Event{}, ErrReplyConsumed)
			return
		}
		msg, stopped, err := rp.run(yield)
		if stopped {
			rp.finish(conversation.Message{}, reasoning.ErrSessionAbandoned)
			return
		}
		rp.finish(msg, err)
		if err != nil {
			yield(Event{}, err)
		}
	}
}

func (rp *Reply) run(yield func(Event, error) bool) (msg conversation.Message, stopped bool, err error) {
	session := rp.responder.orchestrator.Reason(rp.ctx, rp.target, rp.conv)
	defer func() {
		rp.mu.Lock()
		rp.stats = session.Stats()
		rp.mu.Unlock()
	}()

	for snap, err := range session.Snapshots() {
		if err != nil {
			return msg, false, err
		}
		ev := Event{Kind: EventReasoning, Reasoning: snap, Accepted: session.Stats().Accepted}
		if !yield(ev, nil) {
			return msg, true, nil
		}
	}
	items, err := session.FinalItems()
	if err != nil {
		return msg, false, err
	}

	body := make([]conversation.Item, 0, len(items)+1)
	for _, it := range items {
		body = append(body, it)
	}
	stream, err := rp.responder.answers.Generate(rp.ctx, rp.conv.With(rp.target.WithItems(body...)))
	if err != nil {
		return msg, false, err
	}
	for partial := range stream.Partials() {
		if !yield(Event{Kind: EventAnswer, Accepted: len(items), Answer: partial.String()}, nil) {
			return msg, true, nil
		}
	}
	answer, err := stream.Collect()
	if err != nil {
		return msg, false, err
	}
	log.Printf("[Reason] Reply complete: %d reasoning items, %d answer chars", len(items), len(answer.Text))
	return rp.target.WithItems(append(body, answer)...), false, nil
}

// Wait drains the reply and returns its message.
func (rp *Reply) Wait() (conversation.Message, error) {
	for _, err := range rp.Events() {
		if err != nil {
			return conversation.Message{}, err
		}
	}
	return rp.Message()
}

// Message returns the finished assistant message: the accepted reasoning
// items followed by the answer.
func (rp *Reply) Message() (conversation.Message, error) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	switch {
	case !rp.done:
		return conversation.Message{}, ErrReplyIncomplete
	case rp.err != nil:
		return conversation.Message{}, rp.err
	}
	return rp.message, nil
}

// Stats returns the reasoning counters of the reply.
func (rp *Reply) Stats() reasoning.Stats {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.stats
}

func (rp *Reply) finish(msg conversation.Message, err error) {
	rp.mu.Lock()
	rp.done, rp.message, rp.err = true, msg, err
	rp.mu.Unlock()
}
