package structured

import (
	"context"
	"fmt"
	"strings"

	"github.com/pocketomega/reasonloop/internal/llm"
)

// Request describes one structured generation.
type Request struct {
	Instructions string // system message
	Prompt       string // user message
	Schema       *llm.Schema
	Temperature  *float32
	MaxTokens    int
}

func (r Request) llmRequest() llm.Request {
	var msgs []llm.Message
	if r.Instructions != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: r.Instructions})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: r.Prompt})
	return llm.Request{
		Messages:    msgs,
		Schema:      r.Schema,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}

// Complete runs a single non-streaming call and decodes the answer into T.
// Provider errors are returned unchanged.
func Complete[T any](ctx context.Context, provider llm.LLMProvider, req Request) (T, error) {
	msg, err := provider.CallLLM(ctx, req.llmRequest())
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := Decode[T](msg.Content)
	if err != nil {
		return out, fmt.Errorf("%s: %w", provider.Name(), err)
	}
	return out, nil
}

// CompleteStream runs a streaming call. Each chunk that changes the
// decodable prefix yields a new partial P; the full answer is decoded into T.
// Nothing is sent to the provider until the stream is consumed.
func CompleteStream[P, T any](ctx context.Context, provider llm.LLMProvider, req Request) *Stream[P, T] {
	return NewStream(func(emit func(P) bool) (T, error) {
		var zero T
		callCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			buf     strings.Builder
			last    string
			stopped bool
		)
		msg, err := provider.CallLLMStream(callCtx, req.llmRequest(), func(chunk string) {
			if stopped {
				return
			}
			buf.WriteString(chunk)
			repaired, ok := RepairJSON(ExtractFenced(completeRunes(buf.String())))
			if !ok || repaired == last {
				return
			}
			last = repaired
			partial, ok := DecodePartial[P](repaired)
			if !ok {
				return
			}
			if !emit(partial) {
				stopped = true
				cancel()
			}
		})
		if stopped {
			return zero, ErrStreamAbandoned
		}
		if err != nil {
			return zero, err
		}
		out, err := Decode[T](msg.Content)
		if err != nil {
			return out, fmt.Errorf("%s: %w", provider.Name(), err)
		}
		return out, nil
	})
}
