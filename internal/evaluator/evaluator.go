// Package evaluator implements the judgement capabilities the reasoning loop
// consults: completeness, similarity and redundancy. Each is a one-shot
// structured call against an llm.LLMProvider.
package evaluator

import "context"

// Evaluator maps an input to a judgement with a single model call.
type Evaluator[In, Out any] interface {
	// Instructions returns the system prompt the evaluator runs with.
	Instructions() string
	// Evaluate performs the call. Provider and decoding errors are returned
	// unchanged.
	Evaluate(ctx context.Context, in In) (Out, error)
}

// Func adapts a closure to Evaluator.
type Func[In, Out any] struct {
	Text string
	Fn   func(ctx context.Context, in In) (Out, error)
}

// Instructions returns f.Text.
func (f Func[In, Out]) Instructions() string { return f.Text }

// Evaluate calls f.Fn.
func (f Func[In, Out]) Evaluate(ctx context.Context, in In) (Out, error) {
	return f.Fn(ctx, in)
}

// Const returns an evaluator that always answers out.
func Const[In, Out any](out Out) Func[In, Out] {
	return Func[In, Out]{Fn: func(context.Context, In) (Out, error) { return out, nil }}
}
