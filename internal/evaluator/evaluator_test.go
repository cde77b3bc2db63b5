package evaluator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/llm/llmtest"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/structured"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(text string) *llmtest.Fake {
	return llmtest.New(func(llm.Request) (string, error) { return text, nil })
}

func history() *conversation.Conversation {
	return conversation.New(
		conversation.UserText("first question"),
		conversation.NewMessage(conversation.RoleAssistant,
			conversation.ReasoningItem{Title: "Old step", Content: "old reasoning"},
			conversation.PlainTextItem{Text: "old answer"},
		),
		conversation.UserText("second question"),
		conversation.NewMessage(conversation.RoleAssistant,
			conversation.ReasoningItem{Title: "New step", Content: "current reasoning"},
		),
	)
}

func TestCompleteness_DecodesEstimateAndHidesPriorReasoning(t *testing.T) {
	fake := answer(`{"items_still_needed":3,"items_until_next_check":2,"explanation":"Initial estimate"}`)
	ev := NewCompleteness(fake, prompt.NewLoader("", ""), config.Defaults().Profiles.Default)

	est, err := ev.Evaluate(context.Background(), history())
	require.NoError(t, err)
	assert.Equal(t, CompletenessEstimate{ItemsStillNeeded: 3, ItemsUntilNextCheck: 2, Explanation: "Initial estimate"}, est)

	calls := fake.CallsFor("reasoning_completeness")
	require.Len(t, calls, 1)
	body := calls[0].Messages[1].Content
	assert.NotContains(t, body, "old reasoning")
	assert.Contains(t, body, "current reasoning")
	assert.Contains(t, calls[0].Messages[0].Content, "Completeness Evaluation Agent")

	temp := calls[0].Temperature
	require.NotNil(t, temp)
	assert.InDelta(t, 0.69, *temp, 0.031)
}

func TestCompleteness_SchemaViolation(t *testing.T) {
	ev := NewCompleteness(answer("I think three more."), prompt.NewLoader("", ""), config.Profile{})
	_, err := ev.Evaluate(context.Background(), history())
	assert.ErrorIs(t, err, structured.ErrSchemaViolation)
}

func TestSimilarity_ClampsAndUsesProfile(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`{"score":0.42}`, 0.42},
		{`{"score":1.7}`, 1},
		{`{"score":-0.2}`, 0},
	}
	for _, tt := range tests {
		fake := answer(tt.raw)
		ev := NewSimilarity(fake, prompt.NewLoader("", ""), config.Defaults().Profiles.Similarity)
		got, err := ev.Evaluate(context.Background(), TextPair{A: "alpha", B: "beta"})
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9)

		calls := fake.CallsFor("similarity_score")
		require.Len(t, calls, 1)
		assert.Equal(t, 100, calls[0].MaxTokens)
		assert.Contains(t, calls[0].Messages[1].Content, "Text A: alpha")
		assert.Contains(t, calls[0].Messages[1].Content, "Text B: beta")
	}
}

func TestRedundancy_PromptCarriesCandidateAndScore(t *testing.T) {
	fake := answer(`{"redundant":true}`)
	ev := NewRedundancy(fake, prompt.NewLoader("", ""), config.Profile{})

	candidate := conversation.ReasoningItem{Title: "Repeat", Content: "same again"}
	got, err := ev.Evaluate(context.Background(), RedundancyInput{
		Conversation: history(),
		Candidate:    candidate,
		Similarity:   0.5,
	})
	require.NoError(t, err)
	assert.True(t, got)

	body := fake.CallsFor("redundancy_verdict")[0].Messages[1].Content
	assert.Contains(t, body, `<ReasoningItem title="Repeat">same again</ReasoningItem>`)
	assert.Contains(t, body, "is: 0.50")
	assert.NotContains(t, body, "old reasoning")
	assert.True(t, strings.Contains(ev.Instructions(), "NEVER"))
}

func TestRedundancy_ErrorVerbatim(t *testing.T) {
	boom := errors.New("service down")
	fake := llmtest.New(func(llm.Request) (string, error) { return "", boom })
	ev := NewRedundancy(fake, prompt.NewLoader("", ""), config.Profile{})
	_, err := ev.Evaluate(context.Background(), RedundancyInput{Conversation: history()})
	assert.ErrorIs(t, err, boom)
}

func TestCachedSimilarity(t *testing.T) {
	var calls atomic.Int32
	inner := Func[TextPair, float64]{
		Text: "inner",
		Fn: func(_ context.Context, in TextPair) (float64, error) {
			calls.Add(1)
			if in.A == "fail" {
				return 0, errors.New("boom")
			}
			return 0.3, nil
		},
	}
	cached, err := NewCachedSimilarity(inner, 8)
	require.NoError(t, err)
	assert.Equal(t, "inner", cached.Instructions())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := cached.Evaluate(ctx, TextPair{A: "x", B: "y"})
		require.NoError(t, err)
		assert.InDelta(t, 0.3, got, 1e-9)
	}
	assert.EqualValues(t, 1, calls.Load())

	// Order matters.
	_, _ = cached.Evaluate(ctx, TextPair{A: "y", B: "x"})
	assert.EqualValues(t, 2, calls.Load())

	// Errors are not cached.
	_, err = cached.Evaluate(ctx, TextPair{A: "fail"})
	require.Error(t, err)
	_, err = cached.Evaluate(ctx, TextPair{A: "fail"})
	require.Error(t, err)
	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, 2, cached.Len())
}

func TestNewCachedSimilarity_InvalidSize(t *testing.T) {
	_, err := NewCachedSimilarity(Const[TextPair](0.1), 0)
	assert.Error(t, err)
}

func TestConst(t *testing.T) {
	got, err := Const[string](true).Evaluate(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, got)
}
