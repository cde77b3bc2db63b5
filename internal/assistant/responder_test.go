package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/evaluator"
	"github.com/pocketomega/reasonloop/internal/generator"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/llm/llmtest"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/reasoning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted answers every capability with canned JSON.
func scripted(finalErr error) *llmtest.Fake {
	var items atomic.Int32
	return llmtest.New(func(req llm.Request) (string, error) {
		switch req.Schema.Name {
		case "reasoning_completeness":
			return `{"items_still_needed":2,"items_until_next_check":2,"explanation":"Initial estimate"}`, nil
		case "reasoning_item":
			n := items.Add(1)
			return fmt.Sprintf(`{"title":"Step %d","content":"Reasoning number %d. Self-check: ok","eval_needed":false}`, n, n), nil
		case "similarity_score":
			return `{"score":0.1}`, nil
		case "redundancy_verdict":
			return `{"redundant":false}`, nil
		case "final_response":
			if finalErr != nil {
				return "", finalErr
			}
			return `{"text":"Yes, you will board on time with 25 minutes to spare."}`, nil
		}
		return "", fmt.Errorf("unexpected schema %q", req.Schema.Name)
	})
}

func newResponder(fake *llmtest.Fake) *Responder {
	loader := prompt.NewLoader("", "")
	p := config.Defaults().Profiles
	o := reasoning.New(reasoning.Capabilities{
		Completeness: evaluator.NewCompleteness(fake, loader, p.Default),
		Similarity:   evaluator.NewSimilarity(fake, loader, p.Similarity),
		Redundancy:   evaluator.NewRedundancy(fake, loader, p.Default),
		Items:        generator.NewReasoningItems(fake, loader, p.Reasoning),
	}, reasoning.Limits{})
	return NewResponder(o, generator.NewFinalResponse(fake, loader, p.Default))
}

func TestRespond_ReasoningThenAnswer(t *testing.T) {
	fake := scripted(nil)
	conv := conversation.New(conversation.UserText("Will I board on time?"))
	before := conv.PromptText()

	reply := newResponder(fake).Respond(context.Background(), conv)

	var kinds []EventKind
	var lastAnswer string
	for ev, err := range reply.Events() {
		require.NoError(t, err)
		if len(kinds) == 0 || kinds[len(kinds)-1] != ev.Kind {
			kinds = append(kinds, ev.Kind)
		}
		if ev.Kind == EventAnswer {
			assert.GreaterOrEqual(t, len(ev.Answer), len(lastAnswer), "answer text never shrinks")
			lastAnswer = ev.Answer
		}
	}
	assert.Equal(t, []EventKind{EventReasoning, EventAnswer}, kinds)
	assert.Equal(t, "Yes, you will board on time with 25 minutes to spare.", lastAnswer)

	msg, err := reply.Message()
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	require.Len(t, msg.Items, 3)
	assert.Equal(t, []string{"Step 1", "Step 2"}, []string{msg.ReasoningItems()[0].Title, msg.ReasoningItems()[1].Title})
	assert.Equal(t, lastAnswer, msg.Text())
	assert.Equal(t, reasoning.Stats{Accepted: 2, Evaluations: 1}, reply.Stats())

	// The answer prompt carries the accepted reasoning.
	final := fake.CallsFor("final_response")
	require.Len(t, final, 1)
	assert.Contains(t, final[0].Messages[1].Content, `<ReasoningItem title="Step 2">`)

	assert.Equal(t, before, conv.PromptText(), "caller conversation must not change")
}

func TestRespond_AnswerFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	reply := newResponder(scripted(boom)).Respond(context.Background(),
		conversation.New(conversation.UserText("q")))

	_, err := reply.Wait()
	assert.ErrorIs(t, err, boom)
	_, err = reply.Message()
	assert.ErrorIs(t, err, boom)
}

func TestRespond_AbandonDuringAnswer(t *testing.T) {
	fake := scripted(nil)
	fake.ChunkSize = 2
	reply := newResponder(fake).Respond(context.Background(),
		conversation.New(conversation.UserText("q")))

	for ev, err := range reply.Events() {
		require.NoError(t, err)
		if ev.Kind == EventAnswer && ev.Answer != "" {
			break
		}
	}
	assert.Equal(t, 1, fake.Aborted())
	_, err := reply.Message()
	assert.ErrorIs(t, err, reasoning.ErrSessionAbandoned)
}

func TestRespond_SingleUse(t *testing.T) {
	reply := newResponder(scripted(nil)).Respond(context.Background(),
		conversation.New(conversation.UserText("q")))
	_, err := reply.Message()
	assert.ErrorIs(t, err, ErrReplyIncomplete)

	_, err = reply.Wait()
	require.NoError(t, err)
	_, err = reply.Wait()
	assert.ErrorIs(t, err, ErrReplyConsumed)
}

func TestRespond_AcceptedCountTracksSnapshots(t *testing.T) {
	reply := newResponder(scripted(nil)).Respond(context.Background(),
		conversation.New(conversation.UserText("q")))

	last := 0
	for ev, err := range reply.Events() {
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ev.Accepted, last, "accepted count never decreases")
		if ev.Kind == EventReasoning {
			assert.LessOrEqual(t, ev.Accepted, len(ev.Reasoning))
		} else {
			assert.Equal(t, 2, ev.Accepted)
		}
		last = ev.Accepted
	}
	assert.Equal(t, 2, last)
}
