package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	sdk_mcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketomega/reasonloop/internal/assistant"
	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/evaluator"
	"github.com/pocketomega/reasonloop/internal/generator"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/llm/llmtest"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/reasoning"
)

// twoStepModel produces two reasoning items and a short answer.
func twoStepModel(final llmtest.Handler) *llmtest.Fake {
	var n atomic.Int32
	return llmtest.New(llmtest.BySchema(map[string]llmtest.Handler{
		"reasoning_completeness": llmtest.Text(`{"items_still_needed":2,"items_until_next_check":2,"explanation":"two steps"}`),
		"reasoning_item": func(llm.Request) (string, error) {
			i := n.Add(1)
			return fmt.Sprintf(`{"title":"Step %d","content":"Line one\nline two of step %d","eval_needed":false}`, i, i), nil
		},
		"similarity_score":   llmtest.Text(`{"score":0.2}`),
		"redundancy_verdict": llmtest.Text(`{"redundant":false}`),
		"final_response":     final,
	}))
}

type recorder struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (r *recorder) notify(_ context.Context, method string, params map[string]any) error {
	if method != progressMethod {
		return fmt.Errorf("unexpected method %s", method)
	}
	r.mu.Lock()
	r.calls = append(r.calls, params)
	r.mu.Unlock()
	return nil
}

func newTestServer(fake *llmtest.Fake) (*Server, *recorder) {
	loader := prompt.NewLoader("", "")
	p := config.Defaults().Profiles
	o := reasoning.New(reasoning.Capabilities{
		Completeness: evaluator.NewCompleteness(fake, loader, p.Default),
		Similarity:   evaluator.NewSimilarity(fake, loader, p.Similarity),
		Redundancy:   evaluator.NewRedundancy(fake, loader, p.Default),
		Items:        generator.NewReasoningItems(fake, loader, p.Reasoning),
	}, reasoning.Limits{})
	s := NewServer(Options{
		Responder: assistant.NewResponder(o, generator.NewFinalResponse(fake, loader, p.Default)),
		Loader:    loader,
	})
	rec := &recorder{}
	s.notify = rec.notify
	return s, rec
}

func callReason(args map[string]any, token sdk_mcp.ProgressToken) sdk_mcp.CallToolRequest {
	var req sdk_mcp.CallToolRequest
	req.Params.Name = toolReason
	req.Params.Arguments = args
	if token != nil {
		req.Params.Meta = &sdk_mcp.Meta{ProgressToken: token}
	}
	return req
}

func resultText(t *testing.T, res *sdk_mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := sdk_mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestReason_ReturnsStepsAndAnswer(t *testing.T) {
	fake := twoStepModel(llmtest.Text(`{"text":"Board at gate 12."}`))
	s, rec := newTestServer(fake)

	res, err := s.handleReason(context.Background(), callReason(map[string]any{
		"question": "Where do I board?",
		"context":  "Ticket says gate 12.",
	}, nil))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	text := resultText(t, res)
	assert.Contains(t, text, "1. **Step 1**\n   Line one\n   line two of step 1")
	assert.Contains(t, text, "2. **Step 2**")
	assert.Contains(t, text, "## Answer\n\nBoard at gate 12.")
	assert.Empty(t, rec.calls, "no progress without a token")

	calls := fake.CallsFor("reasoning_completeness")
	require.NotEmpty(t, calls)
	userPrompt := calls[0].Messages[len(calls[0].Messages)-1].Content
	assert.Contains(t, userPrompt, "Where do I board?")
	assert.Contains(t, userPrompt, "Ticket says gate 12.")
}

func TestReason_ProgressPerAcceptedStep(t *testing.T) {
	s, rec := newTestServer(twoStepModel(llmtest.Text(`{"text":"done"}`)))

	res, err := s.handleReason(context.Background(), callReason(map[string]any{"question": "q"}, "tok-1"))
	require.NoError(t, err)
	require.False(t, res.IsError)

	require.Len(t, rec.calls, 2)
	for i, call := range rec.calls {
		assert.Equal(t, "tok-1", call["progressToken"])
		assert.Equal(t, i+1, call["progress"])
		assert.Equal(t, fmt.Sprintf("Step %d: Step %d", i+1, i+1), call["message"])
	}
}

func TestReason_MissingQuestion(t *testing.T) {
	fake := twoStepModel(llmtest.Text(`{"text":"x"}`))
	s, _ := newTestServer(fake)

	for _, args := range []map[string]any{{}, {"question": "  "}} {
		res, err := s.handleReason(context.Background(), callReason(args, nil))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	}
	assert.Empty(t, fake.Calls())
}

func TestReason_FailureIsToolError(t *testing.T) {
	fail := func(llm.Request) (string, error) { return "", errors.New("quota exceeded") }
	s, _ := newTestServer(twoStepModel(fail))

	res, err := s.handleReason(context.Background(), callReason(map[string]any{"question": "q"}, nil))
	require.NoError(t, err, "model failures are reported inside the result")
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "quota exceeded")
}

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(twoStepModel(llmtest.Text(`{"text":"x"}`)))

	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"reason"`)
	assert.Contains(t, string(raw), `"name":"reload_prompts"`)
	assert.Contains(t, string(raw), `"question"`)
}

func TestReloadPrompts(t *testing.T) {
	s, _ := newTestServer(twoStepModel(llmtest.Text(`{"text":"x"}`)))
	var req sdk_mcp.CallToolRequest
	req.Params.Name = toolReloadPrompt
	res, err := s.handleReload(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestFormatReply_NoReasoning(t *testing.T) {
	msg := conversation.NewMessage(conversation.RoleAssistant, conversation.PlainTextItem{Text: "Hi."})
	assert.Equal(t, "## Answer\n\nHi.", formatReply(msg))
}
