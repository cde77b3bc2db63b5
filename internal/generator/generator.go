// Package generator implements the streaming capabilities: the next
// reasoning item and the final visible answer.
package generator

import (
	"context"
	"strings"

	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/structured"
)

// Generator produces a live sequence of partial values P ending in Out.
type Generator[In, P, Out any] interface {
	Instructions() string
	// Generate starts the call. The returned stream is single-use; errors
	// surface from Collect.
	Generate(ctx context.Context, in In) (*structured.Stream[P, Out], error)
}

// Func adapts a closure to Generator.
type Func[In, P, Out any] struct {
	Text string
	Fn   func(ctx context.Context, in In) (*structured.Stream[P, Out], error)
}

// Instructions returns f.Text.
func (f Func[In, P, Out]) Instructions() string { return f.Text }

// Generate calls f.Fn.
func (f Func[In, P, Out]) Generate(ctx context.Context, in In) (*structured.Stream[P, Out], error) {
	return f.Fn(ctx, in)
}

var reasoningItemSchema = structured.MustSchemaFor[conversation.ReasoningItem](
	"reasoning_item",
	"A reasoning item: your thinking process as content plus a short title digestible in an interface.",
)

// ReasoningItems generates the next reasoning item for the last message of a
// conversation.
type ReasoningItems struct {
	provider llm.LLMProvider
	prompts  *prompt.Loader
	profile  config.Profile
}

// NewReasoningItems creates a reasoning item generator.
func NewReasoningItems(provider llm.LLMProvider, prompts *prompt.Loader, profile config.Profile) *ReasoningItems {
	return &ReasoningItems{provider: provider, prompts: prompts, profile: profile}
}

// Instructions returns the system prompt with no covered titles.
func (g *ReasoningItems) Instructions() string { return g.instructions(nil) }

func (g *ReasoningItems) instructions(covered []string) string {
	list := "- (no prior reasoning items)"
	if len(covered) > 0 {
		list = "* " + strings.Join(covered, "\n* ")
	}
	return g.prompts.Render(prompt.ReasoningItem, map[string]string{"COVERED_TITLES": list})
}

// Generate streams one reasoning item. Titles already present anywhere in
// conv are listed in the instructions so the model avoids them.
func (g *ReasoningItems) Generate(ctx context.Context, conv *conversation.Conversation) (*structured.Stream[conversation.PartialReasoningItem, conversation.ReasoningItem], error) {
	return structured.CompleteStream[conversation.PartialReasoningItem, conversation.ReasoningItem](ctx, g.provider, structured.Request{
		Instructions: g.instructions(conv.ReasoningTitles()),
		Prompt:       conv.PromptText(),
		Schema:       reasoningItemSchema,
		Temperature:  g.profile.SampleTemperature(),
		MaxTokens:    g.profile.MaxTokens,
	}), nil
}

var finalResponseSchema = structured.MustSchemaFor[conversation.PlainTextItem](
	"final_response",
	"A plain text item holding the final response shown to the user.",
)

// FinalResponse writes the visible answer once reasoning is finished.
type FinalResponse struct {
	provider llm.LLMProvider
	prompts  *prompt.Loader
	profile  config.Profile
}

// NewFinalResponse creates a final answer generator.
func NewFinalResponse(provider llm.LLMProvider, prompts *prompt.Loader, profile config.Profile) *FinalResponse {
	return &FinalResponse{provider: provider, prompts: prompts, profile: profile}
}

// Instructions returns the system prompt including any user rules.
func (g *FinalResponse) Instructions() string {
	rules := g.prompts.LoadUserRules()
	if rules != "" {
		rules = "\n## User rules\n" + rules + "\n"
	}
	return g.prompts.Render(prompt.FinalResponse, map[string]string{"USER_RULES": rules})
}

// Generate streams the answer for conv, whose last message holds the
// accepted reasoning.
func (g *FinalResponse) Generate(ctx context.Context, conv *conversation.Conversation) (*structured.Stream[conversation.PartialPlainText, conversation.PlainTextItem], error) {
	return structured.CompleteStream[conversation.PartialPlainText, conversation.PlainTextItem](ctx, g.provider, structured.Request{
		Instructions: g.Instructions(),
		Prompt:       conv.PromptText(),
		Schema:       finalResponseSchema,
		Temperature:  g.profile.SampleTemperature(),
		MaxTokens:    g.profile.MaxTokens,
	}), nil
}
