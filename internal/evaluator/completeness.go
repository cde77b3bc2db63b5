package evaluator

import (
	"context"

	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/structured"
)

// CompletenessEstimate is the model's view of how much reasoning is left.
type CompletenessEstimate struct {
	ItemsStillNeeded    int    `json:"items_still_needed" description:"Estimated number of additional reasoning items still required. Zero means the reasoning appears complete."`
	ItemsUntilNextCheck int    `json:"items_until_next_check" description:"How many new reasoning items may be generated before this evaluation must run again. Must not exceed items_still_needed."`
	Explanation         string `json:"explanation" description:"A very concise verdict, e.g. 'All aspects covered', 'Missing edge cases', 'Needs more depth'."`
}

var completenessSchema = structured.MustSchemaFor[CompletenessEstimate](
	"reasoning_completeness",
	"Decides whether the chain-of-thought is complete or needs more work.",
)

// Completeness estimates how many reasoning items the last message still needs.
type Completeness struct {
	provider llm.LLMProvider
	prompts  *prompt.Loader
	profile  config.Profile
}

// NewCompleteness creates a completeness evaluator.
func NewCompleteness(provider llm.LLMProvider, prompts *prompt.Loader, profile config.Profile) *Completeness {
	return &Completeness{provider: provider, prompts: prompts, profile: profile}
}

// Instructions returns the system prompt.
func (c *Completeness) Instructions() string { return c.prompts.Load(prompt.Completeness) }

// Evaluate judges conv. Reasoning in earlier messages is hidden so only the
// last message's chain-of-thought is assessed.
func (c *Completeness) Evaluate(ctx context.Context, conv *conversation.Conversation) (CompletenessEstimate, error) {
	return structured.Complete[CompletenessEstimate](ctx, c.provider, structured.Request{
		Instructions: c.Instructions(),
		Prompt:       conv.WithoutPriorReasoning().PromptText(),
		Schema:       completenessSchema,
		Temperature:  c.profile.SampleTemperature(),
		MaxTokens:    c.profile.MaxTokens,
	})
}
