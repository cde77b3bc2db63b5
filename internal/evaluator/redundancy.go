package evaluator

import (
	"context"
	"fmt"

	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/structured"
)

// RedundancyInput is the input of a redundancy evaluation.
type RedundancyInput struct {
	// Conversation ends with the in-progress message holding the accepted
	// items followed by Candidate.
	Conversation *conversation.Conversation
	Candidate    conversation.ReasoningItem
	// Similarity is the candidate's score against the last accepted item,
	// or 0 when there is none.
	Similarity float64
}

type redundancyVerdict struct {
	Redundant bool `json:"redundant" description:"True when the new reasoning item is redundant or unnecessary and should be regenerated."`
}

var redundancySchema = structured.MustSchemaFor[redundancyVerdict](
	"redundancy_verdict",
	"Whether the newest reasoning item adds no value.",
)

// Redundancy decides whether a candidate reasoning item should be discarded.
type Redundancy struct {
	provider llm.LLMProvider
	prompts  *prompt.Loader
	profile  config.Profile
}

// NewRedundancy creates a redundancy evaluator.
func NewRedundancy(provider llm.LLMProvider, prompts *prompt.Loader, profile config.Profile) *Redundancy {
	return &Redundancy{provider: provider, prompts: prompts, profile: profile}
}

// Instructions returns the system prompt.
func (r *Redundancy) Instructions() string { return r.prompts.Load(prompt.Redundancy) }

// Evaluate reports true when the candidate is redundant.
func (r *Redundancy) Evaluate(ctx context.Context, in RedundancyInput) (bool, error) {
	out, err := structured.Complete[redundancyVerdict](ctx, r.provider, structured.Request{
		Instructions: r.Instructions(),
		Prompt:       redundancyPrompt(in),
		Schema:       redundancySchema,
		Temperature:  r.profile.SampleTemperature(),
		MaxTokens:    r.profile.MaxTokens,
	})
	if err != nil {
		return false, err
	}
	return out.Redundant, nil
}

func redundancyPrompt(in RedundancyInput) string {
	return fmt.Sprintf(`The following is the current conversation history:
%s

Evaluate whether the following reasoning item is redundant or unnecessary given the conversation history. A redundant item is regenerated, otherwise it is kept:
%s

The similarity score of the new reasoning item to the most recent accepted reasoning item is: %.2f`,
		in.Conversation.WithoutPriorReasoning().PromptText(),
		conversation.ItemText(in.Candidate),
		in.Similarity,
	)
}
