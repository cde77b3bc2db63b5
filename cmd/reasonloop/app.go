package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pocketomega/reasonloop/internal/assistant"
	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/evaluator"
	"github.com/pocketomega/reasonloop/internal/generator"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/llm/gemini"
	"github.com/pocketomega/reasonloop/internal/llm/openai"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/reasoning"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	settings   config.Settings
	provider   llm.LLMProvider
	loader     *prompt.Loader
	similarity *evaluator.CachedSimilarity // nil when caching is disabled
	responder  *assistant.Responder
}

// newProvider builds the client selected by name, $LLM_PROVIDER, or openai.
func newProvider(ctx context.Context, name string) (llm.LLMProvider, error) {
	if name == "" {
		name = os.Getenv("LLM_PROVIDER")
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openai":
		return openai.NewClientFromEnv()
	case "gemini":
		cfg, err := gemini.NewConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return gemini.NewClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want openai or gemini)", name)
	}
}

// newApp wires the capabilities, the orchestrator and the responder around
// provider.
func newApp(s config.Settings, provider llm.LLMProvider) (*app, error) {
	loader := prompt.NewLoader(s.Server.PromptsDir, s.Server.UserRulesPath)
	a := &app{settings: s, provider: provider, loader: loader}

	var similarity reasoning.SimilarityEvaluator = evaluator.NewSimilarity(provider, loader, s.Profiles.Similarity)
	if s.Limits.SimilarityCacheSize > 0 {
		cached, err := evaluator.NewCachedSimilarity(similarity, s.Limits.SimilarityCacheSize)
		if err != nil {
			return nil, err
		}
		a.similarity = cached
		similarity = cached
	}

	o := reasoning.New(reasoning.Capabilities{
		Completeness: evaluator.NewCompleteness(provider, loader, s.Profiles.Default),
		Similarity:   similarity,
		Redundancy:   evaluator.NewRedundancy(provider, loader, s.Profiles.Default),
		Items:        generator.NewReasoningItems(provider, loader, s.Profiles.Reasoning),
	}, reasoning.Limits{
		MaxItems:             s.Limits.MaxItems,
		MaxRejectionsPerSlot: s.Limits.MaxRejectionsPerSlot,
		SimilarityThreshold:  s.Limits.SimilarityThreshold,
	})
	a.responder = assistant.NewResponder(o, generator.NewFinalResponse(provider, loader, s.Profiles.Default))
	return a, nil
}

// cacheLen reports the similarity cache size, or nil without a cache.
func (a *app) cacheLen() func() int {
	if a.similarity == nil {
		return nil
	}
	return a.similarity.Len
}

func setup(ctx context.Context) (*app, error) {
	provider, err := newProvider(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("initialize LLM client: %w", err)
	}
	return newApp(settings, provider)
}
