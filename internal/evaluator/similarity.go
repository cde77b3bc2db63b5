package evaluator

import (
	"context"
	"fmt"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pocketomega/reasonloop/internal/config"
	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/structured"
)

// TextPair is the input of a similarity evaluation.
type TextPair struct {
	A, B string
}

type similarityScore struct {
	Score float64 `json:"score" description:"Similarity between 0 (unrelated) and 1 (identical)."`
}

var similaritySchema = structured.MustSchemaFor[similarityScore](
	"similarity_score",
	"Similarity of two texts in meaning and content.",
)

// Similarity scores how close two texts are on [0, 1].
type Similarity struct {
	provider llm.LLMProvider
	prompts  *prompt.Loader
	profile  config.Profile
}

// NewSimilarity creates a similarity evaluator.
func NewSimilarity(provider llm.LLMProvider, prompts *prompt.Loader, profile config.Profile) *Similarity {
	return &Similarity{provider: provider, prompts: prompts, profile: profile}
}

// Instructions returns the system prompt.
func (s *Similarity) Instructions() string { return s.prompts.Load(prompt.Similarity) }

// Evaluate returns the score, clamped to [0, 1].
func (s *Similarity) Evaluate(ctx context.Context, in TextPair) (float64, error) {
	out, err := structured.Complete[similarityScore](ctx, s.provider, structured.Request{
		Instructions: s.Instructions(),
		Prompt:       fmt.Sprintf("Evaluate the similarity between the following two texts:\n\nText A: %s\n\nText B: %s", in.A, in.B),
		Schema:       similaritySchema,
		Temperature:  s.profile.SampleTemperature(),
		MaxTokens:    s.profile.MaxTokens,
	})
	if err != nil {
		return 0, err
	}
	return clamp01(out.Score), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// CachedSimilarity memoises another similarity evaluator per ordered pair.
// Regenerated candidates often repeat earlier text, so scores recur.
type CachedSimilarity struct {
	inner Evaluator[TextPair, float64]
	cache *lru.Cache[TextPair, float64]
}

// NewCachedSimilarity wraps inner with an LRU of the given size.
func NewCachedSimilarity(inner Evaluator[TextPair, float64], size int) (*CachedSimilarity, error) {
	cache, err := lru.New[TextPair, float64](size)
	if err != nil {
		return nil, fmt.Errorf("similarity cache: %w", err)
	}
	return &CachedSimilarity{inner: inner, cache: cache}, nil
}

// Instructions returns the wrapped evaluator's instructions.
func (c *CachedSimilarity) Instructions() string { return c.inner.Instructions() }

// Evaluate returns a cached score or asks the wrapped evaluator. Errors are
// not cached.
func (c *CachedSimilarity) Evaluate(ctx context.Context, in TextPair) (float64, error) {
	if score, ok := c.cache.Get(in); ok {
		log.Printf("[Reason] Similarity cache hit (%.2f)", score)
		return score, nil
	}
	score, err := c.inner.Evaluate(ctx, in)
	if err != nil {
		return 0, err
	}
	c.cache.Add(in, score)
	return score, nil
}

// Len returns the number of cached scores.
func (c *CachedSimilarity) Len() int { return c.cache.Len() }
