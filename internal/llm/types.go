package llm

import (
	"context"
	"encoding/json"
)

// Message represents a chat message for LLM communication.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // The message text
}

// Schema describes the structured output a request expects.
// Definition marshals to a JSON Schema object.
type Schema struct {
	Name        string
	Description string
	Definition  json.Marshaler
}

// Request is a single completion call. When Schema is set the provider must
// constrain (or at least instruct) the model to answer with a JSON value
// matching it.
type Request struct {
	Messages    []Message
	Schema      *Schema
	Temperature *float32 // nil = provider default
	MaxTokens   int      // 0 = no limit
}

// StreamCallback is invoked for each chunk of streamed text.
// Implementations should be lightweight; heavy work should be deferred.
type StreamCallback func(chunk string)

// LLMProvider defines the interface for all LLM implementations.
// Any OpenAI-compatible endpoint (litellm, Ollama, Azure, vLLM, etc.)
// or the Gemini API can be used by implementing this interface.
type LLMProvider interface {
	// CallLLM sends the request and returns the complete response.
	CallLLM(ctx context.Context, req Request) (Message, error)

	// CallLLMStream sends the request and streams the response token-by-token.
	// Each chunk of text triggers the onChunk callback, in order, on the
	// calling goroutine. Returns the full assembled message once streaming
	// finishes. Cancelling ctx aborts the stream with ctx.Err().
	CallLLMStream(ctx context.Context, req Request, onChunk StreamCallback) (Message, error)

	// Name identifies the provider and model for logs.
	Name() string
}

// Role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Float32 returns a pointer to v, for Request.Temperature.
func Float32(v float32) *float32 { return &v }
