package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pocketomega/reasonloop/internal/llm"
	openailib "github.com/sashabaranov/go-openai"
)

// Client implements llm.LLMProvider using the OpenAI-compatible protocol.
// Works with any endpoint that supports the OpenAI chat completions API.
type Client struct {
	client *openailib.Client
	config *Config
	mode   string // resolved structured output mode
}

// GetConfig returns the client's configuration.
func (c *Client) GetConfig() *Config {
	return c.config
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.HTTPTimeout) * time.Second}

	c := &Client{
		client: openailib.NewClientWithConfig(clientConfig),
		config: config,
		mode:   config.ResolveStructuredMode(),
	}
	log.Printf("[LLM] Model %s: structured mode %s, context window %s",
		config.Model, c.mode, llm.DescribeContextWindow(config.Model))
	return c, nil
}

// NewClientFromEnv creates a client using environment variables.
func NewClientFromEnv() (*Client, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	return NewClient(config)
}

// buildRequest converts an llm.Request into the OpenAI wire format, applying
// the structured output mode when a schema is present.
func (c *Client) buildRequest(req llm.Request) openailib.ChatCompletionRequest {
	messages := req.Messages
	if req.Schema != nil && c.mode != StructuredSchema {
		messages = llm.WithSchemaInstruction(messages, req.Schema)
	}

	openaiMsgs := make([]openailib.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMsgs[i] = openailib.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	out := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: openaiMsgs,
	}

	// Per-request options win over the client-wide defaults.
	switch {
	case req.Temperature != nil:
		out.Temperature = *req.Temperature
	case c.config.Temperature != nil:
		out.Temperature = *c.config.Temperature
	}
	switch {
	case req.MaxTokens > 0:
		out.MaxTokens = req.MaxTokens
	case c.config.MaxTokens > 0:
		out.MaxTokens = c.config.MaxTokens
	}

	if req.Schema != nil {
		switch c.mode {
		case StructuredSchema:
			out.ResponseFormat = &openailib.ChatCompletionResponseFormat{
				Type: openailib.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openailib.ChatCompletionResponseFormatJSONSchema{
					Name:        req.Schema.Name,
					Description: req.Schema.Description,
					Schema:      req.Schema.Definition,
					Strict:      true,
				},
			}
		case StructuredJSON:
			out.ResponseFormat = &openailib.ChatCompletionResponseFormat{
				Type: openailib.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}
	return out
}

// CallLLM sends the request to the LLM and returns the response.
func (c *Client) CallLLM(ctx context.Context, req llm.Request) (llm.Message, error) {
	if len(req.Messages) == 0 {
		return llm.Message{}, fmt.Errorf("no messages to send")
	}
	wireReq := c.buildRequest(req)

	// Execute with retries
	var resp openailib.ChatCompletionResponse
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, wireReq)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return llm.Message{}, ctx.Err()
		}
		if attempt < c.config.MaxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("[LLM] Retry %d/%d after %v, error: %v", attempt+1, c.config.MaxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return llm.Message{}, ctx.Err()
			}
		}
	}

	if lastErr != nil {
		return llm.Message{}, fmt.Errorf("LLM call failed after %d retries: %w", c.config.MaxRetries, lastErr)
	}

	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("no choices returned from LLM")
	}

	return llm.Message{
		Role:    llm.RoleAssistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

// CallLLMStream sends the request and streams the response token-by-token.
// Each delta chunk triggers the onChunk callback.
// Returns the full assembled message once streaming finishes.
func (c *Client) CallLLMStream(ctx context.Context, req llm.Request, onChunk llm.StreamCallback) (llm.Message, error) {
	// Fallback to synchronous call when no callback is provided
	if onChunk == nil {
		return c.CallLLM(ctx, req)
	}

	if len(req.Messages) == 0 {
		return llm.Message{}, fmt.Errorf("no messages to send")
	}

	wireReq := c.buildRequest(req)
	wireReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, wireReq)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Message{}, ctx.Err()
		}
		return llm.Message{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunkResp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return llm.Message{}, ctx.Err()
			}
			// Structured output cannot be trusted once the stream is cut short.
			log.Printf("[LLM] Stream interrupted after %d chars: %v", sb.Len(), err)
			return llm.Message{}, fmt.Errorf("stream recv error: %w", err)
		}

		if len(chunkResp.Choices) > 0 {
			if delta := chunkResp.Choices[0].Delta.Content; delta != "" {
				sb.WriteString(delta)
				onChunk(delta)
			}
		}
	}

	return llm.Message{
		Role:    llm.RoleAssistant,
		Content: sb.String(),
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return fmt.Sprintf("openai-compatible (%s)", c.config.Model)
}
