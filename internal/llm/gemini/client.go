// Package gemini implements llm.LLMProvider on top of the official Google
// genai SDK. Structured output sends the JSON Schema as the response schema
// and also describes it in the system instruction.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pocketomega/reasonloop/internal/llm"
	genai "google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model answers without any text part.
var ErrEmptyResponse = errors.New("gemini: empty response")

// Config holds Gemini configuration.
type Config struct {
	APIKey     string
	Model      string
	MaxRetries int
}

// NewConfigFromEnv reads GEMINI_API_KEY (or LLM_API_KEY), GEMINI_MODEL and LLM_MAX_RETRIES.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{
		APIKey:     os.Getenv("GEMINI_API_KEY"),
		Model:      os.Getenv("GEMINI_MODEL"),
		MaxRetries: 2,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("LLM_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required. Set it in .env or environment")
	}
	if c.Model == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.MaxRetries)
	}
	return nil
}

// Client is a thin wrapper around the official genai client.
type Client struct {
	cli    *genai.Client
	config *Config
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	log.Printf("[LLM] Model %s: context window %s", config.Model, llm.DescribeContextWindow(config.Model))
	return &Client{cli: cli, config: config}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "Gemini:" + c.config.Model }

// splitRequest separates system instructions from conversational turns.
func splitRequest(req llm.Request) (*genai.GenerateContentConfig, []*genai.Content) {
	messages := req.Messages
	if req.Schema != nil {
		messages = llm.WithSchemaInstruction(messages, req.Schema)
	}

	cfg := &genai.GenerateContentConfig{}
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Schema != nil {
		// The prompt copy of the schema stays for models that ignore the field.
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = req.Schema.Definition
	}
	if req.Temperature != nil {
		t := *req.Temperature
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg, contents
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// CallLLM sends the request and returns the complete response.
func (c *Client) CallLLM(ctx context.Context, req llm.Request) (llm.Message, error) {
	if len(req.Messages) == 0 {
		return llm.Message{}, fmt.Errorf("no messages to send")
	}
	cfg, contents := splitRequest(req)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.cli.Models.GenerateContent(ctx, c.config.Model, contents, cfg)
		if err == nil {
			if text := responseText(resp); text != "" {
				return llm.Message{Role: llm.RoleAssistant, Content: text}, nil
			}
			err = ErrEmptyResponse
		}
		lastErr = err
		if ctx.Err() != nil {
			return llm.Message{}, ctx.Err()
		}
		if attempt < c.config.MaxRetries {
			wait := time.Duration(300*(1<<attempt)) * time.Millisecond
			log.Printf("[LLM] Gemini retry %d/%d after %v, error: %v", attempt+1, c.config.MaxRetries, wait, err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return llm.Message{}, ctx.Err()
			}
		}
	}
	return llm.Message{}, fmt.Errorf("gemini call failed after %d retries: %w", c.config.MaxRetries, lastErr)
}

// CallLLMStream streams the response; each text delta triggers onChunk.
func (c *Client) CallLLMStream(ctx context.Context, req llm.Request, onChunk llm.StreamCallback) (llm.Message, error) {
	if onChunk == nil {
		return c.CallLLM(ctx, req)
	}
	if len(req.Messages) == 0 {
		return llm.Message{}, fmt.Errorf("no messages to send")
	}
	cfg, contents := splitRequest(req)

	var sb strings.Builder
	for resp, err := range c.cli.Models.GenerateContentStream(ctx, c.config.Model, contents, cfg) {
		if err != nil {
			if ctx.Err() != nil {
				return llm.Message{}, ctx.Err()
			}
			log.Printf("[LLM] Gemini stream interrupted after %d chars: %v", sb.Len(), err)
			return llm.Message{}, fmt.Errorf("gemini stream error: %w", err)
		}
		if delta := responseText(resp); delta != "" {
			sb.WriteString(delta)
			onChunk(delta)
		}
	}
	if sb.Len() == 0 {
		return llm.Message{}, ErrEmptyResponse
	}
	return llm.Message{Role: llm.RoleAssistant, Content: sb.String()}, nil
}
