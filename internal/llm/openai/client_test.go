package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pocketomega/reasonloop/internal/llm"
)

type rawSchema string

func (r rawSchema) MarshalJSON() ([]byte, error) { return []byte(r), nil }

var testSchema = &llm.Schema{
	Name:       "similarity",
	Definition: rawSchema(`{"type":"object","properties":{"score":{"type":"number"}},"required":["score"],"additionalProperties":false}`),
}

func newTestClient(t *testing.T, baseURL, model, mode string) *Client {
	t.Helper()
	c, err := NewClient(&Config{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		Model:          model,
		MaxRetries:     0,
		HTTPTimeout:    5,
		StructuredMode: mode,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCallLLM_SendsJSONSchemaResponseFormat(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":0.4}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "gpt-4o", StructuredAuto)
	msg, err := c.CallLLM(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "compare"}},
		Schema:   testSchema,
	})
	if err != nil {
		t.Fatalf("CallLLM: %v", err)
	}
	if msg.Content != `{"score":0.4}` {
		t.Errorf("unexpected content %q", msg.Content)
	}

	rf, ok := captured["response_format"].(map[string]any)
	if !ok {
		t.Fatalf("response_format missing from request: %v", captured)
	}
	if rf["type"] != "json_schema" {
		t.Errorf("response_format.type = %v, want json_schema", rf["type"])
	}
}

func TestCallLLM_PromptModeInjectsSchemaIntoSystemMessage(t *testing.T) {
	var captured struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		ResponseFormat any `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{}"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "llama3.1:8b", StructuredAuto)
	_, err := c.CallLLM(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a judge."},
			{Role: llm.RoleUser, Content: "compare"},
		},
		Schema: testSchema,
	})
	if err != nil {
		t.Fatalf("CallLLM: %v", err)
	}
	if captured.ResponseFormat != nil {
		t.Errorf("prompt mode must not send response_format, got %v", captured.ResponseFormat)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}
	if !strings.Contains(captured.Messages[0].Content, "JSON Schema") {
		t.Errorf("system message should describe the schema, got %q", captured.Messages[0].Content)
	}
}

func TestCallLLMStream_ForwardsChunksInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{`{\"ti`, `tle\":`, `\"A\"}`} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%s\"}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "gpt-4o", StructuredSchema)
	var chunks []string
	msg, err := c.CallLLMStream(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "go"}},
	}, func(chunk string) { chunks = append(chunks, chunk) })
	if err != nil {
		t.Fatalf("CallLLMStream: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if msg.Content != `{"title":"A"}` {
		t.Errorf("assembled content = %q", msg.Content)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{APIKey: "k", Model: "m", HTTPTimeout: 1, StructuredMode: StructuredAuto}, false},
		{"missing key", Config{Model: "m", HTTPTimeout: 1, StructuredMode: StructuredAuto}, true},
		{"negative retries", Config{APIKey: "k", Model: "m", MaxRetries: -1, HTTPTimeout: 1, StructuredMode: StructuredAuto}, true},
		{"bad mode", Config{APIKey: "k", Model: "m", HTTPTimeout: 1, StructuredMode: "xml"}, true},
		{"bad temperature", Config{APIKey: "k", Model: "m", HTTPTimeout: 1, StructuredMode: StructuredAuto, Temperature: llm.Float32(3)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveStructuredMode(t *testing.T) {
	tests := []struct {
		model, mode, want string
	}{
		{"gpt-4o", StructuredAuto, StructuredSchema},
		{"deepseek-chat", StructuredAuto, StructuredJSON},
		{"llama3", StructuredAuto, StructuredPrompt},
		{"gpt-4o", StructuredPrompt, StructuredPrompt},
	}
	for _, tt := range tests {
		c := &Config{Model: tt.model, StructuredMode: tt.mode}
		if got := c.ResolveStructuredMode(); got != tt.want {
			t.Errorf("ResolveStructuredMode(%s, %s) = %s, want %s", tt.model, tt.mode, got, tt.want)
		}
	}
}
