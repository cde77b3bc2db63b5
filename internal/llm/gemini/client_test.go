package gemini

import (
	"strings"
	"testing"

	"github.com/pocketomega/reasonloop/internal/llm"
	genai "google.golang.org/genai"
)

type rawSchema string

func (r rawSchema) MarshalJSON() ([]byte, error) { return []byte(r), nil }

func TestSplitRequest_SeparatesSystemAndTurns(t *testing.T) {
	cfg, contents := splitRequest(llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
		},
		Schema:      &llm.Schema{Name: "verdict", Definition: rawSchema(`{"type":"object"}`)},
		Temperature: llm.Float32(0.35),
		MaxTokens:   100,
	})

	if len(contents) != 2 {
		t.Fatalf("expected 2 conversational contents, got %d", len(contents))
	}
	if contents[1].Role != string(genai.RoleModel) {
		t.Errorf("assistant turn should map to model role, got %q", contents[1].Role)
	}
	if cfg.SystemInstruction == nil || !strings.Contains(cfg.SystemInstruction.Parts[0].Text, "JSON Schema") {
		t.Errorf("system instruction should carry the schema description")
	}
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType = %q, want application/json", cfg.ResponseMIMEType)
	}
	schema, ok := cfg.ResponseJsonSchema.(rawSchema)
	if !ok || schema != rawSchema(`{"type":"object"}`) {
		t.Errorf("ResponseJsonSchema = %#v, want the request schema definition", cfg.ResponseJsonSchema)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.35 {
		t.Errorf("temperature not forwarded: %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 100 {
		t.Errorf("MaxOutputTokens = %d, want 100", cfg.MaxOutputTokens)
	}
}

func TestSplitRequest_NoSchemaLeavesJSONModeOff(t *testing.T) {
	cfg, _ := splitRequest(llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if cfg.ResponseMIMEType != "" || cfg.ResponseJsonSchema != nil {
		t.Errorf("plain request got JSON mode: %q %#v", cfg.ResponseMIMEType, cfg.ResponseJsonSchema)
	}
	if cfg.SystemInstruction != nil {
		t.Errorf("unexpected system instruction")
	}
}

func TestResponseText_SkipsThoughtParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: `{"score":`},
				{Text: `0.2}`},
			}},
		}},
	}
	if got := responseText(resp); got != `{"score":0.2}` {
		t.Errorf("responseText = %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Errorf("responseText(nil) = %q, want empty", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (&Config{Model: "gemini-2.5-flash"}).Validate(); err == nil {
		t.Error("expected error for missing API key")
	}
	if err := (&Config{APIKey: "k", Model: "gemini-2.5-flash"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
