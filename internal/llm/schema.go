package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptText describes the schema in natural language plus the raw JSON
// Schema, for providers that cannot enforce it natively.
func (s *Schema) PromptText() string {
	if s == nil || s.Definition == nil {
		return ""
	}
	raw, err := json.MarshalIndent(s.Definition, "", "  ")
	if err != nil {
		raw = []byte("{}")
	}
	var sb strings.Builder
	sb.WriteString("## Output format\n")
	if s.Description != "" {
		sb.WriteString(s.Description)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Respond with a single JSON object named %q that matches this JSON Schema. Output JSON only, no prose:\n", s.Name)
	sb.WriteString("```json\n")
	sb.Write(raw)
	sb.WriteString("\n```")
	return sb.String()
}

// WithSchemaInstruction returns a copy of messages whose system message ends
// with the schema description. A system message is prepended when absent.
func WithSchemaInstruction(messages []Message, schema *Schema) []Message {
	text := schema.PromptText()
	if text == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	injected := false
	for _, m := range messages {
		if !injected && m.Role == RoleSystem {
			m.Content = strings.TrimRight(m.Content, "\n") + "\n\n" + text
			injected = true
		}
		out = append(out, m)
	}
	if !injected {
		out = append([]Message{{Role: RoleSystem, Content: text}}, out...)
	}
	return out
}
