package llm

import (
	"fmt"
	"strings"
)

// StructuredOutputCapability describes how a model can be constrained to
// emit JSON.
type StructuredOutputCapability struct {
	StrictSchema bool // response_format=json_schema is honoured
	JSONMode     bool // response_format=json_object is honoured
}

// baseModelName lowercases the model name and strips provider prefixes
// (e.g., "Pro/deepseek-ai/DeepSeek-R1" -> "deepseek-r1").
func baseModelName(modelName string) string {
	parts := strings.Split(strings.ToLower(modelName), "/")
	return parts[len(parts)-1]
}

// DetectStructuredOutputCapability determines whether a model accepts a
// strict JSON schema, only a JSON-object mode, or neither.
//
// Detection strategy (priority order):
//  1. Known schema-capable families (OpenAI gpt-4o and newer, o-series, Gemini)
//  2. Known JSON-mode-only families (DeepSeek, Qwen, GLM, Kimi)
//  3. Default: no native constraint; the schema is only described in the prompt
func DetectStructuredOutputCapability(modelName string) StructuredOutputCapability {
	baseName := baseModelName(modelName)

	strictFamilies := []string{
		"gpt-4o", "gpt-4.1", "gpt-5",
		"o1", "o3", "o4-mini",
		"gemini-1.5", "gemini-2",
	}
	for _, known := range strictFamilies {
		if strings.HasPrefix(baseName, known) {
			// Early o1 previews never shipped structured outputs.
			if baseName == "o1-mini" || baseName == "o1-preview" {
				return StructuredOutputCapability{}
			}
			return StructuredOutputCapability{StrictSchema: true, JSONMode: true}
		}
	}

	jsonModeFamilies := []string{
		"deepseek", "qwen", "qwq", "glm", "kimi", "moonshot", "gpt-3.5-turbo", "gpt-4-turbo",
	}
	for _, known := range jsonModeFamilies {
		if strings.HasPrefix(baseName, known) {
			return StructuredOutputCapability{JSONMode: true}
		}
	}

	return StructuredOutputCapability{}
}

// GetContextWindow returns the approximate context window in tokens for a known model.
// Returns 0 for unrecognised models; callers should apply their own safe default.
// Ordered from most to least specific prefix to avoid short-prefix false matches.
func GetContextWindow(modelName string) int {
	baseName := baseModelName(modelName)

	knownWindows := []struct {
		prefix string
		tokens int
	}{
		// OpenAI
		{"gpt-4o", 128_000},
		{"gpt-4.1", 1_000_000},
		{"gpt-4-turbo", 128_000},
		{"gpt-4", 8_192},
		{"gpt-3.5-turbo", 16_385},
		{"o1-mini", 128_000},
		{"o1-preview", 128_000},
		{"o1", 200_000},
		{"o3-mini", 200_000},
		{"o3", 200_000},
		{"o4-mini", 200_000},
		// DeepSeek
		{"deepseek-r1", 64_000},
		{"deepseek-v3", 64_000},
		{"deepseek", 64_000},
		// Google Gemini
		{"gemini-2.5", 1_000_000},
		{"gemini-2.0", 1_000_000},
		{"gemini-1.5-pro", 2_000_000},
		{"gemini-1.5-flash", 1_000_000},
		// Alibaba Qwen
		{"qwq", 32_000},
		{"qwen3", 32_000},
		{"qwen2.5", 128_000},
		// Zhipu GLM
		{"glm-4", 128_000},
	}

	for _, kw := range knownWindows {
		if strings.HasPrefix(baseName, kw.prefix) {
			return kw.tokens
		}
	}
	return 0 // unknown model; caller should apply a safe default
}

// DescribeContextWindow formats GetContextWindow for logs.
func DescribeContextWindow(modelName string) string {
	if n := GetContextWindow(modelName); n > 0 {
		return fmt.Sprintf("%d tokens", n)
	}
	return "unknown"
}
