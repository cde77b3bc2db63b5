package structured

import (
	"fmt"

	"github.com/pocketomega/reasonloop/internal/llm"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// SchemaFor derives a JSON Schema from T's json and description struct tags.
func SchemaFor[T any](name, description string) (*llm.Schema, error) {
	var zero T
	def, err := jsonschema.GenerateSchemaForType(zero)
	if err != nil {
		return nil, fmt.Errorf("generate schema %s: %w", name, err)
	}
	return &llm.Schema{Name: name, Description: description, Definition: def}, nil
}

// MustSchemaFor is like SchemaFor but panics on error. It is meant for
// package-level schema variables built from fixed types.
func MustSchemaFor[T any](name, description string) *llm.Schema {
	s, err := SchemaFor[T](name, description)
	if err != nil {
		panic(err)
	}
	return s
}
