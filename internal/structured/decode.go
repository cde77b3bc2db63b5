// Package structured turns raw model text into typed Go values: one-shot
// decoding of a final answer, best-effort decoding of a truncated prefix
// while tokens are still arriving, and single-use live sequences that tie the
// two together.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

var (
	// ErrSchemaViolation is returned when model output cannot be decoded
	// into the expected type.
	ErrSchemaViolation = errors.New("structured: output does not match schema")

	// ErrStreamConsumed is returned when a Stream is iterated more than once.
	ErrStreamConsumed = errors.New("structured: stream already consumed")

	// ErrStreamAbandoned is returned by Collect after the consumer stopped
	// ranging over Partials before the final value arrived.
	ErrStreamAbandoned = errors.New("structured: stream abandoned by consumer")
)

// validator is implemented by output types with invariants beyond JSON shape.
type validator interface {
	Validate() error
}

// ExtractFenced returns the body of the first ```json / ```yaml / ``` block.
// An unterminated fence yields everything after it, so a prefix that is still
// streaming can be handled the same way. Without a fence the input itself is
// returned. Only a closed fence is trimmed on the right: trailing spaces of a
// prefix may belong to a string value that is still being typed.
func ExtractFenced(content string) string {
	for _, fence := range []string{"```json", "```yaml", "```"} {
		idx := strings.Index(content, fence)
		if idx < 0 {
			continue
		}
		rest := content[idx+len(fence):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimLeftFunc(rest, unicode.IsSpace)
	}
	return strings.TrimLeftFunc(content, unicode.IsSpace)
}

// completeRunes drops a trailing UTF-8 sequence whose remaining bytes have
// not arrived yet.
func completeRunes(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if !utf8.FullRuneInString(s[i:]) {
			return s[:i]
		}
		break
	}
	return s
}

// Decode parses a complete model answer into T.
//
// JSON is tried first. Models that ignore the JSON instruction often answer in
// YAML (or JSON with trailing prose), so the body is then decoded as YAML and
// re-encoded to JSON before the final unmarshal. Any failure wraps
// ErrSchemaViolation.
func Decode[T any](raw string) (T, error) {
	var out T
	body := ExtractFenced(raw)
	if strings.TrimSpace(body) == "" {
		return out, fmt.Errorf("%w: empty output", ErrSchemaViolation)
	}

	jsonErr := json.Unmarshal([]byte(body), &out)
	if jsonErr != nil {
		if obj := outermostObject(body); obj != "" && obj != body {
			out = *new(T)
			jsonErr = json.Unmarshal([]byte(obj), &out)
		}
	}
	if jsonErr != nil {
		var generic any
		if err := yaml.Unmarshal([]byte(body), &generic); err != nil || generic == nil {
			return out, fmt.Errorf("%w: %v", ErrSchemaViolation, jsonErr)
		}
		reencoded, err := json.Marshal(generic)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrSchemaViolation, jsonErr)
		}
		out = *new(T)
		if err := json.Unmarshal(reencoded, &out); err != nil {
			return out, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
	}

	if v, ok := any(&out).(validator); ok {
		if err := v.Validate(); err != nil {
			return out, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
	}
	return out, nil
}

// DecodePartial decodes a possibly truncated JSON prefix into P. The boolean
// is false when nothing decodable has arrived yet.
func DecodePartial[P any](raw string) (P, bool) {
	var out P
	repaired, ok := RepairJSON(ExtractFenced(completeRunes(raw)))
	if !ok {
		return out, false
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return out, false
	}
	return out, true
}

// outermostObject returns the text between the first '{' and the last '}'.
func outermostObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// frame is one open container while scanning a JSON prefix.
type frame struct {
	open    byte // '{' or '['
	wantKey bool // next string in this object is a key
}

// RepairJSON closes a truncated JSON prefix so it parses.
//
// Text before the first '{' or '[' is ignored. If the prefix ends inside a
// string value the string is closed, which lets callers render text as it is
// typed. Otherwise the prefix is cut back to the last complete value, which
// drops dangling keys, colons, commas and half-written numbers or literals.
// The boolean is false when no container has been opened yet.
func RepairJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	s = s[start:]

	var (
		stack     []frame
		safeStack []frame
		safeLen   int
		inString  bool
		escaped   bool
		isKey     bool
	)
	markSafe := func(end int) {
		safeLen = end
		safeStack = append(safeStack[:0], stack...)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if !isKey {
					markSafe(i + 1)
				}
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			isKey = false
			if n := len(stack); n > 0 && stack[n-1].open == '{' && stack[n-1].wantKey {
				isKey = true
				stack[n-1].wantKey = false
			}
		case '{':
			stack = append(stack, frame{open: '{', wantKey: true})
			markSafe(i + 1)
		case '[':
			stack = append(stack, frame{open: '['})
			markSafe(i + 1)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return s[:i+1], true
			}
			markSafe(i + 1)
		case ',':
			markSafe(i)
			if n := len(stack); n > 0 && stack[n-1].open == '{' {
				stack[n-1].wantKey = true
			}
		}
	}

	if inString && !isKey {
		body := s
		if escaped {
			body = body[:len(body)-1]
		}
		body = trimPartialUnicodeEscape(body)
		return body + `"` + closers(stack), true
	}
	if safeLen == 0 {
		return "", false
	}
	return s[:safeLen] + closers(safeStack), true
}

func closers(stack []frame) string {
	var sb strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].open == '{' {
			sb.WriteByte('}')
		} else {
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// trimPartialUnicodeEscape drops a trailing "\u" escape with fewer than four
// hex digits. A "u" after an escaped backslash is plain text.
func trimPartialUnicodeEscape(s string) string {
	idx := strings.LastIndex(s, `\u`)
	if idx < 0 || len(s)-idx >= 6 {
		return s
	}
	slashes := 0
	for i := idx; i >= 0 && s[i] == '\\'; i-- {
		slashes++
	}
	if slashes%2 == 0 {
		return s
	}
	for _, r := range s[idx+2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return s
		}
	}
	return s[:idx]
}
