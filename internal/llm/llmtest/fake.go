// Package llmtest provides a scripted llm.LLMProvider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pocketomega/reasonloop/internal/llm"
)

// Handler produces the raw model answer for a request.
type Handler func(req llm.Request) (string, error)

// Fake is an in-memory provider. Streaming splits the handler's answer into
// ChunkSize-rune pieces and checks the context between pieces. With
// SplitBytes the pieces are ChunkSize bytes, so a multi-byte rune can be
// split across chunks like on a raw byte stream.
type Fake struct {
	Handler    Handler
	ChunkSize  int
	SplitBytes bool

	mu      sync.Mutex
	calls   []llm.Request
	aborted int
}

// New returns a Fake that answers with h.
func New(h Handler) *Fake {
	return &Fake{Handler: h, ChunkSize: 4}
}

// Name returns the provider name.
func (f *Fake) Name() string { return "fake" }

// CallLLM returns the handler's answer in one piece.
func (f *Fake) CallLLM(ctx context.Context, req llm.Request) (llm.Message, error) {
	f.record(req)
	if err := ctx.Err(); err != nil {
		return llm.Message{}, err
	}
	text, err := f.Handler(req)
	if err != nil {
		return llm.Message{}, err
	}
	return llm.Message{Role: llm.RoleAssistant, Content: text}, nil
}

// CallLLMStream delivers the handler's answer in chunks.
func (f *Fake) CallLLMStream(ctx context.Context, req llm.Request, onChunk llm.StreamCallback) (llm.Message, error) {
	f.record(req)
	text, err := f.Handler(req)
	if err != nil {
		return llm.Message{}, err
	}
	size := f.ChunkSize
	if size <= 0 {
		size = 4
	}
	for _, chunk := range f.chunks(text, size) {
		if err := ctx.Err(); err != nil {
			f.mu.Lock()
			f.aborted++
			f.mu.Unlock()
			return llm.Message{}, err
		}
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return llm.Message{Role: llm.RoleAssistant, Content: text}, nil
}

func (f *Fake) chunks(text string, size int) []string {
	var out []string
	if f.SplitBytes {
		for start := 0; start < len(text); start += size {
			out = append(out, text[start:min(start+size, len(text))])
		}
		return out
	}
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		out = append(out, string(runes[start:min(start+size, len(runes))]))
	}
	return out
}

func (f *Fake) record(req llm.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
}

// Calls returns every request received so far.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.calls...)
}

// CallsFor returns the requests whose schema is named name.
func (f *Fake) CallsFor(name string) []llm.Request {
	var out []llm.Request
	for _, c := range f.Calls() {
		if c.Schema != nil && c.Schema.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Aborted reports how many streams stopped because their context ended.
func (f *Fake) Aborted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

// BySchema dispatches each request to the handler registered for its schema
// name. Requests without a matching handler fail.
func BySchema(handlers map[string]Handler) Handler {
	return func(req llm.Request) (string, error) {
		name := ""
		if req.Schema != nil {
			name = req.Schema.Name
		}
		h, ok := handlers[name]
		if !ok {
			return "", fmt.Errorf("llmtest: no handler for schema %q", name)
		}
		return h(req)
	}
}

// Text returns a handler that always answers s.
func Text(s string) Handler {
	return func(llm.Request) (string, error) { return s, nil }
}
