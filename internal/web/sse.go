package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/reasoning"
)

// ── SSE Writer ──

// sseWriter wraps an http.ResponseWriter with SSE event writing and
// client disconnect detection.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
}

// newSSEWriter prepares SSE headers and returns a writer.
// Returns nil if streaming is not supported.
func newSSEWriter(w http.ResponseWriter, r *http.Request) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, flusher: flusher, ctx: r.Context()}
}

// Send writes an SSE event. Returns false if the client has disconnected.
func (s *sseWriter) Send(event string, data any) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		log.Printf("[SSE] JSON marshal error: %v", err)
		return false
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonBytes); err != nil {
		log.Printf("[SSE] Write error (client disconnected?): %v", err)
		return false
	}
	s.flusher.Flush()
	return true
}

// ── SSE Event Types ──

const (
	sseEventReasoning = "reasoning"
	sseEventAnswer    = "answer"
	sseEventDone      = "done"
	sseEventError     = "error"
)

// sseItem is one reasoning item as the browser sees it. Fields of an item
// still being typed may be empty.
type sseItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type sseReasoningEvent struct {
	Items []sseItem `json:"items"`
}

type sseAnswerEvent struct {
	Text string `json:"text"`
}

type sseDoneEvent struct {
	SessionID string          `json:"session_id"`
	Reasoning []sseItem       `json:"reasoning"`
	Answer    string          `json:"answer"`
	Stats     reasoning.Stats `json:"stats"`
	ElapsedMs int64           `json:"elapsed_ms"`
}

type sseErrorEvent struct {
	Error string `json:"error"`
}

func snapshotItems(snap reasoning.Snapshot) []sseItem {
	out := make([]sseItem, len(snap))
	for i, p := range snap {
		out[i] = sseItem{Title: p.TitleText(), Content: p.ContentText()}
	}
	return out
}

func reasoningItems(items []conversation.ReasoningItem) []sseItem {
	out := make([]sseItem, len(items))
	for i, it := range items {
		out[i] = sseItem{Title: it.Title, Content: it.Content}
	}
	return out
}
