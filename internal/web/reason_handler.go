package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pocketomega/reasonloop/internal/assistant"
	"github.com/pocketomega/reasonloop/internal/attach"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/session"
	"github.com/pocketomega/reasonloop/internal/util"
)

const (
	maxRequestBody  = 1 << 20         // 1MB max request body
	maxMessageRunes = 8000            // max user message length in runes
	reasonTimeout   = 5 * time.Minute // global timeout for one reply
)

// PageFetcher loads a page to attach to the user message.
type PageFetcher func(ctx context.Context, url string) (attach.Page, error)

// ReasonHandlerOptions configures the reasoning endpoint.
type ReasonHandlerOptions struct {
	Responder     *assistant.Responder
	Store         *session.Store
	MaxConcurrent int64         // runs allowed at once; <= 0 means 1
	Timeout       time.Duration // 0 = reasonTimeout
	Fetch         PageFetcher   // nil = attach.FetchPage
}

// ReasonHandler serves POST /api/reason: it streams the reasoning snapshots
// and the answer of one reply as server-sent events.
type ReasonHandler struct {
	responder *assistant.Responder
	store     *session.Store
	sem       *semaphore.Weighted
	capacity  int64
	active    atomic.Int64
	timeout   time.Duration
	fetch     PageFetcher
}

// NewReasonHandler creates a ReasonHandler.
func NewReasonHandler(opts ReasonHandlerOptions) *ReasonHandler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = reasonTimeout
	}
	if opts.Fetch == nil {
		opts.Fetch = attach.FetchPage
	}
	return &ReasonHandler{
		responder: opts.Responder,
		store:     opts.Store,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		capacity:  opts.MaxConcurrent,
		timeout:   opts.Timeout,
		fetch:     opts.Fetch,
	}
}

// Active returns the number of replies currently streaming.
func (h *ReasonHandler) Active() int { return int(h.active.Load()) }

// Capacity returns the concurrent run cap.
func (h *ReasonHandler) Capacity() int64 { return h.capacity }

// ServeHTTP processes a reasoning request using SSE streaming.
func (h *ReasonHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	userText := strings.TrimSpace(r.FormValue("message"))
	if userText == "" {
		http.Error(w, "Empty message", http.StatusBadRequest)
		return
	}
	if len([]rune(userText)) > maxMessageRunes {
		http.Error(w, "Message too long", http.StatusRequestEntityTooLarge)
		return
	}

	if !h.sem.TryAcquire(1) {
		log.Printf("[Web] Rejecting request: %d reasoning runs in flight", h.capacity)
		w.Header().Set("Retry-After", "5")
		http.Error(w, "Too many concurrent reasoning sessions", http.StatusServiceUnavailable)
		return
	}
	defer h.sem.Release(1)
	h.active.Add(1)
	defer h.active.Add(-1)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items := []conversation.Item{conversation.PlainTextItem{Text: userText}}
	if url := strings.TrimSpace(r.FormValue("url")); url != "" {
		page, err := h.fetch(ctx, url)
		if err != nil {
			log.Printf("[Web] Attachment failed: %v", err)
			status := http.StatusBadGateway
			if errors.Is(err, attach.ErrUnsupportedURL) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		items = append(items, page.Item())
	}
	userMsg := conversation.NewMessage(conversation.RoleUser, items...)

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	conv := h.store.Conversation(sessionID)
	conv.Append(userMsg)

	log.Printf("[Web] Reason request: session=%s history=%d msg=%q", sessionID, conv.Len()-1, util.OneLine(userText, 80))

	sse := newSSEWriter(w, r)
	if sse == nil {
		return
	}

	start := time.Now()
	reply := h.responder.Respond(ctx, conv)
	for ev, err := range reply.Events() {
		if err != nil {
			log.Printf("[Web] Reply failed: session=%s: %v", sessionID, err)
			sse.Send(sseEventError, sseErrorEvent{Error: err.Error()})
			return
		}
		var sent bool
		switch ev.Kind {
		case assistant.EventReasoning:
			sent = sse.Send(sseEventReasoning, sseReasoningEvent{Items: snapshotItems(ev.Reasoning)})
		case assistant.EventAnswer:
			sent = sse.Send(sseEventAnswer, sseAnswerEvent{Text: ev.Answer})
		}
		if !sent {
			break
		}
	}

	msg, err := reply.Message()
	if err != nil {
		// Abandoned by the client: nothing is stored.
		log.Printf("[Web] Reply not stored: session=%s: %v", sessionID, err)
		return
	}
	h.store.Append(sessionID, userMsg, msg)

	sse.Send(sseEventDone, sseDoneEvent{
		SessionID: sessionID,
		Reasoning: reasoningItems(msg.ReasoningItems()),
		Answer:    msg.Text(),
		Stats:     reply.Stats(),
		ElapsedMs: time.Since(start).Milliseconds(),
	})
	log.Printf("[Web] Done: session=%s %+v", sessionID, reply.Stats())
}
