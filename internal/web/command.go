package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/session"
)

// CommandHandlerOptions configures the slash command handler.
type CommandHandlerOptions struct {
	Loader          *prompt.Loader
	Store           *session.Store
	ModelName       string     // used by /stats
	SimilarityCache func() int // used by /stats; nil = no cache
	ActiveRuns      func() int // used by /stats
}

// commandResult is the JSON response from a slash command.
type commandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"` // optional frontend action (e.g. "clear_chat")
}

// commandFunc handles a single slash command.
type commandFunc func(ctx context.Context, args string, sessionID string) commandResult

// CommandHandler routes slash commands to handlers without involving the LLM.
type CommandHandler struct {
	opts     CommandHandlerOptions
	commands map[string]commandFunc
}

// NewCommandHandler creates a command handler with built-in commands.
func NewCommandHandler(opts CommandHandlerOptions) *CommandHandler {
	h := &CommandHandler{opts: opts}
	h.commands = map[string]commandFunc{
		"reload": h.cmdReload,
		"clear":  h.cmdClear,
		"help":   h.cmdHelp,
		"stats":  h.cmdStats,
	}
	return h
}

type commandRequest struct {
	Command   string `json:"command"`
	Args      string `json:"args"`
	SessionID string `json:"session_id"`
}

// HandleCommand is the HTTP handler for POST /api/command.
func (h *CommandHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	w.Header().Set("Content-Type", "application/json")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		json.NewEncoder(w).Encode(commandResult{OK: false, Message: "invalid request: " + err.Error()})
		return
	}

	fn, ok := h.commands[strings.TrimPrefix(req.Command, "/")]
	if !ok {
		json.NewEncoder(w).Encode(commandResult{
			OK:      false,
			Message: "unknown command /" + req.Command + ", try /help",
		})
		return
	}

	json.NewEncoder(w).Encode(fn(r.Context(), req.Args, req.SessionID))
}

// ── Built-in commands ──

func (h *CommandHandler) cmdReload(ctx context.Context, args, sessionID string) commandResult {
	if h.opts.Loader != nil {
		h.opts.Loader.Reload()
	}
	log.Printf("[Command] /reload executed")
	return commandResult{OK: true, Message: "Prompts and user rules reloaded"}
}

func (h *CommandHandler) cmdClear(ctx context.Context, args, sessionID string) commandResult {
	if sessionID != "" && h.opts.Store != nil {
		h.opts.Store.Delete(sessionID)
	}
	log.Printf("[Command] /clear executed, session=%s", sessionID)
	return commandResult{OK: true, Message: "Conversation cleared", Action: "clear_chat"}
}

func (h *CommandHandler) cmdHelp(ctx context.Context, args, sessionID string) commandResult {
	return commandResult{
		OK: true,
		Message: "Available commands:\n" +
			"/reload  reload prompt templates and user rules\n" +
			"/clear   forget the current conversation\n" +
			"/stats   show session and server status\n" +
			"/help    show this help",
	}
}

func (h *CommandHandler) cmdStats(ctx context.Context, args, sessionID string) commandResult {
	var sb strings.Builder
	sb.WriteString("Session status\n")

	if sessionID != "" && h.opts.Store != nil {
		conv := h.opts.Store.Conversation(sessionID)
		reasoning := 0
		for _, m := range conv.Messages() {
			reasoning += len(m.ReasoningItems())
		}
		sb.WriteString(fmt.Sprintf("• messages: %d (reasoning items: %d)\n", conv.Len(), reasoning))
	} else {
		sb.WriteString("• messages: no active session\n")
	}
	if h.opts.Store != nil {
		sb.WriteString(fmt.Sprintf("• open sessions: %d\n", h.opts.Store.Count()))
	}
	if h.opts.ActiveRuns != nil {
		sb.WriteString(fmt.Sprintf("• reasoning runs in flight: %d\n", h.opts.ActiveRuns()))
	}
	if h.opts.SimilarityCache != nil {
		sb.WriteString(fmt.Sprintf("• cached similarity scores: %d\n", h.opts.SimilarityCache()))
	}
	if h.opts.ModelName != "" {
		sb.WriteString(fmt.Sprintf("• model: %s\n", h.opts.ModelName))
	}

	return commandResult{OK: true, Message: sb.String()}
}
