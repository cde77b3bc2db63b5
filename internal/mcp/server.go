// Package mcp exposes the reasoning assistant as a Model Context Protocol
// tool server.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	sdk_mcp "github.com/mark3labs/mcp-go/mcp"
	sdk_server "github.com/mark3labs/mcp-go/server"

	"github.com/pocketomega/reasonloop/internal/assistant"
	"github.com/pocketomega/reasonloop/internal/conversation"
	"github.com/pocketomega/reasonloop/internal/prompt"
	"github.com/pocketomega/reasonloop/internal/util"
)

const (
	serverName       = "reasonloop"
	reasonTimeout    = 5 * time.Minute
	progressMethod   = "notifications/progress"
	toolReason       = "reason"
	toolReloadPrompt = "reload_prompts"
)

// notifyFunc delivers a notification to the client that sent the request
// carried by ctx.
type notifyFunc func(ctx context.Context, method string, params map[string]any) error

// Options configures the MCP server.
type Options struct {
	Responder *assistant.Responder
	Loader    *prompt.Loader // optional; enables reload_prompts
	Version   string
	Timeout   time.Duration // 0 = reasonTimeout
}

// Server is a stdio MCP server with a reasoning tool.
type Server struct {
	responder *assistant.Responder
	loader    *prompt.Loader
	timeout   time.Duration
	inner     *sdk_server.MCPServer
	notify    notifyFunc
}

// NewServer creates the server and registers its tools.
func NewServer(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = reasonTimeout
	}
	if opts.Version == "" {
		opts.Version = "0.1.0"
	}
	s := &Server{
		responder: opts.Responder,
		loader:    opts.Loader,
		timeout:   opts.Timeout,
		inner: sdk_server.NewMCPServer(serverName, opts.Version,
			sdk_server.WithToolCapabilities(false),
			sdk_server.WithRecovery(),
			sdk_server.WithInstructions("Call the reason tool with a question to get a step-by-step reasoned answer."),
		),
		notify: notifyClient,
	}

	s.inner.AddTool(sdk_mcp.NewTool(toolReason,
		sdk_mcp.WithDescription("Think through a question step by step and answer it. "+
			"Returns the accepted reasoning steps followed by the final answer. "+
			"Sends a progress notification for every accepted step when a progress token is supplied."),
		sdk_mcp.WithString("question", sdk_mcp.Required(), sdk_mcp.Description("The question to answer")),
		sdk_mcp.WithString("context", sdk_mcp.Description("Optional background the answer should take into account")),
		sdk_mcp.WithReadOnlyHintAnnotation(true),
	), s.handleReason)

	if s.loader != nil {
		s.inner.AddTool(sdk_mcp.NewTool(toolReloadPrompt,
			sdk_mcp.WithDescription("Reload prompt templates and user rules from disk."),
			sdk_mcp.WithIdempotentHintAnnotation(true),
		), s.handleReload)
	}
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *sdk_server.MCPServer { return s.inner }

// ServeStdio serves requests read from in until ctx is canceled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	log.Printf("[MCP] Serving %s over stdio", serverName)
	return sdk_server.NewStdioServer(s.inner).Listen(ctx, in, out)
}

func notifyClient(ctx context.Context, method string, params map[string]any) error {
	srv := sdk_server.ServerFromContext(ctx)
	if srv == nil {
		return fmt.Errorf("mcp: no server in context")
	}
	return srv.SendNotificationToClient(ctx, method, params)
}

// question builds the user message for a tool call.
func question(text, background string) conversation.Message {
	items := []conversation.Item{conversation.PlainTextItem{Text: text}}
	if background = strings.TrimSpace(background); background != "" {
		items = append(items, conversation.PlainTextItem{Text: "Context:\n" + background})
	}
	return conversation.NewMessage(conversation.RoleUser, items...)
}

func (s *Server) handleReason(ctx context.Context, req sdk_mcp.CallToolRequest) (*sdk_mcp.CallToolResult, error) {
	text, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(text) == "" {
		return sdk_mcp.NewToolResultError("question is required"), nil
	}

	var token sdk_mcp.ProgressToken
	if req.Params.Meta != nil {
		token = req.Params.Meta.ProgressToken
	}

	log.Printf("[MCP] reason: %q", util.OneLine(text, 80))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conv := conversation.New(question(strings.TrimSpace(text), req.GetString("context", "")))
	reply := s.responder.Respond(ctx, conv)

	reported := 0
	for ev, err := range reply.Events() {
		if err != nil {
			log.Printf("[MCP] reason failed: %v", err)
			return sdk_mcp.NewToolResultErrorFromErr("reasoning failed", err), nil
		}
		if token == nil || ev.Kind != assistant.EventReasoning {
			continue
		}
		for reported < ev.Accepted && reported < len(ev.Reasoning) {
			title := ev.Reasoning[reported].TitleText()
			reported++
			if err := s.notify(ctx, progressMethod, map[string]any{
				"progressToken": token,
				"progress":      reported,
				"message":       fmt.Sprintf("Step %d: %s", reported, title),
			}); err != nil {
				log.Printf("[MCP] progress notification dropped: %v", err)
			}
		}
	}

	msg, err := reply.Message()
	if err != nil {
		return sdk_mcp.NewToolResultErrorFromErr("reasoning failed", err), nil
	}
	log.Printf("[MCP] reason done: %+v", reply.Stats())
	return sdk_mcp.NewToolResultText(formatReply(msg)), nil
}

func (s *Server) handleReload(ctx context.Context, req sdk_mcp.CallToolRequest) (*sdk_mcp.CallToolResult, error) {
	s.loader.Reload()
	log.Printf("[MCP] prompts reloaded")
	return sdk_mcp.NewToolResultText("Prompt templates and user rules reloaded."), nil
}

// formatReply renders the reasoning steps and the answer as Markdown.
func formatReply(msg conversation.Message) string {
	var sb strings.Builder
	if items := msg.ReasoningItems(); len(items) > 0 {
		sb.WriteString("## Reasoning\n\n")
		for i, it := range items {
			fmt.Fprintf(&sb, "%d. **%s**\n   %s\n", i+1, it.Title, strings.ReplaceAll(it.Content, "\n", "\n   "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Answer\n\n")
	sb.WriteString(msg.Text())
	return sb.String()
}
