package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

//go:embed templates/index.html
var content embed.FS

// Server holds the HTTP server and its dependencies.
type Server struct {
	tmpl    *template.Template
	mux     *http.ServeMux
	reason  *ReasonHandler
	command *CommandHandler // optional
	health  *HealthHandler  // optional
}

// NewServer creates a new web server. command and health may be nil.
func NewServer(reason *ReasonHandler, command *CommandHandler, health *HealthHandler) (*Server, error) {
	tmpl, err := template.ParseFS(content, "templates/index.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		tmpl:    tmpl,
		mux:     http.NewServeMux(),
		reason:  reason,
		command: command,
		health:  health,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the routed handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.mux }

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.Handle("/api/reason", s.reason)
	if s.command != nil {
		s.mux.HandleFunc("/api/command", s.command.HandleCommand)
	}
	if s.health != nil {
		s.mux.Handle("/api/health", s.health)
	}
}

// handleIndex serves the main page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if err := s.tmpl.Execute(w, nil); err != nil {
		log.Printf("[Web] Template render error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Start listens on port until ctx is canceled or SIGINT/SIGTERM arrives,
// then waits up to 10s for in-flight requests to complete.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: s.mux}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Graceful shutdown goroutine
	go func() {
		<-ctx.Done()
		log.Printf("⚡ Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️  Graceful shutdown error: %v", err)
		}
	}()

	log.Printf("🌐 ReasonLoop server running at http://localhost%s", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		log.Println("✅ Server stopped gracefully")
		return nil // Normal shutdown, not an error
	}
	return err
}
