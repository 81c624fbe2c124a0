// Package web provides an HTTP status and command server for the stepper-keys daemon.
package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sweeney/stepper-keys/internal/command"
	"github.com/sweeney/stepper-keys/internal/status"
)

// maxCommand bounds the body of a POST /command request.
const maxCommand = 256

// Server serves the status page over HTTP and accepts text commands.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	target     command.Target
}

// New creates a Server that reads state from the given tracker. Commands are
// applied to target; a nil target disables POST /command.
func New(addr string, tracker *status.Tracker, target command.Target) *Server {
	s := &Server{tracker: tracker, target: target}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/command", s.handleCommand)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleCommand applies one command line from the request body, e.g.
//
//	curl -d 'deg 90' http://host:8080/command
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.target == nil {
		http.Error(w, "commands disabled", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommand))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	reply := command.Handle(s.target, "http", string(body))
	if reply == "" {
		http.Error(w, "empty command", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if strings.HasPrefix(reply, "error: ") {
		w.WriteHeader(http.StatusBadRequest)
	}
	io.WriteString(w, reply+"\n")
}
