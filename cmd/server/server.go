package main

import (
	"encoding/json"
	"net/http"

	"github.com/swarmbench/swarmbench/internal/session"
	"github.com/swarmbench/swarmbench/internal/ws"
)

// Server wires the HTTP surface: health, websocket upgrade and the
// read-only session log query.
type Server struct {
	orch     *session.Orchestrator
	wsRouter *ws.Router
}

func NewServer(orch *session.Orchestrator, wsRouter *ws.Router) *Server {
	return &Server{
		orch:     orch,
		wsRouter: wsRouter,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.wsRouter.HandleWebSocket)
	mux.HandleFunc("GET /logs/{sessionId}", s.handleLogs)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": len(s.orch.List()),
	})
}

// handleLogs returns the last 100 lines of the session's request log.
// Unknown sessions and sessions without a log both yield an empty list.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	sessionId := r.PathValue("sessionId")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"logs": s.orch.Logs(sessionId),
	})
}
