package ws

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/swarmbench/swarmbench/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: implement proper origin checking
		return true
	},
}

// Router upgrades HTTP requests into session-bound WebSocket connections.
type Router struct {
	orch *session.Orchestrator
	hub  *Hub
}

// NewRouter creates a router delivering events through hub.
func NewRouter(orch *session.Orchestrator, hub *Hub) *Router {
	return &Router{orch: orch, hub: hub}
}

// HandleWebSocket upgrades the request, mints a session id and connects
// the session. The id is sent back first so the client can query the log
// endpoint.
func (r *Router) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	id := uuid.New().String()
	client := newClient(conn, r.hub, r.orch, id)
	r.hub.add(client)
	r.orch.Connect(id)

	client.send(Event{Type: "connected", Data: map[string]string{"session_id": id}})

	go client.readPump()
	go client.writePump()
}
