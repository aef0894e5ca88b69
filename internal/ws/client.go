package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swarmbench/swarmbench/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// inboundEvent is a JSON message received from the client.
type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is one WebSocket connection bound to one session.
type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	orch      *session.Orchestrator
	sessionID string
	out       chan Event
}

func newClient(conn *websocket.Conn, hub *Hub, orch *session.Orchestrator, sessionID string) *Client {
	return &Client{
		conn:      conn,
		hub:       hub,
		orch:      orch,
		sessionID: sessionID,
		out:       make(chan Event, 256),
	}
}

// send queues an event for delivery, dropping it if the client is too far
// behind. Stats are a stream of fresh values; stale ones are expendable.
func (c *Client) send(evt Event) {
	select {
	case c.out <- evt:
	default:
	}
}

// Close drops the connection. The read pump notices and runs teardown.
func (c *Client) Close() {
	c.conn.Close()
}

// readPump consumes client events until the connection dies, then tears
// the session down.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.orch.Disconnect(c.sessionID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return
		}

		var msg inboundEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("invalid client message: %v", err)
			continue
		}
		c.handleEvent(msg)
	}
}

func (c *Client) handleEvent(msg inboundEvent) {
	switch msg.Type {
	case "start_load_test":
		var params session.StartParams
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &params); err != nil {
				c.send(Event{Type: "error", Data: errorData{Message: "malformed start_load_test payload"}})
				return
			}
		}
		// Starting blocks through the worker's warm-up window; keep the
		// read pump responsive.
		go c.orch.StartLoadTest(c.sessionID, params)

	case "stop_load_test":
		go c.orch.StopLoadTest(c.sessionID)

	case "ping":
		// Client keepalive, presence is sufficient

	default:
		log.Printf("unknown client event type: %s", msg.Type)
	}
}

// writePump delivers queued events and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
