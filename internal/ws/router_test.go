package ws

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swarmbench/swarmbench/internal/config"
	"github.com/swarmbench/swarmbench/internal/session"
)

// event mirrors the outbound wire envelope for test decoding.
type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func setupTestServer(t *testing.T) (*httptest.Server, *session.Orchestrator, *Hub, func()) {
	t.Helper()

	dir := t.TempDir()
	stub := filepath.Join(dir, "worker.sh")
	script := "#!/bin/sh\nwhile :; do sleep 0.1; done\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub worker: %v", err)
	}

	cfg := config.Default()
	cfg.WorkerBin = stub
	cfg.BasePort = 18190
	cfg.Warmup = 0
	cfg.PollInterval = config.Duration(50 * time.Millisecond)

	hub := NewHub()
	orch := session.NewOrchestrator(cfg, hub)
	router := NewRouter(orch, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", router.HandleWebSocket)

	server := httptest.NewServer(mux)
	return server, orch, hub, func() {
		server.Close()
		orch.Shutdown()
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var evt event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return evt
}

func TestConnectCreatesSession(t *testing.T) {
	server, orch, hub, cleanup := setupTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	evt := readEvent(t, conn)
	if evt.Type != "connected" {
		t.Fatalf("expected connected event, got %q", evt.Type)
	}
	id, _ := evt.Data["session_id"].(string)
	if id == "" {
		t.Fatal("expected non-empty session id")
	}

	if got := len(orch.List()); got != 1 {
		t.Errorf("expected one live session, got %d", got)
	}
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("expected one client, got %d", got)
	}
}

func TestStartWithMissingParamsEmitsError(t *testing.T) {
	server, _, _, cleanup := setupTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	if evt := readEvent(t, conn); evt.Type != "connected" {
		t.Fatalf("expected connected event, got %q", evt.Type)
	}

	msg := `{"type":"start_load_test","data":{"host":"http://x"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	evt := readEvent(t, conn)
	if evt.Type != "error" {
		t.Fatalf("expected error event, got %q", evt.Type)
	}
	if msg, _ := evt.Data["message"].(string); msg == "" {
		t.Error("expected error message")
	}
}

func TestDisconnectTearsDownSession(t *testing.T) {
	server, orch, _, cleanup := setupTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if evt := readEvent(t, conn); evt.Type != "connected" {
		t.Fatalf("expected connected event, got %q", evt.Type)
	}

	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(orch.List()) > 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if got := len(orch.List()); got != 0 {
		t.Errorf("expected session removed after close, got %d live", got)
	}
}

func TestUnknownEventIsIgnored(t *testing.T) {
	server, orch, _, cleanup := setupTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	if evt := readEvent(t, conn); evt.Type != "connected" {
		t.Fatalf("expected connected event, got %q", evt.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	// Connection must stay up.
	time.Sleep(100 * time.Millisecond)
	if got := len(orch.List()); got != 1 {
		t.Errorf("expected session to survive unknown event, got %d live", got)
	}
}
