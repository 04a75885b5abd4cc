package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// ---- helpers ----

// startTestHub creates a hub and runs it in a background goroutine.
// For unit tests with fake (nil-conn) clients, we do NOT auto-close since
// hub.Close() tries to write a close frame to each client's conn. Instead,
// each test that registers fake clients must unregister them before the hub
// is stopped, or simply let the goroutine leak (short-lived test process).
func startTestHub(t *testing.T) *wsHub {
	t.Helper()
	hub := newWSHub(slog.Default())
	go hub.run()
	return hub
}

// unregisterAll sends unregister for each client and waits briefly.
func unregisterAll(hub *wsHub, clients ...*wsClient) {
	for _, c := range clients {
		hub.unregister <- c
	}
	time.Sleep(20 * time.Millisecond)
}

// dialWS upgrades an httptest.Server to a WebSocket connection.
func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/compose/progress"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

// readWSMessage reads and decodes a single wsMessage from the connection
// with a timeout.
func readWSMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v (raw: %s)", err, data)
	}
	return msg
}

// ---- wsHub unit tests ----

func TestNewWSHub_Initialization(t *testing.T) {
	hub := newWSHub(slog.Default())
	if hub == nil {
		t.Fatal("newWSHub returned nil")
	}
	if hub.clients == nil {
		t.Fatal("clients map is nil")
	}
	if len(hub.clients) != 0 {
		t.Fatalf("clients map should be empty, got %d", len(hub.clients))
	}
	if hub.broadcast == nil {
		t.Fatal("broadcast channel is nil")
	}
	if hub.register == nil {
		t.Fatal("register channel is nil")
	}
	if hub.unregister == nil {
		t.Fatal("unregister channel is nil")
	}
	if hub.done == nil {
		t.Fatal("done channel is nil")
	}
	if hub.logger == nil {
		t.Fatal("logger is nil")
	}
}

func TestWSHub_ClientCount_Empty(t *testing.T) {
	hub := newWSHub(slog.Default())
	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}
}

func TestWSHub_RegisterClient(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{
		hub:  hub,
		send: make(chan []byte, 256),
	}
	hub.register <- client

	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.clientCount())
	}
	unregisterAll(hub, client)
}

func TestWSHub_UnregisterClient(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{
		hub:  hub,
		send: make(chan []byte, 256),
	}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}
}

func TestWSHub_UnregisterUnknownClient(t *testing.T) {
	hub := startTestHub(t)

	unknown := &wsClient{
		hub:  hub,
		send: make(chan []byte, 256),
	}

	hub.unregister <- unknown
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}
}

func TestWSHub_BroadcastToClients(t *testing.T) {
	hub := startTestHub(t)

	c1 := &wsClient{hub: hub, send: make(chan []byte, 256)}
	c2 := &wsClient{hub: hub, send: make(chan []byte, 256)}
	c3 := &wsClient{hub: hub, send: make(chan []byte, 256)}

	hub.register <- c1
	hub.register <- c2
	hub.register <- c3
	time.Sleep(20 * time.Millisecond)

	msg, _ := json.Marshal(wsMessage{Type: "test", Data: "hello"})
	hub.broadcast <- msg
	time.Sleep(20 * time.Millisecond)

	for i, c := range []*wsClient{c1, c2, c3} {
		select {
		case got := <-c.send:
			var m wsMessage
			if err := json.Unmarshal(got, &m); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if m.Type != "test" {
				t.Fatalf("client %d: type = %q, want test", i, m.Type)
			}
		default:
			t.Fatalf("client %d: no message received", i)
		}
	}
	unregisterAll(hub, c1, c2, c3)
}

func TestWSHub_BroadcastDropsSlowClient(t *testing.T) {
	hub := startTestHub(t)

	slow := &wsClient{hub: hub, send: make(chan []byte, 1)}
	hub.register <- slow
	time.Sleep(20 * time.Millisecond)

	slow.send <- []byte("fill")

	msg, _ := json.Marshal(wsMessage{Type: "test", Data: "x"})
	hub.broadcast <- msg
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 0 {
		t.Fatalf("expected slow client to be dropped, got %d clients", hub.clientCount())
	}
}

func TestWSHub_BroadcastProgress_NoClients(t *testing.T) {
	hub := startTestHub(t)

	hub.BroadcastProgress(domain.ProgressUpdate{MaxTimestamp: 5 * time.Second})
}

func TestWSHub_BroadcastProgress_WithClients(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	update := domain.ProgressUpdate{
		ProcessedStreamIDs: []domain.MediaStreamID{1, 2},
		MaxTimestamp:       12 * time.Second,
		Done:               false,
	}
	hub.BroadcastProgress(update)
	time.Sleep(20 * time.Millisecond)

	select {
	case data := <-client.send:
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "progress" {
			t.Fatalf("type = %q, want progress", msg.Type)
		}
	default:
		t.Fatal("no message received")
	}
	unregisterAll(hub, client)
}

func TestWSHub_BroadcastProgress_Done(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	hub.BroadcastProgress(domain.ProgressUpdate{Done: true})
	time.Sleep(20 * time.Millisecond)

	select {
	case data := <-client.send:
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		payload, err := json.Marshal(msg.Data)
		if err != nil {
			t.Fatalf("re-marshal data: %v", err)
		}
		var update domain.ProgressUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			t.Fatalf("unmarshal progress update: %v", err)
		}
		if !update.Done {
			t.Fatal("expected Done = true")
		}
	default:
		t.Fatal("no message received")
	}
	unregisterAll(hub, client)
}

func TestWSHub_Broadcast_GenericMessage(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast("status", map[string]string{"state": "running"})
	time.Sleep(20 * time.Millisecond)

	select {
	case data := <-client.send:
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "status" {
			t.Fatalf("type = %q, want status", msg.Type)
		}
	default:
		t.Fatal("no message received")
	}
	unregisterAll(hub, client)
}

func TestWSHub_Broadcast_NoClients(t *testing.T) {
	hub := startTestHub(t)

	hub.Broadcast("health", map[string]string{"status": "ok"})
}

func TestWSHub_Broadcast_MarshalFailure(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast("bad", make(chan int))
	time.Sleep(20 * time.Millisecond)

	select {
	case <-client.send:
		t.Fatal("should not receive message when marshal fails")
	default:
	}
	unregisterAll(hub, client)
}

func TestWSHub_Close_DisconnectsClients(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	c1 := dialWS(t, srv)
	c2 := dialWS(t, srv)
	time.Sleep(50 * time.Millisecond)

	s.Close()
	time.Sleep(100 * time.Millisecond)

	_ = c1.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err1 := c1.ReadMessage()
	if err1 == nil {
		t.Fatal("c1: expected error after hub close")
	}

	_ = c2.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err2 := c2.ReadMessage()
	if err2 == nil {
		t.Fatal("c2: expected error after hub close")
	}
	c1.Close()
	c2.Close()
}

func TestWSHub_MultipleRegisterUnregister(t *testing.T) {
	hub := startTestHub(t)

	clients := make([]*wsClient, 5)
	for i := range clients {
		clients[i] = &wsClient{hub: hub, send: make(chan []byte, 256)}
		hub.register <- clients[i]
	}
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 5 {
		t.Fatalf("expected 5 clients, got %d", hub.clientCount())
	}

	for i := 0; i < 3; i++ {
		hub.unregister <- clients[i]
	}
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 2 {
		t.Fatalf("expected 2 clients after unregister, got %d", hub.clientCount())
	}
	unregisterAll(hub, clients[3], clients[4])
}

// ---- WebSocket HTTP handler integration tests ----

func TestHandleWS_UpgradeSucceeds(t *testing.T) {
	srv := httptest.NewServer(NewServer(nil))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandleWS_MultipleConcurrentClients(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	const numClients = 3
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = dialWS(t, srv)
		defer conns[i].Close()
	}

	time.Sleep(50 * time.Millisecond)

	s.BroadcastProgress(domain.ProgressUpdate{MaxTimestamp: time.Second})

	for i, conn := range conns {
		msg := readWSMessage(t, conn, 2*time.Second)
		if msg.Type != "progress" {
			t.Fatalf("client %d: type = %q, want progress", i, msg.Type)
		}
	}
}

func TestHandleWS_ClientDisconnect(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	time.Sleep(50 * time.Millisecond)

	conn.Close()
	time.Sleep(100 * time.Millisecond)

	s.BroadcastProgress(domain.ProgressUpdate{Done: true})
}

func TestHandleWS_Healthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleWS_Metrics(t *testing.T) {
	srv := httptest.NewServer(NewServer(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleWS_NonWSRequest(t *testing.T) {
	s := NewServer(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/compose/progress", nil)
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWS_PingPong(t *testing.T) {
	srv := httptest.NewServer(NewServer(nil))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	pongReceived := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongReceived <- struct{}{}:
		default:
		}
		return nil
	})

	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	go func() {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-pongReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("pong not received within timeout")
	}
}

func TestServer_BroadcastProgress_NilServer(t *testing.T) {
	var s *Server
	s.BroadcastProgress(domain.ProgressUpdate{})
}

func TestServer_Close_NilServer(t *testing.T) {
	var s *Server
	s.Close()
}

func TestServer_Close_WithHub(t *testing.T) {
	s := NewServer(nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	time.Sleep(50 * time.Millisecond)

	s.Close()
	time.Sleep(100 * time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected error after server close")
	}
	conn.Close()
}

func TestWSMessage_JSONStructure(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		data    interface{}
	}{
		{"progress", "progress", domain.ProgressUpdate{MaxTimestamp: time.Second}},
		{"health", "health", map[string]interface{}{"status": "ok"}},
		{"nil_data", "test", nil},
		{"empty_string_data", "test", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := wsMessage{Type: tt.msgType, Data: tt.data}
			data, err := json.Marshal(msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var decoded wsMessage
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decoded.Type != tt.msgType {
				t.Fatalf("type = %q, want %q", decoded.Type, tt.msgType)
			}
		})
	}
}
