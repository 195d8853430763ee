// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// setupWebSocketServer creates a test WebSocket server with a custom handler
func setupWebSocketServer(t *testing.T, handler func(t *testing.T, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()
		handler(t, conn)
	}))
	t.Cleanup(server.Close)
	return server
}

// dialWebSocket establishes a WebSocket connection to the test server
func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// waitForChannel waits for a channel signal with timeout
func waitForChannel(t *testing.T, ch <-chan bool, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Errorf("%s: timeout after %v", msg, timeout)
	}
}

func TestNewClient(t *testing.T) {
	hub := NewHub()
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(50 * time.Millisecond)
	})
	conn := dialWebSocket(t, server)

	a := NewClient(hub, conn)
	b := NewClient(hub, conn)
	if a.hub != hub || a.conn != conn || a.send == nil {
		t.Fatal("client not fully initialized")
	}
	if b.ID() <= a.ID() {
		t.Errorf("IDs not increasing: %d then %d", a.ID(), b.ID())
	}
}

func TestClient_SetSnapshot(t *testing.T) {
	c := createTestClient(NewHub(), 1)
	if c.snapshot != nil {
		t.Fatal("new client should carry no snapshot")
	}
	c.SetSnapshot(func() (Message, uint64) { return Message{Type: MessageTypeSnapshot}, 3 })
	msg, version := c.snapshot()
	if msg.Type != MessageTypeSnapshot || version != 3 {
		t.Errorf("snapshot() = %q, %d", msg.Type, version)
	}
}

func TestClient_WritePump_SendMessage(t *testing.T) {
	received := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("Failed to read message: %v", err)
			return
		}
		if msg.Type != MessageTypeSnapshot {
			t.Errorf("Type = %q, want %q", msg.Type, MessageTypeSnapshot)
		}
		received <- true
	})
	conn := dialWebSocket(t, server)

	client := NewClient(NewHub(), conn)
	go client.writePump()
	client.send <- Message{Type: MessageTypeSnapshot, Data: map[string]string{"status": "empty"}}

	waitForChannel(t, received, time.Second, "message not received")
}

func TestClient_ReadPump_PingPong(t *testing.T) {
	hub := setupHub(t)

	receivedPong := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
			t.Errorf("Failed to write ping: %v", err)
			return
		}
		var pong Message
		if err := conn.ReadJSON(&pong); err != nil {
			t.Errorf("Failed to read pong: %v", err)
			return
		}
		if pong.Type == MessageTypePong {
			receivedPong <- true
		}
	})
	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn)
	hub.Register <- client
	client.Start()

	waitForChannel(t, receivedPong, time.Second, "pong not received")
}

func TestClient_ReadPump_UnregistersOnClose(t *testing.T) {
	hub := setupHub(t)

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})
	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn)
	registerClient(t, hub, client, 1)
	client.Start()

	waitFor(t, func() bool { return hub.GetClientCount() == 0 }, "unregister after close")
}

func TestClient_WritePump_ChannelClose(t *testing.T) {
	gotClose := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		if websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
			gotClose <- true
		}
	})
	conn := dialWebSocket(t, server)

	client := NewClient(NewHub(), conn)
	done := make(chan struct{})
	go func() {
		client.writePump()
		close(done)
	}()
	close(client.send)

	waitForChannel(t, gotClose, time.Second, "close frame not received")
	<-done
}
