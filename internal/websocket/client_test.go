// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func serveHub(t *testing.T, hub *Hub) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, ClientInfo{
			UserID:     r.URL.Query().Get("user"),
			Role:       "user",
			SessionKey: r.URL.Query().Get("session"),
		})
		hub.Register(client)
		client.Start()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestClientPingPong(t *testing.T) {
	hub := startHub(t, nil, Options{})
	conn := dial(t, serveHub(t, hub)+"?user=alice&session=s1")
	waitFor(t, "registration", func() bool { return hub.UserConnectionCount("alice") == 1 })

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if m := readMessage(t, conn); m.Type != MessageTypePong {
		t.Errorf("reply type = %q, want pong", m.Type)
	}
}

func TestClientReceivesPush(t *testing.T) {
	hub := startHub(t, NewMemoryLedger(100, time.Hour), Options{})
	conn := dial(t, serveHub(t, hub)+"?user=alice&session=s1")
	waitFor(t, "registration", func() bool { return hub.UserConnectionCount("alice") == 1 })

	hub.SendToUser("alice", "notification:new", testNotice{ID: "n1"})
	m := readMessage(t, conn)
	if m.Type != "notification:new" {
		t.Fatalf("type = %q", m.Type)
	}
	data, ok := m.Data.(map[string]any)
	if !ok || data["id"] != "n1" {
		t.Errorf("data = %#v", m.Data)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := startHub(t, nil, Options{})
	conn := dial(t, serveHub(t, hub)+"?user=alice")
	waitFor(t, "registration", func() bool { return hub.UserConnectionCount("alice") == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitFor(t, "unregistration", func() bool { return hub.UserConnectionCount("alice") == 0 })
}

func TestClientInboundRateLimit(t *testing.T) {
	hub := startHub(t, nil, Options{InboundRate: 0.001, InboundBurst: 2})
	conn := dial(t, serveHub(t, hub)+"?user=alice")
	waitFor(t, "registration", func() bool { return hub.UserConnectionCount("alice") == 1 })

	for i := 0; i < 5; i++ {
		if err := conn.WriteJSON(Message{Type: "noise"}); err != nil {
			break
		}
	}
	waitFor(t, "rate limited disconnect", func() bool { return hub.UserConnectionCount("alice") == 0 })
}
