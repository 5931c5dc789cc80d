package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wabridge/internal/bus"
	"github.com/matheus3301/wabridge/internal/status"
	"github.com/matheus3301/wabridge/internal/store"
	"go.uber.org/zap"
)

func dialWS(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, *http.Response) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil && resp == nil {
		t.Fatal(err)
	}
	return conn, resp
}

func TestWebSocketRequiresAuth(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeSender{})
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	conn, resp := dialWS(t, ts, "")
	if conn != nil {
		_ = conn.Close()
		t.Fatal("unauthenticated websocket dial succeeded")
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebSocketReceivesNewMessage(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	machine := status.NewMachine(b, zap.NewNop())
	s := NewServer(0, testSecret, db, machine, &fakeSender{}, b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.hub.Run(ctx)
	defer s.hub.Stop()

	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	conn, _ := dialWS(t, ts, "Bearer "+testSecret)
	if conn == nil {
		t.Fatal("dial failed")
	}
	defer func() { _ = conn.Close() }()

	// Wait for the hub to register the connection.
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	msg := &store.Message{
		ID:        "M1",
		ChatID:    "c@s.whatsapp.net",
		SenderID:  "s@s.whatsapp.net",
		Text:      "hello",
		Timestamp: 100,
		Type:      store.TypeText,
	}
	b.Publish(bus.Event{Kind: bus.KindMessageIngested, Timestamp: time.Now(), Payload: msg})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Type    string        `json:"type"`
		Payload store.Message `json:"payload"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeNewMessage {
		t.Errorf("type = %q, want %q", env.Type, TypeNewMessage)
	}
	if env.Payload.ID != "M1" || env.Payload.Text != "hello" {
		t.Errorf("payload = %+v", env.Payload)
	}
}

func TestWebSocketReceivesReadyEnvelope(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	machine := status.NewMachine(b, zap.NewNop())
	s := NewServer(0, testSecret, db, machine, &fakeSender{}, b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.hub.Run(ctx)
	defer s.hub.Stop()

	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	conn, _ := dialWS(t, ts, "Bearer "+testSecret)
	if conn == nil {
		t.Fatal("dial failed")
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	markReady(machine)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeWhatsAppReady {
		t.Errorf("type = %q, want %q", env.Type, TypeWhatsAppReady)
	}
	if env.Payload["status"] != "ready" {
		t.Errorf("payload = %+v", env.Payload)
	}
}

func TestBroadcastDropsFailedClient(t *testing.T) {
	b := bus.New()
	hub := NewHub(b, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Kill the client side, then broadcast until the write fails and the
	// hub drops the connection.
	_ = conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 {
		hub.Broadcast(Envelope{Type: TypeNewMessage, Payload: map[string]string{"x": "y"}})
		if time.Now().After(deadline) {
			t.Fatal("failed client never dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
