package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/wabridge/internal/bus"
	"github.com/matheus3301/wabridge/internal/store"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Envelope is the frame sent to every websocket subscriber.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Envelope types.
const (
	TypeNewMessage    = "NEW_MESSAGE"
	TypeWhatsAppReady = "WHATSAPP_READY"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Consumers are local processes; auth happens in the bearer middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans bus events out to connected websocket clients.
type Hub struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub. Run must be called before it forwards anything.
func NewHub(b *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		bus:    b,
		logger: logger,
		conns:  make(map[string]*websocket.Conn),
	}
}

// Run subscribes to ingested-message and session events and forwards them
// until Stop is called.
func (h *Hub) Run(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})

	msgCh, unsubMsg := h.bus.Subscribe("message.", 256)
	sessCh, unsubSess := h.bus.Subscribe("session.", 16)

	go func() {
		defer close(h.done)
		defer unsubMsg()
		defer unsubSess()
		for {
			select {
			case <-ctx.Done():
				h.closeAll()
				return
			case evt := <-msgCh:
				if evt.Kind != bus.KindMessageIngested {
					continue
				}
				if msg, ok := evt.Payload.(*store.Message); ok {
					h.Broadcast(Envelope{Type: TypeNewMessage, Payload: msg})
				}
			case evt := <-sessCh:
				if evt.Kind == bus.KindSessionReady {
					h.Broadcast(Envelope{Type: TypeWhatsAppReady, Payload: map[string]any{"status": "ready"}})
				}
			}
		}
	}()
}

// Stop terminates the forwarding loop and closes all client connections.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
}

// Broadcast sends an envelope to every connected client. A client whose
// write fails is dropped; the rest keep receiving.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(env); err != nil {
			h.logger.Warn("dropping websocket client", zap.String("client_id", id), zap.Error(err))
			_ = conn.Close()
			delete(h.conns, id)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// HandleWS upgrades the request and registers the client. The read loop
// exists only to detect disconnects; inbound frames are discarded.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()
	h.logger.Info("websocket client connected", zap.String("client_id", id))

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.conns, id)
			h.mu.Unlock()
			_ = conn.Close()
			h.logger.Info("websocket client disconnected", zap.String("client_id", id))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, id)
	}
}
