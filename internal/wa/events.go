package wa

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/wabridge/internal/bus"
	"github.com/matheus3301/wabridge/internal/status"
	"github.com/matheus3301/wabridge/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

const mediaFetchTimeout = 30 * time.Second

// MediaDownloader fetches a message's media payload and returns where it was
// stored plus its mime type.
type MediaDownloader interface {
	Download(ctx context.Context, msgID string, msg *waE2E.Message) (url, mimeType string, err error)
}

// EventHandler processes whatsmeow events, drives the state machine, and
// publishes normalized records on the bus. Persistence is the ingest
// engine's job — it subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	media   MediaDownloader
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. media may be nil, in which
// case media messages are ingested without a payload.
func NewEventHandler(b *bus.Bus, machine *status.Machine, media MediaDownloader, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		media:   media,
		logger:  logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.QR:
		if len(evt.Codes) > 0 {
			h.machine.MarkAwaitingAuth(evt.Codes[0])
		}
	case *events.PairSuccess:
		h.logger.Info("pairing successful", zap.Stringer("device", evt.ID))
		h.machine.MarkAuthenticated()
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		if h.machine.Current() != status.Authenticated {
			h.machine.MarkAuthenticated()
		}
		h.machine.MarkReady()
	case *events.Disconnected:
		h.machine.MarkDisconnected("connection closed", false)
	case *events.LoggedOut:
		h.machine.MarkDisconnected("logged out: "+evt.Reason.String(), false)
	case *events.TemporaryBan:
		h.machine.MarkDisconnected(fmt.Sprintf("account banned: %s", evt.Code), true)
	case *events.Message:
		h.handleMessage(evt)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if isRevoke(evt.Message) {
		// Revokes are observed but never mutate stored history.
		h.logger.Info("message revoked",
			zap.String("msg_id", evt.Message.GetProtocolMessage().GetKey().GetID()),
			zap.String("chat_id", evt.Info.Chat.String()))
		return
	}

	msg := ParseMessage(evt)
	if msg.HasMedia && h.media != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mediaFetchTimeout)
		url, mime, err := h.media.Download(ctx, msg.ID, evt.Message)
		cancel()
		if err != nil {
			// Degrade the record rather than dropping the message.
			h.logger.Warn("media download failed, ingesting without media",
				zap.Error(err), zap.String("msg_id", msg.ID))
		} else {
			msg.MediaURL = url
			msg.MimeType = mime
		}
	}

	h.bus.Publish(bus.Event{
		Kind:      bus.KindInboundMessage,
		Timestamp: time.Now(),
		Payload:   msg,
	})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var msgs []*store.Message
	for _, conv := range data.GetConversations() {
		chatID := conv.GetID()
		for _, hm := range conv.GetMessages() {
			parsed := ParseHistoryMessage(chatID, hm)
			if parsed == nil {
				continue
			}
			msgs = append(msgs, parsed)
		}
	}

	if len(msgs) > 0 {
		h.bus.Publish(bus.Event{
			Kind:      bus.KindHistoryBatch,
			Timestamp: time.Now(),
			Payload:   msgs,
		})
	}
}
