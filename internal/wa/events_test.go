package wa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/wabridge/internal/bus"
	"github.com/matheus3301/wabridge/internal/status"
	"github.com/matheus3301/wabridge/internal/store"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

type fakeDownloader struct {
	url  string
	mime string
	err  error

	calls int
}

func (f *fakeDownloader) Download(_ context.Context, _ string, _ *waE2E.Message) (string, string, error) {
	f.calls++
	return f.url, f.mime, f.err
}

func newTestHandler(t *testing.T, media MediaDownloader) (*EventHandler, <-chan bus.Event) {
	t.Helper()
	b := bus.New()
	machine := status.NewMachine(b, zap.NewNop())
	ch, unsub := b.Subscribe("wa.", 16)
	t.Cleanup(unsub)
	return NewEventHandler(b, machine, media, zap.NewNop()), ch
}

func textEvent(id, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			ID:        id,
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "chat", Server: "s.whatsapp.net"},
				Sender: types.JID{User: "sender", Server: "s.whatsapp.net"},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func imageEvent(id string) *events.Message {
	evt := textEvent(id, "")
	evt.Message = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Mimetype: proto.String("image/jpeg"),
	}}
	return evt
}

func recvEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus event")
		return bus.Event{}
	}
}

func TestHandleTextMessagePublishes(t *testing.T) {
	h, ch := newTestHandler(t, nil)

	h.Handle(textEvent("T1", "hello"))

	evt := recvEvent(t, ch)
	if evt.Kind != bus.KindInboundMessage {
		t.Fatalf("Kind = %q, want %q", evt.Kind, bus.KindInboundMessage)
	}
	msg, ok := evt.Payload.(*store.Message)
	if !ok {
		t.Fatalf("payload is %T, want *store.Message", evt.Payload)
	}
	if msg.ID != "T1" || msg.Text != "hello" {
		t.Errorf("got %+v", msg)
	}
}

func TestHandleMediaDownloadSuccess(t *testing.T) {
	dl := &fakeDownloader{url: "/media/IMG1.jpg", mime: "image/jpeg"}
	h, ch := newTestHandler(t, dl)

	h.Handle(imageEvent("IMG1"))

	msg := recvEvent(t, ch).Payload.(*store.Message)
	if dl.calls != 1 {
		t.Errorf("downloader calls = %d, want 1", dl.calls)
	}
	if !msg.HasMedia {
		t.Error("HasMedia = false, want true")
	}
	if msg.MediaURL != "/media/IMG1.jpg" {
		t.Errorf("MediaURL = %q", msg.MediaURL)
	}
	if msg.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q", msg.MimeType)
	}
}

func TestHandleMediaDownloadFailureDegradesRecord(t *testing.T) {
	dl := &fakeDownloader{err: errors.New("connection reset")}
	h, ch := newTestHandler(t, dl)

	h.Handle(imageEvent("IMG2"))

	msg := recvEvent(t, ch).Payload.(*store.Message)
	if !msg.HasMedia {
		t.Error("HasMedia = false; failed download must still flag media")
	}
	if msg.MediaURL != "" {
		t.Errorf("MediaURL = %q, want empty after failed download", msg.MediaURL)
	}
}

func TestHandleRevokeIsNoOp(t *testing.T) {
	h, ch := newTestHandler(t, nil)

	evt := textEvent("R1", "")
	evt.Message = &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
		Type: waE2E.ProtocolMessage_REVOKE.Enum(),
		Key:  &waCommon.MessageKey{ID: proto.String("gone")},
	}}
	h.Handle(evt)

	select {
	case got := <-ch:
		t.Fatalf("revoke published %+v, want nothing", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleQRDrivesMachine(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b, zap.NewNop())
	h := NewEventHandler(b, machine, nil, zap.NewNop())

	h.Handle(&events.QR{Codes: []string{"qr-code-1", "qr-code-2"}})

	if machine.Current() != status.AwaitingAuth {
		t.Errorf("state = %q, want %q", machine.Current(), status.AwaitingAuth)
	}
}

func TestHandleConnectedMarksReady(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b, zap.NewNop())
	h := NewEventHandler(b, machine, nil, zap.NewNop())

	h.Handle(&events.Connected{})

	if !machine.IsReady() {
		t.Errorf("state = %q, want %q", machine.Current(), status.Ready)
	}
}

func TestHandleTemporaryBanIsTerminal(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b, zap.NewNop())
	h := NewEventHandler(b, machine, nil, zap.NewNop())

	h.Handle(&events.Connected{})
	h.Handle(&events.TemporaryBan{Code: events.TempBanSentToTooManyPeople})

	if machine.Current() != status.Blocked {
		t.Errorf("state = %q, want %q", machine.Current(), status.Blocked)
	}
}
