package wa

import (
	"strings"

	"github.com/matheus3301/wabridge/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParseMessage normalizes a live whatsmeow message event into the canonical
// record shape. Media fields are filled separately by the downloader.
func ParseMessage(evt *events.Message) *store.Message {
	return &store.Message{
		ID:        evt.Info.ID,
		ChatID:    evt.Info.Chat.ToNonAD().String(),
		SenderID:  evt.Info.Sender.ToNonAD().String(),
		Text:      extractText(evt.Message),
		Timestamp: evt.Info.Timestamp.UnixMilli(),
		IsGroup:   evt.Info.IsGroup,
		FromMe:    evt.Info.IsFromMe,
		Type:      detectType(evt.Message),
		HasMedia:  hasMedia(evt.Message),
		Caption:   extractCaption(evt.Message),
	}
}

// ParseHistoryMessage normalizes one message from a history sync conversation.
func ParseHistoryMessage(chatID string, wmsg *waHistorySync.HistorySyncMsg) *store.Message {
	info := wmsg.GetMessage()
	if info == nil || info.GetMessage() == nil {
		return nil
	}
	msg := info.GetMessage()
	sender := info.GetKey().GetParticipant()
	if sender == "" {
		sender = chatID
	}
	return &store.Message{
		ID:        info.GetKey().GetID(),
		ChatID:    NormalizeJID(chatID),
		SenderID:  NormalizeJID(sender),
		Text:      extractText(msg),
		Timestamp: int64(info.GetMessageTimestamp()) * 1000, // seconds to millis
		IsGroup:   strings.HasSuffix(chatID, "@g.us"),
		FromMe:    info.GetKey().GetFromMe(),
		Type:      detectType(msg),
		HasMedia:  hasMedia(msg),
		Caption:   extractCaption(msg),
	}
}

// NormalizeJID strips device/agent suffixes so the same contact always maps
// to one chat id (e.g. "5585:0@s.whatsapp.net" -> "5585@s.whatsapp.net").
func NormalizeJID(jid string) string {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return jid
	}
	return parsed.ToNonAD().String()
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func extractCaption(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	default:
		return ""
	}
}

func detectType(msg *waE2E.Message) string {
	if msg == nil {
		return store.TypeOther
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return store.TypeText
	case msg.GetImageMessage() != nil:
		return store.TypeImage
	case msg.GetVideoMessage() != nil:
		return store.TypeVideo
	case msg.GetStickerMessage() != nil:
		return store.TypeSticker
	default:
		return store.TypeOther
	}
}

func hasMedia(msg *waE2E.Message) bool {
	if msg == nil {
		return false
	}
	return msg.GetImageMessage() != nil ||
		msg.GetVideoMessage() != nil ||
		msg.GetStickerMessage() != nil ||
		msg.GetAudioMessage() != nil ||
		msg.GetDocumentMessage() != nil
}

// mediaMimeType returns the declared mime type of the media part, if any.
func mediaMimeType(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetMimetype()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetMimetype()
	default:
		return ""
	}
}

// isRevoke reports whether a message event is a revoke notification.
func isRevoke(msg *waE2E.Message) bool {
	if msg == nil {
		return false
	}
	return msg.GetProtocolMessage().GetType() == waE2E.ProtocolMessage_REVOKE
}
