package store

// Message type values as exposed over the API.
const (
	TypeText    = "text"
	TypeImage   = "image"
	TypeVideo   = "video"
	TypeSticker = "sticker"
	TypeOther   = "other"
)

// Message is the canonical persisted message record. ID is the
// provider-unique message id and is globally unique; re-ingesting the same
// id overwrites the row.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch millis
	IsGroup   bool   `json:"isGroup"`
	FromMe    bool   `json:"fromMe"`
	Type      string `json:"type"`
	HasMedia  bool   `json:"hasMedia"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// Chat is the canonical chat record. LastMessageID is a loose reference to
// Message.ID; integrity is not enforced.
type Chat struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsGroup       bool   `json:"isGroup"`
	UnreadCount   int    `json:"unreadCount"`
	LastMessageID string `json:"lastMessageId,omitempty"`
}

// Contact is the canonical contact record. Name may be empty when the
// provider has no address-book entry; callers fall back to the push name
// at mapping time.
type Contact struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Number     string `json:"number"`
	IsBusiness bool   `json:"isBusiness"`
}
