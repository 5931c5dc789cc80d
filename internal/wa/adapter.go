package wa

import (
	"context"
	"fmt"

	"github.com/matheus3301/wabridge/internal/session"
	"github.com/matheus3301/wabridge/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
	session   string
}

// NewAdapter creates a new WhatsApp adapter for the given session.
func NewAdapter(ctx context.Context, sessionName string, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("WABridge", [3]uint32{0, 1, 0})

	dbPath := session.SessionDBPath(sessionName)

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	return &Adapter{
		client:    client,
		container: container,
		logger:    logger,
		session:   sessionName,
	}, nil
}

// Client returns the underlying whatsmeow client.
func (a *Adapter) Client() *whatsmeow.Client {
	return a.client
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connect initiates the WhatsApp connection. For a device without
// credentials, whatsmeow emits QR events through the registered handler.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Reconnect re-establishes the connection after a disconnect. It satisfies
// status.Reconnector.
func (a *Adapter) Reconnect() error {
	return a.Connect()
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// AddEventHandler registers a handler for whatsmeow events.
func (a *Adapter) AddEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// SendText sends a text message to the given chat id. Returns the server
// message id.
func (a *Adapter) SendText(ctx context.Context, chatID string, text string) (string, error) {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// Chats returns the provider's chat list: joined groups plus a direct chat
// per address-book contact. whatsmeow has no conversation-list API, so this
// is the closest enumerable equivalent.
func (a *Adapter) Chats(ctx context.Context) ([]store.Chat, error) {
	var chats []store.Chat

	groups, err := a.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}
	for _, g := range groups {
		chats = append(chats, store.Chat{
			ID:      g.JID.String(),
			Name:    g.GroupName.Name,
			IsGroup: true,
		})
	}

	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	for jid, info := range allContacts {
		if info.FullName == "" {
			continue
		}
		chats = append(chats, store.Chat{
			ID:      jid.ToNonAD().String(),
			Name:    info.FullName,
			IsGroup: false,
		})
	}
	return chats, nil
}

// Contacts returns all contacts from the whatsmeow device store. Name falls
// back to the push name when there is no address-book entry.
func (a *Adapter) Contacts(ctx context.Context) ([]store.Contact, error) {
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	var contacts []store.Contact
	for jid, info := range allContacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		contacts = append(contacts, store.Contact{
			ID:         jid.ToNonAD().String(),
			Name:       name,
			Number:     jid.User,
			IsBusiness: info.BusinessName != "",
		})
	}
	return contacts, nil
}
