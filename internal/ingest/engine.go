// Package ingest subscribes to provider events on the bus and turns them
// into durable rows. It is the only writer of message history: the provider
// publishes, ingest persists, and only then does the record become visible
// to gateway consumers.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/wabridge/internal/bus"
	"github.com/matheus3301/wabridge/internal/store"
	"go.uber.org/zap"
)

// Directory lists the chats and contacts known to the provider. It is
// consulted once per session-ready to refresh the local copies.
type Directory interface {
	Chats(ctx context.Context) ([]store.Chat, error)
	Contacts(ctx context.Context) ([]store.Contact, error)
}

// Engine wires the bus to the store.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	dir    Directory
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an ingestion engine. dir may be nil, in which case
// session-ready events do not trigger a directory sync.
func NewEngine(db *store.DB, b *bus.Bus, dir Directory, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		dir:    dir,
		logger: logger,
	}
}

// Start subscribes to provider and session events and processes them until
// Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	waCh, unsubWA := e.bus.Subscribe("wa.", 256)
	sessCh, unsubSess := e.bus.Subscribe("session.", 16)

	go func() {
		defer close(e.done)
		defer unsubWA()
		defer unsubSess()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-waCh:
				e.handle(ctx, evt)
			case evt := <-sessCh:
				e.handle(ctx, evt)
			}
		}
	}()
}

// Stop cancels the processing loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handle(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindInboundMessage:
		msg, ok := evt.Payload.(*store.Message)
		if !ok {
			e.logger.Warn("unexpected payload on inbound message event",
				zap.String("kind", evt.Kind))
			return
		}
		if err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to ingest message",
				zap.Error(err), zap.String("msg_id", msg.ID))
		}
	case bus.KindHistoryBatch:
		msgs, ok := evt.Payload.([]*store.Message)
		if !ok {
			e.logger.Warn("unexpected payload on history batch event",
				zap.String("kind", evt.Kind))
			return
		}
		if err := e.IngestHistoryBatch(msgs); err != nil {
			e.logger.Error("failed to ingest history batch",
				zap.Error(err), zap.Int("count", len(msgs)))
		}
	case bus.KindSessionReady:
		if e.dir == nil {
			return
		}
		if err := e.SyncAll(ctx); err != nil {
			e.logger.Error("directory sync failed", zap.Error(err))
		}
	}
}

// IngestMessage persists a single live message and then announces it on the
// bus. The write always happens before the announcement, so any consumer
// that sees the event can read the row back.
func (e *Engine) IngestMessage(msg *store.Message) error {
	if err := e.db.UpsertMessage(msg); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageIngested,
		Timestamp: time.Now(),
		Payload:   msg,
	})
	e.logger.Debug("message ingested",
		zap.String("msg_id", msg.ID),
		zap.String("chat_id", msg.ChatID))
	return nil
}

// IngestHistoryBatch persists a batch of backfilled messages in one
// transaction. History rows are not announced individually; consumers pull
// backfill through the read API.
func (e *Engine) IngestHistoryBatch(msgs []*store.Message) error {
	if err := e.db.UpsertMessages(msgs); err != nil {
		return fmt.Errorf("upsert history batch: %w", err)
	}
	e.logger.Info("history batch ingested", zap.Int("count", len(msgs)))
	return nil
}

// SyncAll refreshes the local chat and contact tables from the provider
// directory. Individual row failures are logged and skipped so one bad
// entry cannot abort the whole sync.
func (e *Engine) SyncAll(ctx context.Context) error {
	start := time.Now()

	chats, err := e.dir.Chats(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	var chatErrs int
	for i := range chats {
		c := &chats[i]
		if c.LastMessageID == "" {
			last, err := e.db.LatestMessageID(c.ID)
			if err == nil {
				c.LastMessageID = last
			}
		}
		if err := e.db.UpsertChat(c); err != nil {
			chatErrs++
			e.logger.Warn("failed to upsert chat", zap.Error(err), zap.String("chat_id", c.ID))
		}
	}

	contacts, err := e.dir.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("list contacts: %w", err)
	}
	var contactErrs int
	for i := range contacts {
		if err := e.db.UpsertContact(&contacts[i]); err != nil {
			contactErrs++
			e.logger.Warn("failed to upsert contact", zap.Error(err), zap.String("contact_id", contacts[i].ID))
		}
	}

	e.logger.Info("directory sync complete",
		zap.Int("chats", len(chats)-chatErrs),
		zap.Int("contacts", len(contacts)-contactErrs),
		zap.Int("failed", chatErrs+contactErrs),
		zap.Duration("took", time.Since(start)))
	return nil
}
