package bus

import "time"

// Well-known event kinds published on the bus. Subscribers filter by
// namespace prefix, e.g. "wa." for everything the provider boundary emits.
const (
	// KindInboundMessage carries a *store.Message parsed from a live
	// provider event, before persistence.
	KindInboundMessage = "wa.message"
	// KindHistoryBatch carries a []*store.Message from a history sync.
	KindHistoryBatch = "wa.history_batch"

	// KindMessageIngested carries a *store.Message that has been durably
	// persisted. The gateway broadcasts only this kind as NEW_MESSAGE.
	KindMessageIngested = "message.ingested"

	// KindSessionReady fires once per transition into the READY state.
	KindSessionReady = "session.ready"
	// KindStatusChanged carries a status.StatusChange payload.
	KindStatusChanged = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
