package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wabridge/internal/bus"
	"go.uber.org/zap"
)

// State represents a provider session state.
type State string

const (
	Disconnected  State = "DISCONNECTED"
	AwaitingAuth  State = "AWAITING_AUTH"
	Authenticated State = "AUTHENTICATED"
	Ready         State = "READY"
	Reconnecting  State = "RECONNECTING"
	// Blocked is terminal: the provider reported a permanent block and no
	// reconnect is ever attempted.
	Blocked State = "BLOCKED"
)

// validTransitions defines allowed state transitions. AWAITING_AUTH allows a
// self-transition because the provider re-issues auth challenges.
var validTransitions = map[State][]State{
	Disconnected:  {AwaitingAuth, Authenticated, Reconnecting, Blocked},
	AwaitingAuth:  {AwaitingAuth, Authenticated, Disconnected, Blocked},
	Authenticated: {Ready, Disconnected, Blocked},
	Ready:         {Disconnected, Blocked},
	Reconnecting:  {AwaitingAuth, Authenticated, Disconnected, Blocked},
	Blocked:       {},
}

// DefaultReconnectDelay is how long the machine waits after a non-terminal
// disconnect before attempting to reconnect.
const DefaultReconnectDelay = 10 * time.Second

// Reconnector re-establishes the provider connection after a disconnect.
type Reconnector interface {
	Reconnect() error
}

// Machine tracks provider session state, enforces transitions, and owns the
// reconnect policy. Exactly one reconnect attempt is scheduled per
// non-terminal disconnect; a later disconnect replaces the pending attempt
// and reaching READY cancels it.
type Machine struct {
	mu             sync.RWMutex
	current        State
	bus            *bus.Bus
	logger         *zap.Logger
	reconnector    Reconnector
	reconnectDelay time.Duration
	reconnectTimer *time.Timer
	lastChallenge  string
	onChallenge    []func(code string)
	onReady        []func()
	onDisconnected []func(reason string)
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(b *bus.Bus, logger *zap.Logger) *Machine {
	return &Machine{
		current:        Disconnected,
		bus:            b,
		logger:         logger,
		reconnectDelay: DefaultReconnectDelay,
	}
}

// SetReconnector wires the connection target used by scheduled reconnects.
func (m *Machine) SetReconnector(r Reconnector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnector = r
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsReady reports whether the session can send and receive.
func (m *Machine) IsReady() bool {
	return m.Current() == Ready
}

// OnChallenge registers a callback invoked once per new auth challenge code.
func (m *Machine) OnChallenge(f func(code string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChallenge = append(m.onChallenge, f)
}

// OnReady registers a callback invoked on every transition into READY.
func (m *Machine) OnReady(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReady = append(m.onReady, f)
}

// OnDisconnected registers a callback invoked on every disconnect,
// terminal or not.
func (m *Machine) OnDisconnected(f func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = append(m.onDisconnected, f)
}

// MarkAwaitingAuth records a new auth challenge. Re-issuing the same code
// while already awaiting auth is a no-op so the challenge is never shown
// twice for one code instance.
func (m *Machine) MarkAwaitingAuth(code string) {
	m.mu.Lock()
	if m.current == AwaitingAuth && code == m.lastChallenge {
		m.mu.Unlock()
		return
	}
	if err := m.transitionLocked(AwaitingAuth); err != nil {
		m.logger.Warn("ignoring auth challenge", zap.Error(err))
		m.mu.Unlock()
		return
	}
	m.lastChallenge = code
	callbacks := slices.Clone(m.onChallenge)
	m.mu.Unlock()

	for _, f := range callbacks {
		go f(code)
	}
}

// MarkAuthenticated records successful authentication.
func (m *Machine) MarkAuthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transitionLocked(Authenticated); err != nil {
		m.logger.Warn("ignoring authenticated event", zap.Error(err))
		return
	}
	m.lastChallenge = ""
}

// MarkReady records that the session can send and receive. Any pending
// reconnect attempt is cancelled.
func (m *Machine) MarkReady() {
	m.mu.Lock()
	if err := m.transitionLocked(Ready); err != nil {
		m.logger.Warn("ignoring ready event", zap.Error(err))
		m.mu.Unlock()
		return
	}
	m.cancelReconnectLocked()
	callbacks := slices.Clone(m.onReady)
	m.mu.Unlock()

	for _, f := range callbacks {
		go f()
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: bus.KindSessionReady, Timestamp: time.Now()})
	}
}

// MarkDisconnected records a disconnect. A terminal reason moves the machine
// to BLOCKED and schedules nothing; otherwise exactly one reconnect attempt
// is scheduled after the configured delay, replacing any pending attempt.
func (m *Machine) MarkDisconnected(reason string, terminal bool) {
	m.mu.Lock()
	target := Disconnected
	if terminal {
		target = Blocked
	}
	if err := m.transitionLocked(target); err != nil {
		m.logger.Warn("ignoring disconnect event", zap.Error(err))
		m.mu.Unlock()
		return
	}
	m.cancelReconnectLocked()
	if terminal {
		m.logger.Error("session permanently blocked, no reconnect will be attempted",
			zap.String("reason", reason))
	} else {
		m.logger.Warn("session disconnected, reconnect scheduled",
			zap.String("reason", reason),
			zap.Duration("delay", m.reconnectDelay))
		m.reconnectTimer = time.AfterFunc(m.reconnectDelay, m.attemptReconnect)
	}
	callbacks := slices.Clone(m.onDisconnected)
	m.mu.Unlock()

	for _, f := range callbacks {
		go f(reason)
	}
}

func (m *Machine) attemptReconnect() {
	m.mu.Lock()
	if err := m.transitionLocked(Reconnecting); err != nil {
		// State moved on while the timer was pending.
		m.mu.Unlock()
		return
	}
	r := m.reconnector
	m.mu.Unlock()

	if r == nil {
		m.logger.Error("no reconnector configured")
		return
	}
	m.logger.Info("attempting reconnect")
	if err := r.Reconnect(); err != nil {
		m.MarkDisconnected(fmt.Sprintf("reconnect failed: %v", err), false)
	}
}

// transitionLocked moves to a new state and publishes the change.
// Caller must hold m.mu.
func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// cancelReconnectLocked stops a pending reconnect timer if there is one.
// Caller must hold m.mu.
func (m *Machine) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
