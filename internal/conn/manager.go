package conn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/go-powerdash/internal/domain"
	"github.com/resident-x/go-powerdash/internal/notify"
	"github.com/resident-x/go-powerdash/internal/store"
)

// SessionInfo is a read-only view of the connection session for external
// consumption.
type SessionInfo struct {
	Status           State      `json:"status"`
	ReconnectAttempt int        `json:"reconnectAttempt"`
	LastError        string     `json:"lastError,omitempty"`
	ConnectedAt      *time.Time `json:"connectedAt,omitempty"`
	EventsReceived   int64      `json:"eventsReceived"`
	CommandsSent     int64      `json:"commandsSent"`
	CommandsDropped  int64      `json:"commandsDropped"`
}

// Manager owns the single transport connection. It drives the session state
// machine (connecting, connected, disconnected, reconnecting, failed),
// reconnects with backoff, and routes every inbound event into the state
// store and notification feed. Transport failures surface as state
// transitions and notifications, never as propagated faults.
type Manager struct {
	transport domain.Transport
	store     *store.Store
	router    *notify.Router
	policy    BackoffPolicy
	logger    zerolog.Logger

	mu          sync.RWMutex
	state       State
	attempt     int
	lastErr     error
	conn        domain.Conn
	connectedAt *time.Time
	started     bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	eventsReceived  int64
	commandsSent    int64
	commandsDropped int64
}

// NewManager creates a connection manager. Store and router are required
// collaborators; the transport provides the actual wire connection.
func NewManager(transport domain.Transport, st *store.Store, router *notify.Router, policy BackoffPolicy) *Manager {
	return &Manager{
		transport: transport,
		store:     st,
		router:    router,
		policy:    policy,
		logger:    log.With().Str("component", "conn").Logger(),
		state:     StateConnecting,
		done:      make(chan struct{}),
	}
}

// Connect validates the address and starts the session loop. A malformed
// address fails fast: the session transitions to failed and a notification
// is emitted; the returned error only restates that outcome for callers that
// care. Calling Connect twice is a caller bug and returns an error without
// touching the session.
func (m *Manager) Connect(ctx context.Context, address string) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("connection manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if err := validateAddress(address); err != nil {
		m.setState(StateFailed, err)
		m.lifecycle(domain.SeverityError, fmt.Sprintf("Connection error: %v", err))
		close(m.done)
		return fmt.Errorf("invalid transport address: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.run(runCtx, address)

	return nil
}

// validateAddress rejects addresses no transport could dial.
func validateAddress(address string) error {
	if address == "" {
		return errors.New("empty address")
	}
	u, err := url.Parse(address)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("address %q has no scheme or host", address)
	}
	return nil
}

// Send delivers an outbound command, at most once. Commands issued while the
// session is not connected are dropped silently; they are never queued or
// replayed. A write failure is returned for observability but triggers no
// retry.
func (m *Manager) Send(name string, payload interface{}) error {
	m.mu.RLock()
	conn := m.conn
	state := m.state
	m.mu.RUnlock()

	if state != StateConnected || conn == nil {
		atomic.AddInt64(&m.commandsDropped, 1)
		m.logger.Debug().
			Str("command", name).
			Str("state", state.String()).
			Msg("Command dropped, session not connected")
		return nil
	}

	if err := conn.WriteCommand(name, payload); err != nil {
		m.logger.Warn().Str("command", name).Err(err).Msg("Failed to send command")
		return fmt.Errorf("failed to send command %s: %w", name, err)
	}

	atomic.AddInt64(&m.commandsSent, 1)
	m.logger.Debug().Str("command", name).Msg("Command sent")
	return nil
}

// Close tears the session down: the backoff timer is cancelled, the
// connection released, and the loop drained. Safe to call more than once and
// regardless of connection state.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}

		m.mu.Lock()
		conn := m.conn
		m.conn = nil
		started := m.started
		m.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		if started {
			<-m.done
		}

		m.logger.Info().Msg("Connection manager closed")
	})
	return nil
}

// Session returns a copy of the current session view.
func (m *Manager) Session() SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := SessionInfo{
		Status:           m.state,
		ReconnectAttempt: m.attempt,
		ConnectedAt:      m.connectedAt,
		EventsReceived:   atomic.LoadInt64(&m.eventsReceived),
		CommandsSent:     atomic.LoadInt64(&m.commandsSent),
		CommandsDropped:  atomic.LoadInt64(&m.commandsDropped),
	}
	if m.lastErr != nil {
		info.LastError = m.lastErr.Error()
	}
	return info
}

// Status returns the current session state.
func (m *Manager) Status() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// run is the session loop: it owns the transport connection exclusively and
// is the only goroutine feeding the ingestion pipeline, so events fold in
// arrival order.
func (m *Manager) run(ctx context.Context, address string) {
	defer close(m.done)

	conn, err := m.transport.Dial(ctx, address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.setState(StateDisconnected, err)
		m.lifecycle(domain.SeverityError, fmt.Sprintf("Connection error: %v", err))
		conn = m.reconnect(ctx, address)
	} else {
		m.becomeConnected(conn)
		m.lifecycle(domain.SeveritySuccess, "Connected to real-time server")
	}

	for conn != nil {
		err := m.readLoop(conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			m.setState(StateDisconnected, nil)
			return
		}

		m.setState(StateDisconnected, err)
		m.lifecycle(domain.SeverityError, "Disconnected from server")

		conn = m.reconnect(ctx, address)
	}
}

// readLoop pumps inbound events until the connection dies.
func (m *Manager) readLoop(conn domain.Conn) error {
	for {
		raw, err := conn.ReadEvent()
		if err != nil {
			return err
		}

		atomic.AddInt64(&m.eventsReceived, 1)
		m.dispatch(raw)
	}
}

// dispatch decodes one inbound event and routes it. Malformed and unknown
// events degrade to a no-op; notification-feed events bypass the store;
// everything else folds into the state store, with derived alerts forwarded
// to the notification feed.
func (m *Manager) dispatch(raw domain.RawEvent) {
	ev, err := domain.ParseEvent(raw.Kind, raw.Payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownEvent):
			m.logger.Debug().Str("kind", raw.Kind).Msg("Ignoring unknown event kind")
		case errors.Is(err, domain.ErrMalformedEvent):
			m.logger.Warn().Str("kind", raw.Kind).Err(err).Msg("Rejected malformed event")
		default:
			m.logger.Warn().Str("kind", raw.Kind).Err(err).Msg("Failed to decode event")
		}
		return
	}

	switch e := ev.(type) {
	case domain.NotificationEvent:
		m.router.Notify(e.Type, e.Message)

	case domain.CommandAckEvent:
		if e.Success {
			m.router.Notify(domain.SeveritySuccess, fmt.Sprintf("Command %s succeeded", e.Command))
		} else {
			reason := e.Error
			if reason == "" {
				reason = "unknown error"
			}
			m.router.Notify(domain.SeverityError, fmt.Sprintf("Command %s failed: %s", e.Command, reason))
		}

	default:
		m.store.Apply(ev)
		if severity, message, ok := notify.DeriveAlert(ev); ok {
			m.router.Notify(severity, message)
		}
	}
}

// reconnect runs the backoff loop until a connection is re-established, the
// policy is exhausted, or the session is torn down. Exactly one success
// notification is emitted per completed cycle, regardless of how many
// attempts it took.
func (m *Manager) reconnect(ctx context.Context, address string) domain.Conn {
	for attempt := 1; ; attempt++ {
		if m.policy.Exhausted(attempt) {
			m.setState(StateFailed, m.lastError())
			m.lifecycle(domain.SeverityError, "Reconnection failed")
			return nil
		}

		m.setReconnecting(attempt)
		m.lifecycle(domain.SeverityInfo, fmt.Sprintf("Reconnecting... (attempt %d)", attempt))

		if !m.sleep(ctx, m.policy.Delay(attempt)) {
			return nil
		}

		conn, err := m.transport.Dial(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.setLastError(err)
			m.lifecycle(domain.SeverityError, fmt.Sprintf("Connection error: %v", err))
			continue
		}

		m.becomeConnected(conn)
		m.lifecycle(domain.SeveritySuccess, fmt.Sprintf("Reconnected after %d attempt(s)", attempt))
		return conn
	}
}

// sleep waits for the backoff delay, returning false if the session was torn
// down first. The timer is released either way; teardown leaves nothing
// dangling.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) becomeConnected(conn domain.Conn) {
	now := time.Now()
	m.mu.Lock()
	m.state = StateConnected
	m.attempt = 0
	m.lastErr = nil
	m.conn = conn
	m.connectedAt = &now
	m.mu.Unlock()

	m.logger.Info().Msg("Transport connected")
}

func (m *Manager) setState(state State, err error) {
	m.mu.Lock()
	m.state = state
	if err != nil {
		m.lastErr = err
	}
	if state != StateConnected {
		m.conn = nil
		m.connectedAt = nil
	}
	m.mu.Unlock()

	m.logger.Info().Str("state", state.String()).Err(err).Msg("Session state changed")
}

func (m *Manager) setReconnecting(attempt int) {
	m.mu.Lock()
	m.state = StateReconnecting
	m.attempt = attempt
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) lastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// lifecycle emits the notification and synthetic system log entry for a
// connection-lifecycle transition.
func (m *Manager) lifecycle(severity domain.Severity, message string) {
	m.router.Notify(severity, message)
	m.store.Apply(domain.SystemLogEvent{
		Type:    severity,
		Source:  "system",
		Message: message,
	})
}
