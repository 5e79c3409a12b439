package conn

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resident-x/go-powerdash/internal/domain"
	"github.com/resident-x/go-powerdash/internal/notify"
	"github.com/resident-x/go-powerdash/internal/store"
)

// fakeConn is a scriptable connection: the test pushes events and failures,
// the manager consumes them through ReadEvent.
type fakeConn struct {
	events chan domain.RawEvent
	errs   chan error

	mu       sync.Mutex
	commands []string
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan domain.RawEvent, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadEvent() (domain.RawEvent, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.errs:
		return domain.RawEvent{}, err
	case <-c.closed:
		return domain.RawEvent{}, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteCommand(name string, _ interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, name)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentCommands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.commands))
	copy(out, c.commands)
	return out
}

// dialResult scripts one Dial outcome.
type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeTransport hands out scripted dial results in order. Dial blocks until
// the test supplies the next result.
type fakeTransport struct {
	results chan dialResult
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{results: make(chan dialResult, 8)}
}

func (t *fakeTransport) Dial(ctx context.Context, _ string) (domain.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-t.results:
		if res.err != nil {
			return nil, res.err
		}
		return res.conn, nil
	}
}

// testPolicy keeps reconnect delays negligible.
func testPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  0,
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeTransport, *store.Store, *notify.Router) {
	t.Helper()
	transport := newFakeTransport()
	st := store.New(nil)
	router := notify.NewRouter(0, nil)
	m := NewManager(transport, st, router, testPolicy())
	t.Cleanup(func() { _ = m.Close() })
	return m, transport, st, router
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Status() == want
	}, 2*time.Second, 2*time.Millisecond, "session never reached %s", want)
}

func TestConnectEstablishesSession(t *testing.T) {
	m, transport, st, router := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}

	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	// Lifecycle surfaces on both the notification feed and the log buffer.
	require.Eventually(t, func() bool {
		return router.Len() > 0
	}, 2*time.Second, 2*time.Millisecond)

	notifications := router.List()
	assert.Equal(t, "Connected to real-time server", notifications[0].Message)
	assert.Equal(t, domain.SeveritySuccess, notifications[0].Type)

	entries := st.Log(store.Filter{Source: "system"})
	require.NotEmpty(t, entries)
	assert.Equal(t, "Connected to real-time server", entries[0].Message)
}

func TestInboundEventsFoldIntoStore(t *testing.T) {
	m, transport, st, _ := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	conn.events <- domain.RawEvent{Kind: domain.KindBatteryUpdate, Payload: json.RawMessage(`{"level":42}`)}

	require.Eventually(t, func() bool {
		return st.Snapshot().BatteryLevel == 42
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, int64(1), m.Session().EventsReceived)
}

func TestMalformedAndUnknownEventsAreNoOps(t *testing.T) {
	m, transport, st, _ := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	conn.events <- domain.RawEvent{Kind: domain.KindBatteryUpdate, Payload: json.RawMessage(`{"level":200}`)}
	conn.events <- domain.RawEvent{Kind: "firmwareUpdate", Payload: json.RawMessage(`{}`)}
	conn.events <- domain.RawEvent{Kind: domain.KindBatteryUpdate, Payload: json.RawMessage(`{"level":42}`)}

	require.Eventually(t, func() bool {
		return st.Snapshot().BatteryLevel == 42
	}, 2*time.Second, 2*time.Millisecond)

	// Only the valid event produced a log entry.
	assert.Len(t, st.Log(store.Filter{Source: "battery"}), 1)
}

func TestNotificationAndAckEventsBypassStore(t *testing.T) {
	m, transport, st, router := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	conn.events <- domain.RawEvent{Kind: domain.KindNotification, Payload: json.RawMessage(`{"type":"warning","message":"maintenance window"}`)}
	conn.events <- domain.RawEvent{Kind: domain.KindCommandAck, Payload: json.RawMessage(`{"command":"togglePower","success":true}`)}
	conn.events <- domain.RawEvent{Kind: domain.KindCommandAck, Payload: json.RawMessage(`{"command":"setMode","success":false,"error":""}`)}

	require.Eventually(t, func() bool {
		return m.Session().EventsReceived == 3
	}, 2*time.Second, 2*time.Millisecond)

	messages := notificationMessages(router)
	assert.Contains(t, messages, "maintenance window")
	assert.Contains(t, messages, "Command togglePower succeeded")
	assert.Contains(t, messages, "Command setMode failed: unknown error")

	// None of these touch the log buffer.
	assert.Empty(t, st.Log(store.Filter{Source: "battery"}))
}

func TestCriticalEventsRaiseAlerts(t *testing.T) {
	m, transport, _, router := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	conn.events <- domain.RawEvent{Kind: domain.KindPowerStatus, Payload: json.RawMessage(`{"powerCut":true}`)}
	conn.events <- domain.RawEvent{Kind: domain.KindBatteryUpdate, Payload: json.RawMessage(`{"level":15}`)}

	require.Eventually(t, func() bool {
		messages := notificationMessages(router)
		return contains(messages, "Power cut detected!") && contains(messages, "Critical battery level: 15%")
	}, 2*time.Second, 2*time.Millisecond)
}

func TestReconnectAfterDisconnect(t *testing.T) {
	m, transport, st, router := newTestManager(t)

	first := newFakeConn()
	transport.results <- dialResult{conn: first}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	// Attempt 1 fails, attempt 2 succeeds.
	transport.results <- dialResult{err: errors.New("connection refused")}
	second := newFakeConn()
	transport.results <- dialResult{conn: second}

	first.errs <- errors.New("read: connection reset")
	waitForState(t, m, StateConnected)

	// The replacement connection feeds the same pipeline.
	second.events <- domain.RawEvent{Kind: domain.KindBatteryUpdate, Payload: json.RawMessage(`{"level":33}`)}
	require.Eventually(t, func() bool {
		return st.Snapshot().BatteryLevel == 33
	}, 2*time.Second, 2*time.Millisecond)

	messages := notificationMessages(router)
	assert.Contains(t, messages, "Disconnected from server")
	assert.Contains(t, messages, "Reconnecting... (attempt 1)")
	assert.Contains(t, messages, "Reconnecting... (attempt 2)")

	// Exactly one success notification for the whole reconnect cycle.
	reconnected := 0
	for _, msg := range messages {
		if strings.HasPrefix(msg, "Reconnected after") {
			reconnected++
		}
	}
	assert.Equal(t, 1, reconnected)
	assert.Contains(t, messages, "Reconnected after 2 attempt(s)")
}

func TestReconnectExhaustionFailsSession(t *testing.T) {
	transport := newFakeTransport()
	st := store.New(nil)
	router := notify.NewRouter(0, nil)
	policy := testPolicy()
	policy.MaxAttempts = 2
	m := NewManager(transport, st, router, policy)
	t.Cleanup(func() { _ = m.Close() })

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	transport.results <- dialResult{err: errors.New("refused")}
	transport.results <- dialResult{err: errors.New("refused")}
	conn.errs <- errors.New("read: connection reset")

	waitForState(t, m, StateFailed)
	require.Eventually(t, func() bool {
		return contains(notificationMessages(router), "Reconnection failed")
	}, 2*time.Second, 2*time.Millisecond)
}

func TestSendDroppedWhenNotConnected(t *testing.T) {
	m, transport, _, _ := newTestManager(t)

	// Dial never completes; session stays in connecting.
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))

	require.NoError(t, m.Send("togglePower", nil))

	session := m.Session()
	assert.Equal(t, int64(1), session.CommandsDropped)
	assert.Equal(t, int64(0), session.CommandsSent)

	// Unblock teardown.
	transport.results <- dialResult{err: errors.New("refused")}
}

func TestSendWhileConnected(t *testing.T) {
	m, transport, _, _ := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	require.NoError(t, m.Send("togglePower", map[string]bool{"on": true}))

	assert.Equal(t, []string{"togglePower"}, conn.sentCommands())
	assert.Equal(t, int64(1), m.Session().CommandsSent)
}

func TestConnectRejectsMalformedAddress(t *testing.T) {
	m, _, st, router := newTestManager(t)

	err := m.Connect(context.Background(), "not a url")
	require.Error(t, err)

	assert.Equal(t, StateFailed, m.Status())

	notifications := router.List()
	require.NotEmpty(t, notifications)
	assert.Equal(t, domain.SeverityError, notifications[0].Type)
	assert.True(t, strings.HasPrefix(notifications[0].Message, "Connection error:"))

	entries := st.Log(store.Filter{Source: "system"})
	require.NotEmpty(t, entries)
	assert.True(t, strings.HasPrefix(entries[0].Message, "Connection error:"))
}

func TestConnectTwiceFails(t *testing.T) {
	m, transport, _, _ := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	assert.Error(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
}

func TestCloseIsIdempotent(t *testing.T) {
	m, transport, _, _ := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestSessionInfoSerializesStatus(t *testing.T) {
	m, transport, _, _ := newTestManager(t)

	conn := newFakeConn()
	transport.results <- dialResult{conn: conn}
	require.NoError(t, m.Connect(context.Background(), "ws://localhost:3001/events"))
	waitForState(t, m, StateConnected)

	data, err := json.Marshal(m.Session())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"connected"`)
}

func notificationMessages(router *notify.Router) []string {
	list := router.List()
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.Message)
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
