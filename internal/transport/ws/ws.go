// Package ws provides the WebSocket transport for the dashboard event
// stream.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/go-powerdash/internal/domain"
)

// Send/receive timing configuration and message size limits.
const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	maxMsgSize       = 1 << 16 // 64 KB
)

// Envelope is the JSON frame exchanged with the event server: the event
// kind plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Transport dials WebSocket connections to the event server.
type Transport struct {
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewTransport creates a WebSocket transport.
func NewTransport() *Transport {
	return &Transport{
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: log.With().Str("component", "ws").Logger(),
	}
}

// Dial opens a WebSocket connection to the given ws:// or wss:// address.
func (t *Transport) Dial(ctx context.Context, address string) (domain.Conn, error) {
	c, _, err := t.dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	c.SetReadLimit(maxMsgSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	t.logger.Debug().Str("address", address).Msg("WebSocket connected")
	return newWSConn(c, pingPeriod), nil
}

// wsConn adapts a websocket connection to the domain transport contract.
// The underlying library allows only one writer at a time, so every write
// (commands, pings, the close frame) goes through writeMu.
type wsConn struct {
	conn         *websocket.Conn
	pingInterval time.Duration

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newWSConn(c *websocket.Conn, pingInterval time.Duration) *wsConn {
	wc := &wsConn{
		conn:         c,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}
	go wc.pingLoop()
	return wc
}

// pingLoop keeps a quiet connection alive: the peer's pongs refresh the
// read deadline. A failed ping stops the loop; the reader surfaces the
// dead connection on its next deadline.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ReadEvent blocks for the next event frame. Non-envelope frames are
// reported as errors by the JSON decoder and terminate the connection.
func (c *wsConn) ReadEvent() (domain.RawEvent, error) {
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return domain.RawEvent{}, fmt.Errorf("websocket read: %w", err)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		// Keepalive frames carry no event name.
		if env.Event == "" {
			continue
		}

		return domain.RawEvent{Kind: env.Event, Payload: env.Data}, nil
	}
}

// WriteCommand sends a command envelope to the peer.
func (c *wsConn) WriteCommand(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal command payload: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(Envelope{Event: name, Data: data}); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close releases the connection, attempting a clean close frame first.
func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}
