// Package mqtt provides the MQTT transport for the dashboard event stream.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/go-powerdash/internal/domain"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 30 * time.Second
	eventBuffer    = 64
)

// Transport dials MQTT connections to the event broker. Events arrive on
// `<topic>/<kind>`; commands are published to `<topic>/command/<name>`.
// The client library's own reconnect machinery is disabled: the connection
// manager owns the backoff policy.
type Transport struct {
	topic  string
	logger zerolog.Logger
}

// NewTransport creates an MQTT transport rooted at the given topic.
func NewTransport(topic string) *Transport {
	return &Transport{
		topic:  topic,
		logger: log.With().Str("component", "mqtt").Logger(),
	}
}

// Dial connects to the broker at the given tcp:// address and subscribes to
// the event topics.
func (t *Transport) Dial(ctx context.Context, address string) (domain.Conn, error) {
	mc := &mqttConn{
		topic:  t.topic,
		events: make(chan domain.RawEvent, eventBuffer),
		errs:   make(chan error, 1),
		logger: t.logger,
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(address).
		SetClientID(fmt.Sprintf("powerdash-%d", time.Now().UnixNano())).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			mc.fail(err)
		})

	client := pahomqtt.NewClient(opts)
	mc.client = client

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	token := client.Connect()
	select {
	case <-connectCtx.Done():
		client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", connectCtx.Err())
	case <-token.Done():
		if token.Error() != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
	}

	// Single-level wildcard: event kinds live directly under the root topic,
	// the command subtree is one level deeper and stays out of scope.
	filter := t.topic + "/+"
	subToken := client.Subscribe(filter, 0, mc.handleMessage)
	if subToken.Wait() && subToken.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", filter, subToken.Error())
	}

	t.logger.Debug().Str("address", address).Str("filter", filter).Msg("MQTT connected")
	return mc, nil
}

// mqttConn adapts a paho client to the domain transport contract.
type mqttConn struct {
	client pahomqtt.Client
	topic  string
	events chan domain.RawEvent
	errs   chan error
	logger zerolog.Logger
}

// handleMessage converts a broker message into a raw event, using the topic
// leaf as the event kind.
func (c *mqttConn) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	raw := domain.RawEvent{
		Kind:    path.Base(msg.Topic()),
		Payload: json.RawMessage(msg.Payload()),
	}

	select {
	case c.events <- raw:
	default:
		c.logger.Warn().Str("kind", raw.Kind).Msg("Event buffer full, dropping message")
	}
}

// fail delivers a fatal transport error to the reader.
func (c *mqttConn) fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// ReadEvent blocks for the next inbound event or a fatal connection error.
func (c *mqttConn) ReadEvent() (domain.RawEvent, error) {
	select {
	case raw := <-c.events:
		return raw, nil
	case err := <-c.errs:
		return domain.RawEvent{}, fmt.Errorf("mqtt connection lost: %w", err)
	}
}

// WriteCommand publishes a command to the command subtree.
func (c *mqttConn) WriteCommand(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal command payload: %w", err)
	}

	topic := fmt.Sprintf("%s/command/%s", c.topic, name)
	token := c.client.Publish(topic, 0, false, data)

	select {
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish timeout on %s", topic)
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to publish command: %w", token.Error())
		}
	}
	return nil
}

// Close releases the broker connection. ReadEvent callers are unblocked with
// an error.
func (c *mqttConn) Close() error {
	c.fail(fmt.Errorf("connection closed"))
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	return nil
}
