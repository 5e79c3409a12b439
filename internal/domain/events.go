package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for inbound event decoding. Both classes degrade to a
// no-op in the ingestion pipeline; they are never propagated to the view
// layer.
var (
	// ErrUnknownEvent marks an event kind this build does not recognize.
	// Unknown kinds are tolerated for forward compatibility with
	// transport-side additions.
	ErrUnknownEvent = errors.New("unknown event kind")

	// ErrMalformedEvent marks a recognized kind with a missing or invalid
	// required field. Malformed events are rejected before any mutation.
	ErrMalformedEvent = errors.New("malformed event")
)

// Event kinds as they appear on the wire.
const (
	KindInverterStatus = "inverterStatus"
	KindPowerStatus    = "powerStatus"
	KindBatteryUpdate  = "batteryUpdate"
	KindEnergyUpdate   = "energyUpdate"
	KindSensorData     = "sensorData"
	KindSystemLog      = "systemLog"
	KindNotification   = "notification"
	KindCommandAck     = "command_ack"
)

// Event is the closed set of inbound event shapes. New kinds are added by
// defining a new concrete type here; every consumer switches exhaustively
// over the concrete types.
type Event interface {
	Kind() string
}

// InverterStatusEvent reports a change in inverter operating state.
type InverterStatusEvent struct {
	Status InverterStatus
}

// Kind returns the wire name of the event.
func (InverterStatusEvent) Kind() string { return KindInverterStatus }

// PowerStatusEvent reports grid power availability.
type PowerStatusEvent struct {
	PowerCut bool
}

// Kind returns the wire name of the event.
func (PowerStatusEvent) Kind() string { return KindPowerStatus }

// BatteryUpdateEvent reports the battery charge level in percent.
type BatteryUpdateEvent struct {
	Level int
}

// Kind returns the wire name of the event.
func (BatteryUpdateEvent) Kind() string { return KindBatteryUpdate }

// EnergyUpdateEvent reports instantaneous energy consumption in watts.
type EnergyUpdateEvent struct {
	Consumption float64
}

// Kind returns the wire name of the event.
func (EnergyUpdateEvent) Kind() string { return KindEnergyUpdate }

// SensorDataEvent reports environmental sensor readings.
type SensorDataEvent struct {
	Temperature float64
	Humidity    float64
}

// Kind returns the wire name of the event.
func (SensorDataEvent) Kind() string { return KindSensorData }

// SystemLogEvent is a pre-classified log entry delivered by the transport.
// It is appended to the log verbatim and causes no state change.
type SystemLogEvent struct {
	Type    Severity
	Source  string
	Message string
}

// Kind returns the wire name of the event.
func (SystemLogEvent) Kind() string { return KindSystemLog }

// NotificationEvent is a server-side alert forwarded verbatim to the
// notification feed, bypassing the state store.
type NotificationEvent struct {
	Type    Severity
	Message string
}

// Kind returns the wire name of the event.
func (NotificationEvent) Kind() string { return KindNotification }

// CommandAckEvent acknowledges a prior outbound command.
type CommandAckEvent struct {
	Command string
	Success bool
	Error   string
}

// Kind returns the wire name of the event.
func (CommandAckEvent) Kind() string { return KindCommandAck }

// ParseEvent decodes and validates an inbound transport event. A recognized
// kind with a missing or out-of-range required field yields ErrMalformedEvent;
// a kind outside the closed set yields ErrUnknownEvent. Callers treat both as
// no-ops.
func ParseEvent(kind string, payload []byte) (Event, error) {
	switch kind {
	case KindInverterStatus:
		var p struct {
			Status *string `json:"status"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.Status == nil {
			return nil, fmt.Errorf("%w: %s requires status", ErrMalformedEvent, kind)
		}
		status, ok := ParseInverterStatus(*p.Status)
		if !ok {
			return nil, fmt.Errorf("%w: invalid inverter status %q", ErrMalformedEvent, *p.Status)
		}
		return InverterStatusEvent{Status: status}, nil

	case KindPowerStatus:
		var p struct {
			PowerCut *bool `json:"powerCut"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.PowerCut == nil {
			return nil, fmt.Errorf("%w: %s requires powerCut", ErrMalformedEvent, kind)
		}
		return PowerStatusEvent{PowerCut: *p.PowerCut}, nil

	case KindBatteryUpdate:
		var p struct {
			Level *int `json:"level"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.Level == nil {
			return nil, fmt.Errorf("%w: %s requires level", ErrMalformedEvent, kind)
		}
		if *p.Level < 0 || *p.Level > 100 {
			return nil, fmt.Errorf("%w: battery level %d out of range", ErrMalformedEvent, *p.Level)
		}
		return BatteryUpdateEvent{Level: *p.Level}, nil

	case KindEnergyUpdate:
		var p struct {
			Consumption *float64 `json:"consumption"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.Consumption == nil {
			return nil, fmt.Errorf("%w: %s requires consumption", ErrMalformedEvent, kind)
		}
		if *p.Consumption < 0 {
			return nil, fmt.Errorf("%w: negative consumption", ErrMalformedEvent)
		}
		return EnergyUpdateEvent{Consumption: *p.Consumption}, nil

	case KindSensorData:
		var p struct {
			Temperature *float64 `json:"temperature"`
			Humidity    *float64 `json:"humidity"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.Temperature == nil || p.Humidity == nil {
			return nil, fmt.Errorf("%w: %s requires temperature and humidity", ErrMalformedEvent, kind)
		}
		return SensorDataEvent{Temperature: *p.Temperature, Humidity: *p.Humidity}, nil

	case KindSystemLog:
		var p struct {
			Type    string `json:"type"`
			Source  string `json:"source"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.Message == "" {
			return nil, fmt.Errorf("%w: %s requires message", ErrMalformedEvent, kind)
		}
		// Pre-classified by the transport; severity falls back to info and
		// the message passes through untouched.
		severity, _ := ParseSeverity(p.Type)
		source := p.Source
		if source == "" {
			source = "system"
		}
		return SystemLogEvent{Type: severity, Source: source, Message: p.Message}, nil

	case KindNotification:
		var p struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.Message == "" {
			return nil, fmt.Errorf("%w: %s requires message", ErrMalformedEvent, kind)
		}
		severity, _ := ParseSeverity(p.Type)
		return NotificationEvent{Type: severity, Message: p.Message}, nil

	case KindCommandAck:
		var p struct {
			Command string `json:"command"`
			Success *bool  `json:"success"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.Command == "" || p.Success == nil {
			return nil, fmt.Errorf("%w: %s requires command and success", ErrMalformedEvent, kind)
		}
		return CommandAckEvent{Command: p.Command, Success: *p.Success, Error: p.Error}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
}
