// Package domain provides core domain models and interfaces for the go-powerdash application
package domain

import (
	"context"
	"encoding/json"
	"time"
)

// InverterStatus represents the operating state of the inverter.
type InverterStatus int

const (
	InverterOffline InverterStatus = iota
	InverterOnline
	InverterStandby
)

// String returns the string representation of the inverter status.
func (s InverterStatus) String() string {
	switch s {
	case InverterOnline:
		return "online"
	case InverterOffline:
		return "offline"
	case InverterStandby:
		return "standby"
	default:
		return "unknown"
	}
}

// ParseInverterStatus maps the wire string to an InverterStatus.
func ParseInverterStatus(s string) (InverterStatus, bool) {
	switch s {
	case "online":
		return InverterOnline, true
	case "offline":
		return InverterOffline, true
	case "standby":
		return InverterStandby, true
	default:
		return InverterOffline, false
	}
}

// MarshalJSON encodes the status as its wire string.
func (s InverterStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Severity classifies log entries and notifications.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity.
func (sv Severity) String() string {
	switch sv {
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity maps the wire string to a Severity. Unrecognized values fall
// back to info, matching the permissive presentation contract.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "info":
		return SeverityInfo, true
	case "success":
		return SeveritySuccess, true
	case "warning":
		return SeverityWarning, true
	case "error":
		return SeverityError, true
	default:
		return SeverityInfo, false
	}
}

// MarshalJSON encodes the severity as its wire string.
func (sv Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(sv.String())
}

// Theme represents the dashboard theme choice.
type Theme int

const (
	ThemeLight Theme = iota
	ThemeDark
	ThemeAuto
)

// String returns the string representation of the theme.
func (t Theme) String() string {
	switch t {
	case ThemeLight:
		return "light"
	case ThemeDark:
		return "dark"
	case ThemeAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseTheme maps the stored string to a Theme.
func ParseTheme(s string) (Theme, bool) {
	switch s {
	case "light":
		return ThemeLight, true
	case "dark":
		return ThemeDark, true
	case "auto":
		return ThemeAuto, true
	default:
		return ThemeLight, false
	}
}

// MarshalJSON encodes the theme as its wire string.
func (t Theme) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Schedule is an opaque, view-defined schedule entry. Insertion order is
// meaningful and preserved by the store.
type Schedule struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DeviceState is the reconciled snapshot of the monitored installation.
// It is owned exclusively by the state store; readers only ever see copies.
type DeviceState struct {
	InverterStatus    InverterStatus `json:"inverterStatus"`
	PowerCut          bool           `json:"powerCut"`
	BatteryLevel      int            `json:"batteryLevel"`
	EnergyConsumption float64        `json:"energyConsumption"`
	Temperature       float64        `json:"temperature"`
	Humidity          float64        `json:"humidity"`
	Schedules         []Schedule     `json:"schedules"`
	IsManualMode      bool           `json:"isManualMode"`
	Theme             Theme          `json:"theme"`
}

// DefaultDeviceState returns a fully populated state with the defaults every
// session starts from. Every field has a total default so a snapshot is never
// partially initialized.
func DefaultDeviceState() DeviceState {
	return DeviceState{
		InverterStatus:    InverterOffline,
		PowerCut:          false,
		BatteryLevel:      75,
		EnergyConsumption: 0,
		Temperature:       32,
		Humidity:          65,
		Schedules:         []Schedule{},
		IsManualMode:      false,
		Theme:             ThemeLight,
	}
}

// Clone returns a deep copy of the state, safe to hand to observers.
func (ds DeviceState) Clone() DeviceState {
	out := ds
	out.Schedules = make([]Schedule, len(ds.Schedules))
	copy(out.Schedules, ds.Schedules)
	return out
}

// LogEntry is an immutable entry in the bounded log buffer.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      Severity  `json:"type"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Notification is a short-lived user-facing alert. Logically separate from
// the log buffer: one is an audit trail, the other a transient alert feed.
type Notification struct {
	ID        string    `json:"id"`
	Type      Severity  `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RawEvent is a transport-delivered event before decoding: the event kind
// plus its undecoded JSON payload.
type RawEvent struct {
	Kind    string
	Payload json.RawMessage
}

// Conn is a single established transport connection. ReadEvent blocks until
// the next inbound event or a transport error; a returned error means the
// connection is dead and must be discarded.
type Conn interface {
	// ReadEvent returns the next inbound event from the peer.
	ReadEvent() (RawEvent, error)

	// WriteCommand sends an outbound command. Fire-and-forget: no
	// application-level acknowledgement is awaited.
	WriteCommand(name string, payload interface{}) error

	// Close releases the connection.
	Close() error
}

// Transport establishes connections to the event source.
type Transport interface {
	// Dial opens a connection to the given address.
	Dial(ctx context.Context, address string) (Conn, error)
}
