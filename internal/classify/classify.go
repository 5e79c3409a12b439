// Package classify maps inbound events to log severities, sources and
// messages. It encapsulates the domain thresholds that escalate severity.
package classify

import (
	"fmt"

	"github.com/resident-x/go-powerdash/internal/domain"
)

// Escalation thresholds. Battery bounds are inclusive, temperature bounds
// are exclusive.
const (
	BatteryCriticalLevel = 20
	BatteryLowLevel      = 30
	TemperatureCritical  = 60.0
	TemperatureHigh      = 50.0
)

// Entry is the classified projection of an event: everything a log entry
// carries except its identity and timestamp, which the store assigns on
// append.
type Entry struct {
	Type    domain.Severity
	Source  string
	Message string
}

// Classify derives the log entry for an inbound event. It is a pure function
// of its input: no clock, no I/O, no randomness.
func Classify(ev domain.Event) Entry {
	switch e := ev.(type) {
	case domain.InverterStatusEvent:
		return Entry{
			Type:    domain.SeverityInfo,
			Source:  "inverter",
			Message: fmt.Sprintf("Inverter status changed to %s", e.Status),
		}

	case domain.PowerStatusEvent:
		if e.PowerCut {
			return Entry{
				Type:    domain.SeverityWarning,
				Source:  "power",
				Message: "Power cut detected! Running on inverter",
			}
		}
		return Entry{
			Type:    domain.SeveritySuccess,
			Source:  "power",
			Message: "Grid power restored",
		}

	case domain.BatteryUpdateEvent:
		switch {
		case e.Level <= BatteryCriticalLevel:
			return Entry{
				Type:    domain.SeverityError,
				Source:  "battery",
				Message: fmt.Sprintf("Critical battery level: %d%%", e.Level),
			}
		case e.Level <= BatteryLowLevel:
			return Entry{
				Type:    domain.SeverityWarning,
				Source:  "battery",
				Message: fmt.Sprintf("Low battery warning: %d%%", e.Level),
			}
		default:
			return Entry{
				Type:    domain.SeverityInfo,
				Source:  "battery",
				Message: fmt.Sprintf("Battery level updated to %d%%", e.Level),
			}
		}

	case domain.EnergyUpdateEvent:
		return Entry{
			Type:    domain.SeverityInfo,
			Source:  "energy",
			Message: fmt.Sprintf("Energy consumption: %vW", e.Consumption),
		}

	case domain.SensorDataEvent:
		switch {
		case e.Temperature > TemperatureCritical:
			return Entry{
				Type:    domain.SeverityError,
				Source:  "sensor",
				Message: fmt.Sprintf("Critical temperature warning: %v°C", e.Temperature),
			}
		case e.Temperature > TemperatureHigh:
			return Entry{
				Type:    domain.SeverityWarning,
				Source:  "sensor",
				Message: fmt.Sprintf("High temperature: %v°C", e.Temperature),
			}
		default:
			return Entry{
				Type:    domain.SeverityInfo,
				Source:  "sensor",
				Message: fmt.Sprintf("Temperature: %v°C, Humidity: %v%%", e.Temperature, e.Humidity),
			}
		}

	case domain.SystemLogEvent:
		// Already classified by the transport; passed through unchanged.
		return Entry{Type: e.Type, Source: e.Source, Message: e.Message}

	default:
		// Notification and command_ack events never reach the log pipeline;
		// classify them as system info should a caller route one here anyway.
		return Entry{
			Type:    domain.SeverityInfo,
			Source:  "system",
			Message: fmt.Sprintf("Unhandled event kind %q", ev.Kind()),
		}
	}
}
