package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportRecord is the serializable projection of a log entry consumed by the
// view layer's export feature.
type ExportRecord struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Type      string    `json:"type" yaml:"type"`
	Source    string    `json:"source" yaml:"source"`
	Message   string    `json:"message" yaml:"message"`
}

// Export projects the filtered log into export records, newest first.
func (s *Store) Export(filter Filter) []ExportRecord {
	entries := s.Log(filter)
	records := make([]ExportRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, ExportRecord{
			Timestamp: entry.Timestamp,
			Type:      entry.Type.String(),
			Source:    entry.Source,
			Message:   entry.Message,
		})
	}
	return records
}

// EncodeJSON renders export records as indented JSON.
func EncodeJSON(records []ExportRecord) ([]byte, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode log export as JSON: %w", err)
	}
	return data, nil
}

// EncodeYAML renders export records as YAML.
func EncodeYAML(records []ExportRecord) ([]byte, error) {
	data, err := yaml.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode log export as YAML: %w", err)
	}
	return data, nil
}

// DecodeJSON parses a JSON export back into records. Round-tripping through
// EncodeJSON preserves timestamp, type, source and message field-for-field.
func DecodeJSON(data []byte) ([]ExportRecord, error) {
	var records []ExportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode log export: %w", err)
	}
	return records, nil
}

// RecordsEqual reports field-for-field equality of two export records, with
// timestamps compared by instant rather than location.
func RecordsEqual(a, b ExportRecord) bool {
	return a.Timestamp.Equal(b.Timestamp) &&
		a.Type == b.Type &&
		a.Source == b.Source &&
		a.Message == b.Message
}
