package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/resident-x/go-powerdash/internal/domain"
)

func TestExportProjectsFilteredEntries(t *testing.T) {
	s := New(nil)
	s.Apply(domain.BatteryUpdateEvent{Level: 15})
	s.Apply(domain.PowerStatusEvent{PowerCut: true})

	records := s.Export(Filter{Source: "battery"})

	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0].Type)
	assert.Equal(t, "battery", records[0].Source)
	assert.Equal(t, "Critical battery level: 15%", records[0].Message)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestExportJSONRoundTrip(t *testing.T) {
	s := New(nil)
	s.Apply(domain.PowerStatusEvent{PowerCut: true})
	s.Apply(domain.BatteryUpdateEvent{Level: 25})

	records := s.Export(Filter{})
	data, err := EncodeJSON(records)
	require.NoError(t, err)

	// Indented output, newest entry first.
	assert.True(t, strings.HasPrefix(string(data), "[\n  {"))

	decoded, err := DecodeJSON(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(records))
	for i := range records {
		assert.True(t, RecordsEqual(records[i], decoded[i]), "record %d differs after round trip", i)
	}
}

func TestExportYAML(t *testing.T) {
	s := New(nil)
	s.Apply(domain.EnergyUpdateEvent{Consumption: 300})

	data, err := EncodeYAML(s.Export(Filter{}))
	require.NoError(t, err)

	var decoded []ExportRecord
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "info", decoded[0].Type)
	assert.Equal(t, "energy", decoded[0].Source)
	assert.Equal(t, "Energy consumption: 300W", decoded[0].Message)
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	_, err := DecodeJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestExportEmptyLog(t *testing.T) {
	s := New(nil)

	data, err := EncodeJSON(s.Export(Filter{}))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
