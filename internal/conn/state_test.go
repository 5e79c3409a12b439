package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestStateMarshalJSON(t *testing.T) {
	data, err := StateReconnecting.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"reconnecting"`, string(data))
}
