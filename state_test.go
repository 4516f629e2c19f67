package wspub

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	names := []string{"idle", "connecting", "connected", "error", "reconnecting", "closed"}
	for i, s := range States() {
		assert.Equal(t, names[i], s.String())
	}
	assert.Equal(t, "State(42)", State(42).String())
}

func TestStateText(t *testing.T) {
	data, err := json.Marshal(Snapshot{State: StateReconnecting})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"reconnecting"`)

	var s State
	require.NoError(t, s.UnmarshalText([]byte("connected")))
	assert.Equal(t, StateConnected, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateConnecting, true},
		{StateIdle, StateClosed, true},
		{StateIdle, StateConnected, false},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateReconnecting, true},
		{StateConnected, StateError, true},
		{StateError, StateReconnecting, true},
		{StateReconnecting, StateConnecting, true},
		{StateReconnecting, StateConnected, false},
		{StateClosed, StateConnecting, true},
		{StateClosed, StateReconnecting, false},
		{StateConnected, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.canTransitionTo(tt.to))
		})
	}
}
