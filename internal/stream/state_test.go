package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateHappyPath(t *testing.T) {
	path := []State{
		StateDisconnected,
		StateConnecting,
		StateAuthenticating,
		StateAuthenticated,
		StateSubscribed,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].validNext(path[i+1]),
			"%s -> %s", path[i], path[i+1])
	}
}

func TestStateDegradedRoundTrip(t *testing.T) {
	assert.True(t, StateSubscribed.validNext(StateDegraded))
	assert.True(t, StateDegraded.validNext(StateSubscribed))
	assert.True(t, StateDegraded.validNext(StateDisconnected))
}

func TestStateClosedIsTerminal(t *testing.T) {
	for next := StateDisconnected; next <= StateClosed; next++ {
		assert.False(t, StateClosed.validNext(next), "CLOSED -> %s", next)
	}
	// Only an auth rejection reaches CLOSED.
	assert.True(t, StateAuthenticating.validNext(StateClosed))
	assert.False(t, StateSubscribed.validNext(StateClosed))
	assert.False(t, StateConnecting.validNext(StateClosed))
}

func TestStateNoSkippingAhead(t *testing.T) {
	assert.False(t, StateDisconnected.validNext(StateSubscribed))
	assert.False(t, StateConnecting.validNext(StateAuthenticated))
	assert.False(t, StateAuthenticated.validNext(StateDegraded))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "SUBSCRIBED", StateSubscribed.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
