package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectDelayScalesLinearly(t *testing.T) {
	assert.Equal(t, time.Second, reconnectDelay(1))
	assert.Equal(t, 2*time.Second, reconnectDelay(2))
	assert.Equal(t, 5*time.Second, reconnectDelay(5))
	assert.Equal(t, 10*time.Second, reconnectDelay(10))
}

func TestReconnectDelayCapped(t *testing.T) {
	assert.Equal(t, maxReconnectBackoff, reconnectDelay(31))
	assert.Equal(t, maxReconnectBackoff, reconnectDelay(1000))
}
