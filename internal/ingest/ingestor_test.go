package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitBackoffDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rateLimitBackoff(tc.attempt), "attempt %d", tc.attempt)
	}

	// Attempts below one clamp to the first pause.
	assert.Equal(t, time.Second, rateLimitBackoff(0))
}
