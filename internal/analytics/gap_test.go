package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/models"
)

func TestOpenGapLatchesOnTransition(t *testing.T) {
	tr := NewGapTracker()
	now := time.Now()

	tr.Observe("AAPL", models.SessionPreMarket, 4.0, now)
	s := tr.Observe("AAPL", models.SessionPreMarket, 5.5, now)
	assert.Nil(t, s.OpenGap)
	assert.Equal(t, 5.5, s.PreMarketPeak)

	// First MARKET_OPEN tick after PRE_MARKET latches the open gap.
	s = tr.Observe("AAPL", models.SessionMarketOpen, 6.2, now)
	require.NotNil(t, s.OpenGap)
	assert.Equal(t, 6.2, *s.OpenGap)

	// Later observations never overwrite it.
	s = tr.Observe("AAPL", models.SessionMarketOpen, 9.9, now)
	require.NotNil(t, s.OpenGap)
	assert.Equal(t, 6.2, *s.OpenGap)
	assert.Equal(t, 9.9, s.HighGap)
}

func TestOpenGapNotLatchedWithoutPreMarket(t *testing.T) {
	tr := NewGapTracker()
	now := time.Now()

	// Symbol first seen mid-session: no pre-market observation, so the
	// open gap stays unknown rather than guessing.
	s := tr.Observe("IPO", models.SessionMarketOpen, 3.0, now)
	assert.Nil(t, s.OpenGap)
	s = tr.Observe("IPO", models.SessionMarketOpen, 4.0, now)
	assert.Nil(t, s.OpenGap)
}

func TestPreMarketPeakTracksAbsolute(t *testing.T) {
	tr := NewGapTracker()
	now := time.Now()

	tr.Observe("GPRO", models.SessionPreMarket, -6.0, now)
	s := tr.Observe("GPRO", models.SessionPreMarket, -3.0, now)
	assert.Equal(t, 6.0, s.PreMarketPeak)
	assert.Equal(t, -3.0, s.CurrentGap)
}

func TestGapReset(t *testing.T) {
	tr := NewGapTracker()
	tr.Observe("AAPL", models.SessionPreMarket, 2.0, time.Now())
	tr.Reset()
	_, ok := tr.Get("AAPL")
	assert.False(t, ok)
}
