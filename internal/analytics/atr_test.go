package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/models"
)

func TestComputeATR(t *testing.T) {
	// Newest first. True ranges: day0 max(11-9, |11-10|, |9-10|)=2,
	// day1 max(10.5-9.5, |10.5-9|, |9.5-9|)=1.5.
	bars := []models.DailyBar{
		{High: 11, Low: 9, Close: 10},
		{High: 10.5, Low: 9.5, Close: 10},
		{High: 9.5, Low: 8.5, Close: 9},
	}
	atr, pct, ok := ComputeATR(bars, 2)
	require.True(t, ok)
	assert.InDelta(t, 1.75, atr, 1e-9)
	assert.InDelta(t, 17.5, pct, 1e-9)
}

func TestComputeATRGapDominatesRange(t *testing.T) {
	// Overnight gap: prior close far below today's range, so the true
	// range stretches down to it.
	bars := []models.DailyBar{
		{High: 20, Low: 19, Close: 19.5},
		{High: 10.5, Low: 9.5, Close: 10},
	}
	atr, _, ok := ComputeATR(bars, 1)
	require.True(t, ok)
	assert.InDelta(t, 10.0, atr, 1e-9) // 20 - 10
}

func TestComputeATRInsufficientHistory(t *testing.T) {
	bars := []models.DailyBar{
		{High: 11, Low: 9, Close: 10},
	}
	_, _, ok := ComputeATR(bars, 14)
	assert.False(t, ok)

	_, _, ok = ComputeATR(nil, 1)
	assert.False(t, ok)
}

func TestSlotIndex(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	at := func(h, m int) time.Time {
		return time.Date(2026, 8, 24, h, m, 0, 0, loc)
	}

	assert.Equal(t, 0, SlotIndex(at(4, 0), 5))
	assert.Equal(t, 0, SlotIndex(at(4, 4), 5))
	assert.Equal(t, 1, SlotIndex(at(4, 5), 5))
	assert.Equal(t, 66, SlotIndex(at(9, 30), 5))
	assert.Equal(t, 191, SlotIndex(at(19, 55), 5))

	// Outside the extended-hours window.
	assert.Equal(t, -1, SlotIndex(at(3, 59), 5))
	assert.Equal(t, -1, SlotIndex(at(20, 0), 5))
	assert.Equal(t, -1, SlotIndex(at(23, 30), 5))
}
