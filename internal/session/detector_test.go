package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/models"
	"github.com/sawpanic/equityrun/internal/polygon"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(nil, nil, "America/New_York", Boundaries{
		PreMarketStart: "04:00",
		MarketOpen:     "09:30",
		MarketClose:    "16:00",
		PostMarketEnd:  "20:00",
	})
	require.NoError(t, err)
	return d
}

func nyTime(t *testing.T, h, m int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 2026-08-24 is a Monday.
	return time.Date(2026, 8, 24, h, m, 0, 0, loc)
}

func TestSessionBoundaries(t *testing.T) {
	d := newTestDetector(t)

	cases := []struct {
		h, m int
		want models.Session
	}{
		{3, 59, models.SessionClosed},
		{4, 0, models.SessionPreMarket},
		{9, 29, models.SessionPreMarket},
		{9, 30, models.SessionMarketOpen},
		{15, 59, models.SessionMarketOpen},
		{16, 0, models.SessionPostMarket},
		{19, 59, models.SessionPostMarket},
		{20, 0, models.SessionClosed},
	}
	for _, tc := range cases {
		state := d.ComputeAt(nyTime(t, tc.h, tc.m))
		assert.Equal(t, tc.want, state.Session, "%02d:%02d", tc.h, tc.m)
		assert.Equal(t, "2026-08-24", state.TradingDate)
	}
}

func TestWeekendAlwaysClosed(t *testing.T) {
	d := newTestDetector(t)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Saturday midday.
	sat := time.Date(2026, 8, 22, 12, 0, 0, 0, loc)
	state := d.ComputeAt(sat)
	assert.Equal(t, models.SessionClosed, state.Session)
	assert.False(t, state.Holiday)
}

func TestHolidayClosed(t *testing.T) {
	d := newTestDetector(t)
	d.SetHolidays([]polygon.Holiday{
		{Date: "2026-08-24", Exchange: "NYSE", Status: "closed", Name: "Test Holiday"},
	})

	state := d.ComputeAt(nyTime(t, 12, 0))
	assert.Equal(t, models.SessionClosed, state.Session)
	assert.True(t, state.Holiday)
}

func TestEarlyCloseShortensRegularSession(t *testing.T) {
	d := newTestDetector(t)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	early := time.Date(2026, 8, 24, 13, 0, 0, 0, loc)
	d.SetHolidays([]polygon.Holiday{
		{Date: "2026-08-24", Exchange: "NYSE", Status: "early-close", Close: early.Format(time.RFC3339)},
	})

	state := d.ComputeAt(nyTime(t, 12, 59))
	assert.Equal(t, models.SessionMarketOpen, state.Session)
	assert.True(t, state.EarlyClose)

	state = d.ComputeAt(nyTime(t, 13, 0))
	assert.Equal(t, models.SessionPostMarket, state.Session)
}

func TestComputeConvertsToExchangeTime(t *testing.T) {
	d := newTestDetector(t)

	// 13:30 UTC on a summer Monday is 09:30 in New York.
	utc := time.Date(2026, 8, 24, 13, 30, 0, 0, time.UTC)
	state := d.ComputeAt(utc)
	assert.Equal(t, models.SessionMarketOpen, state.Session)
}

func TestNextChangePointsAtBoundary(t *testing.T) {
	d := newTestDetector(t)
	state := d.ComputeAt(nyTime(t, 9, 0))
	require.Equal(t, models.SessionPreMarket, state.Session)
	assert.Equal(t, nyTime(t, 9, 30).Unix(), state.NextChange.Unix())
}

func TestInvalidTimezoneRejected(t *testing.T) {
	_, err := New(nil, nil, "Mars/Olympus", Boundaries{})
	assert.Error(t, err)
}

func TestSessionFromStatus(t *testing.T) {
	cases := []struct {
		name   string
		status *polygon.MarketStatus
		want   models.Session
		ok     bool
	}{
		{"early hours", &polygon.MarketStatus{Market: "extended-hours", EarlyHours: true}, models.SessionPreMarket, true},
		{"after hours", &polygon.MarketStatus{Market: "extended-hours", AfterHours: true}, models.SessionPostMarket, true},
		{"open", &polygon.MarketStatus{Market: "open"}, models.SessionMarketOpen, true},
		{"closed", &polygon.MarketStatus{Market: "closed"}, models.SessionClosed, true},
		{"unknown report", &polygon.MarketStatus{Market: "maintenance"}, "", false},
		{"nil report", nil, "", false},
	}
	for _, tc := range cases {
		got, ok := sessionFromStatus(tc.status)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestLiveSessionWithoutVendorFallsBack(t *testing.T) {
	d := newTestDetector(t)
	_, ok := d.liveSession(context.Background())
	assert.False(t, ok)
}
