package maintain

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/models"
	"github.com/sawpanic/equityrun/internal/polygon"
)

func TestMeanStdev(t *testing.T) {
	mean, std := meanStdev([]float64{1, 2, 3})
	assert.InDelta(t, 2.0, mean, 1e-9)
	assert.InDelta(t, 1.0, std, 1e-9) // sample stdev

	mean, std = meanStdev([]float64{42})
	assert.Equal(t, 42.0, mean)
	assert.Equal(t, 0.0, std)

	mean, std = meanStdev([]float64{5, 5, 5, 5})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, withinTolerance(1.05, 1, 0.10))
	assert.True(t, withinTolerance(0.95, 1, 0.10))
	assert.True(t, withinTolerance(1.10, 1, 0.10))
	assert.False(t, withinTolerance(1.2, 1, 0.10))
	assert.False(t, withinTolerance(0.5, 1, 0.10))

	// A 10:1 split factor against its vendor expectation.
	assert.True(t, withinTolerance(0.102, 0.1, 0.05))
	assert.False(t, withinTolerance(0.12, 0.1, 0.05))

	assert.False(t, withinTolerance(1, 0, 0.10))
}

func TestAvgVolume(t *testing.T) {
	bars := []models.DailyBar{
		{Volume: 100},
		{Volume: 200},
		{Volume: 300},
	}
	assert.InDelta(t, 150, avgVolume(bars, 2), 1e-9)
	// Window longer than history averages what exists.
	assert.InDelta(t, 200, avgVolume(bars, 30), 1e-9)
	assert.Equal(t, 0.0, avgVolume(nil, 10))
}

func TestMidnight(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	at := time.Date(2026, 8, 24, 18, 45, 12, 0, loc)
	m := midnight(at)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), m)
}

func TestImpliedFactorMatchesVendorExpectation(t *testing.T) {
	// The warehouse-implied factor is close-before over close-after, the
	// inverse of the vendor's price multiplier.
	reverse := polygon.Split{SplitFrom: 10, SplitTo: 1} // 1-for-10 reverse
	impliedReverse := 0.10 / 1.02                       // e.g. 0.098 before / 1.0 after
	assert.True(t, withinTolerance(impliedReverse, 1/reverse.Ratio(), vendorRatioTolerance))
	assert.False(t, withinTolerance(impliedReverse, reverse.Ratio(), vendorRatioTolerance))

	forward := polygon.Split{SplitFrom: 1, SplitTo: 10} // 10-for-1 forward
	impliedForward := 10.2                              // e.g. 102 before / 10 after
	assert.True(t, withinTolerance(impliedForward, 1/forward.Ratio(), vendorRatioTolerance))
	assert.False(t, withinTolerance(impliedForward, forward.Ratio(), vendorRatioTolerance))
}

func TestClearCachesAnnouncesNewDay(t *testing.T) {
	db, mock := redismock.NewClientMock()
	o := &Orchestrator{bus: bus.NewFromClient(db)}

	for _, pattern := range []string{
		"scanner:category:*",
		"scanner:sequence:*",
		"scanner:filtered_complete:*",
	} {
		mock.ExpectScan(0, pattern, 500).SetVal([]string{}, 0)
	}
	mock.ExpectDel(bus.KeyEnrichedLatest).SetVal(0)
	mock.ExpectPublish(bus.ChannelNewDay, []byte(`{"date":"2026-08-20"}`)).SetVal(1)

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, o.clearCaches(context.Background(), day))
	require.NoError(t, mock.ExpectationsWereMet())
}
