package analytics

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/bus"
)

func TestZScoreAgainstBaseline(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := bus.NewFromClient(db)

	mock.ExpectHGetAll("trades:baseline:BIVI:5").SetVal(map[string]string{
		"avg": "1234.5",
		"std": "57.89",
	})

	d := NewTradeAnomalyDetector(b, 5, 0)
	d.ObserveTradeCount("BIVI", 60000)

	z := d.ZScore(context.Background(), "BIVI")
	require.NotNil(t, z)
	assert.InDelta(t, (60000-1234.5)/57.89, *z, 1e-6)
	assert.True(t, d.IsAnomalous(context.Background(), "BIVI"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestZScoreZeroStdev(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := bus.NewFromClient(db)

	mock.ExpectHGetAll("trades:baseline:AAA:5").SetVal(map[string]string{
		"avg": "100",
		"std": "0",
	})
	mock.ExpectHGetAll("trades:baseline:BBB:5").SetVal(map[string]string{
		"avg": "100",
		"std": "0",
	})

	d := NewTradeAnomalyDetector(b, 5, 0)

	// More than twice the mean with no variance pins the score high.
	d.ObserveTradeCount("AAA", 201)
	z := d.ZScore(context.Background(), "AAA")
	require.NotNil(t, z)
	assert.Equal(t, 10.0, *z)

	// At or below twice the mean it reads as unremarkable.
	d.ObserveTradeCount("BBB", 200)
	z = d.ZScore(context.Background(), "BBB")
	require.NotNil(t, z)
	assert.Equal(t, 0.0, *z)
}

func TestZScoreMissingBaseline(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := bus.NewFromClient(db)

	mock.ExpectHGetAll("trades:baseline:NEWIPO:5").SetVal(map[string]string{})

	d := NewTradeAnomalyDetector(b, 5, 0)
	d.ObserveTradeCount("NEWIPO", 5000)
	assert.Nil(t, d.ZScore(context.Background(), "NEWIPO"))
	assert.False(t, d.IsAnomalous(context.Background(), "NEWIPO"))

	// The miss is cached; a second lookup must not hit the bus again.
	assert.Nil(t, d.ZScore(context.Background(), "NEWIPO"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAnomalousHonorsCustomThreshold(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := bus.NewFromClient(db)

	mock.ExpectHGetAll("trades:baseline:CFG:5").SetVal(map[string]string{
		"avg": "100",
		"std": "50",
	})

	// z = (230 - 100) / 50 = 2.6: below the default 3.0 but at a
	// configured 2.5 it flags.
	d := NewTradeAnomalyDetector(b, 5, 2.5)
	d.ObserveTradeCount("CFG", 230)
	assert.True(t, d.IsAnomalous(context.Background(), "CFG"))
}

func TestZScoreNoObservations(t *testing.T) {
	db, _ := redismock.NewClientMock()
	d := NewTradeAnomalyDetector(bus.NewFromClient(db), 5, 0)

	// No trades today: nil without ever consulting the baseline.
	assert.Nil(t, d.ZScore(context.Background(), "GHOST"))
}

func TestObserveTradeCountMonotonic(t *testing.T) {
	db, _ := redismock.NewClientMock()
	d := NewTradeAnomalyDetector(bus.NewFromClient(db), 5, 0)

	d.ObserveTradeCount("AAPL", 100)
	d.ObserveTradeCount("AAPL", 50) // stale snapshot, ignored
	assert.Equal(t, int64(100), d.TodayCount("AAPL"))

	d.ObserveTradeCount("AAPL", 150)
	assert.Equal(t, int64(150), d.TodayCount("AAPL"))
}
