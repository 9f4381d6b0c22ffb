package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/models"
)

func TestScore(t *testing.T) {
	row := &models.EnrichedTicker{
		RVOL:        f64(2.0),
		VolumeToday: 1_000_000,
		Meta:        &models.TickerMetadata{AvgVolume30D: 500_000},
	}
	// 10*2 + 5*(1M/500k)
	assert.InDelta(t, 30.0, Score(row), 1e-9)
}

func TestScoreNullTermsContributeZero(t *testing.T) {
	assert.Equal(t, 0.0, Score(&models.EnrichedTicker{}))

	onlyRVOL := &models.EnrichedTicker{RVOL: f64(1.5)}
	assert.InDelta(t, 15.0, Score(onlyRVOL), 1e-9)

	onlyVolume := &models.EnrichedTicker{
		VolumeToday: 300_000,
		Meta:        &models.TickerMetadata{AvgVolume30D: 100_000},
	}
	assert.InDelta(t, 15.0, Score(onlyVolume), 1e-9)
}

func TestRankByScore(t *testing.T) {
	rows := []*models.EnrichedTicker{
		{Symbol: "B", Score: 10},
		{Symbol: "A", Score: 10},
		{Symbol: "C", Score: 30},
		{Symbol: "D", Score: 20},
	}
	ranked := RankByScore(rows, 3)
	require.Len(t, ranked, 3)

	assert.Equal(t, "C", ranked[0].Symbol)
	assert.Equal(t, "D", ranked[1].Symbol)
	// Tie broken by symbol ascending.
	assert.Equal(t, "A", ranked[2].Symbol)
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
	}
}
