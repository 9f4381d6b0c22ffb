package scanner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/models"
)

func TestGapperThresholds(t *testing.T) {
	in := &models.EnrichedTicker{Symbol: "UP", GapFromPrevClose: f64(2.0)}
	out := &models.EnrichedTicker{Symbol: "NO", GapFromPrevClose: f64(1.99)}
	down := &models.EnrichedTicker{Symbol: "DN", GapFromPrevClose: f64(-2.5)}

	buckets := NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{in, out, down})

	require.Len(t, buckets[models.CategoryGappersUp], 1)
	assert.Equal(t, "UP", buckets[models.CategoryGappersUp][0].Symbol)
	require.Len(t, buckets[models.CategoryGappersDown], 1)
	assert.Equal(t, "DN", buckets[models.CategoryGappersDown][0].Symbol)
}

func TestMomentumUpRequiresAllConditions(t *testing.T) {
	qualifying := &models.EnrichedTicker{
		Symbol:       "MOM",
		Price:        10.0,
		IntradayHigh: 10.1,
		Change5Min:   f64(2.0),
		VWAP:         f64(9.5),
		RVOL:         f64(6.0),
	}
	buckets := NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{qualifying})
	require.Len(t, buckets[models.CategoryMomentumUp], 1)

	// Below VWAP drops it.
	belowVWAP := *qualifying
	belowVWAP.VWAP = f64(10.5)
	buckets = NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{&belowVWAP})
	assert.Empty(t, buckets[models.CategoryMomentumUp])

	// Too far off the high drops it.
	offHigh := *qualifying
	offHigh.IntradayHigh = 11.0
	buckets = NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{&offHigh})
	assert.Empty(t, buckets[models.CategoryMomentumUp])
}

func TestAnomaliesRequireZScore(t *testing.T) {
	at := &models.EnrichedTicker{Symbol: "AT", TradeZScore: f64(3.0)}
	below := &models.EnrichedTicker{Symbol: "BL", TradeZScore: f64(2.99)}
	// High RVOL alone never qualifies: the Z-score is the only gate.
	noZ := &models.EnrichedTicker{Symbol: "NZ", RVOL: f64(50)}

	buckets := NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{at, below, noZ})
	require.Len(t, buckets[models.CategoryAnomalies], 1)
	assert.Equal(t, "AT", buckets[models.CategoryAnomalies][0].Symbol)
}

func TestAnomalyThresholdConfigurable(t *testing.T) {
	row := &models.EnrichedTicker{Symbol: "ZZ", TradeZScore: f64(2.6)}

	// Below the default threshold of 3.
	buckets := NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{row})
	assert.Empty(t, buckets[models.CategoryAnomalies])

	// A lowered threshold admits the same row.
	buckets = NewCategorizer(20, 2.5).Assign([]*models.EnrichedTicker{row})
	require.Len(t, buckets[models.CategoryAnomalies], 1)
	assert.Equal(t, "ZZ", buckets[models.CategoryAnomalies][0].Symbol)
}

func TestCategoryLimitAndOrdering(t *testing.T) {
	rows := make([]*models.EnrichedTicker, 0, 25)
	for i := 0; i < 25; i++ {
		rows = append(rows, &models.EnrichedTicker{
			Symbol:      fmt.Sprintf("W%02d", i),
			ChangeTotal: 5 + float64(i),
		})
	}
	buckets := NewCategorizer(20, 0).Assign(rows)

	winners := buckets[models.CategoryWinners]
	require.Len(t, winners, 20)
	// Biggest gain first, ranks reassigned positionally.
	assert.Equal(t, "W24", winners[0].Symbol)
	assert.Equal(t, 1, winners[0].Rank)
	assert.Equal(t, 20, winners[19].Rank)
	assert.Greater(t, winners[0].ChangeTotal, winners[19].ChangeTotal)
}

func TestPostMarketGate(t *testing.T) {
	active := &models.EnrichedTicker{
		Symbol:     "PM",
		Session:    models.SessionPostMarket,
		Volume5Min: f64(25_000),
	}
	quiet := &models.EnrichedTicker{
		Symbol:        "QT",
		Session:       models.SessionPostMarket,
		Volume5Min:    f64(100),
		GapPostMarket: f64(0.1),
	}
	regular := &models.EnrichedTicker{
		Symbol:     "RG",
		Session:    models.SessionMarketOpen,
		Volume5Min: f64(1_000_000),
	}

	buckets := NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{active, quiet, regular})
	require.Len(t, buckets[models.CategoryPostMarket], 1)
	assert.Equal(t, "PM", buckets[models.CategoryPostMarket][0].Symbol)
}

func TestReversalNeedsOppositeSigns(t *testing.T) {
	rev := &models.EnrichedTicker{
		Symbol:           "RV",
		GapFromPrevClose: f64(3.0),
		GapFromOpen:      f64(-1.5),
	}
	trend := &models.EnrichedTicker{
		Symbol:           "TR",
		GapFromPrevClose: f64(3.0),
		GapFromOpen:      f64(1.5),
	}
	buckets := NewCategorizer(20, 0).Assign([]*models.EnrichedTicker{rev, trend})
	require.Len(t, buckets[models.CategoryReversals], 1)
	assert.Equal(t, "RV", buckets[models.CategoryReversals][0].Symbol)
}
