package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/models"
)

func f64(v float64) *float64 { return &v }

func baseRow() *models.EnrichedTicker {
	return &models.EnrichedTicker{
		Symbol:      "AAPL",
		Price:       150,
		VolumeToday: 1_000_000,
		BidPrice:    149.99,
		AskPrice:    150.01,
		BidSize:     500,
		AskSize:     400,
		ChangeTotal: 1.5,
		RVOL:        f64(2.0),
	}
}

func TestCompiledFilterBounds(t *testing.T) {
	cf := Compile(models.ScannerFilter{
		Name:    "price-band",
		Enabled: true,
		Params:  models.FilterParams{MinPrice: f64(5), MaxPrice: f64(200)},
	})

	row := baseRow()
	assert.True(t, cf.Matches(row))

	row.Price = 4.99
	assert.False(t, cf.Matches(row))

	row.Price = 200.01
	assert.False(t, cf.Matches(row))
}

func TestBoundOverNullFieldRejects(t *testing.T) {
	cf := Compile(models.ScannerFilter{
		Name:    "rvol-floor",
		Enabled: true,
		Params:  models.FilterParams{MinRVOL: f64(1.5)},
	})

	row := baseRow()
	assert.True(t, cf.Matches(row))

	// A bound the filter sets rejects rows missing the field.
	row.RVOL = nil
	assert.False(t, cf.Matches(row))
}

func TestUnboundedNullFieldIgnored(t *testing.T) {
	cf := Compile(models.ScannerFilter{
		Name:    "price-only",
		Enabled: true,
		Params:  models.FilterParams{MinPrice: f64(1)},
	})

	row := baseRow()
	row.RVOL = nil
	assert.True(t, cf.Matches(row))
}

func TestMetadataBounds(t *testing.T) {
	cf := Compile(models.ScannerFilter{
		Name:    "caps",
		Enabled: true,
		Params:  models.FilterParams{MinMarketCap: f64(1e9)},
	})

	row := baseRow()
	// No metadata record at all: bound rejects.
	assert.False(t, cf.Matches(row))

	row.Meta = &models.TickerMetadata{MarketCap: 2e9}
	assert.True(t, cf.Matches(row))

	row.Meta.MarketCap = 5e8
	assert.False(t, cf.Matches(row))
}

func TestAvgVolume5DUsesOwnColumn(t *testing.T) {
	cf := Compile(models.ScannerFilter{
		Name:    "liquid-5d",
		Enabled: true,
		Params:  models.FilterParams{MinAvgVolume5D: f64(500_000)},
	})

	row := baseRow()
	row.Meta = &models.TickerMetadata{AvgVolume5D: 600_000}
	assert.True(t, cf.Matches(row))

	row.Meta.AvgVolume5D = 400_000
	assert.False(t, cf.Matches(row))

	// A 10-day average alone never satisfies the 5-day bound.
	row.Meta = &models.TickerMetadata{AvgVolume10D: 2_000_000}
	assert.False(t, cf.Matches(row))
}

func TestSectorSet(t *testing.T) {
	cf := Compile(models.ScannerFilter{
		Name:    "tech-only",
		Enabled: true,
		Params:  models.FilterParams{Sectors: []string{"Technology"}},
	})

	row := baseRow()
	row.Meta = &models.TickerMetadata{Sector: "Technology"}
	assert.True(t, cf.Matches(row))

	row.Meta.Sector = "Energy"
	assert.False(t, cf.Matches(row))
}

func TestFilterSetSessionScoping(t *testing.T) {
	fs := NewFilterSet([]models.ScannerFilter{
		{
			Name:     "pm-only",
			Enabled:  true,
			Sessions: []models.Session{models.SessionPreMarket},
			Params:   models.FilterParams{MinPrice: f64(1000)},
		},
		{
			Name:    "always",
			Enabled: true,
			Params:  models.FilterParams{MinPrice: f64(1)},
		},
	})
	require.Equal(t, 2, fs.Len())

	row := baseRow()

	// During regular hours the pre-market filter does not apply.
	matched, pass := fs.Evaluate(row, models.SessionMarketOpen)
	assert.True(t, pass)
	assert.Equal(t, []string{"always"}, matched)

	// During pre-market it applies and rejects.
	_, pass = fs.Evaluate(row, models.SessionPreMarket)
	assert.False(t, pass)
}

func TestEvaluateEarlyExit(t *testing.T) {
	fs := NewFilterSet([]models.ScannerFilter{
		{Name: "reject", Enabled: true, Params: models.FilterParams{MinPrice: f64(1e6)}},
		{Name: "accept", Enabled: true, Params: models.FilterParams{MinPrice: f64(1)}},
	})

	matched, pass := fs.Evaluate(baseRow(), models.SessionMarketOpen)
	assert.False(t, pass)
	assert.Nil(t, matched)
}

func TestDistFromNBBO(t *testing.T) {
	row := baseRow()
	d := distFromNBBO(row)
	require.NotNil(t, d)
	assert.InDelta(t, 0, *d, 0.01)

	row.BidPrice, row.AskPrice = 0, 0
	assert.Nil(t, distFromNBBO(row))
}
