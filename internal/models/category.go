package models

// Category is one of the themed ranking buckets published by the scanner.
type Category string

const (
	CategoryGappersUp    Category = "gappers_up"
	CategoryGappersDown  Category = "gappers_down"
	CategoryMomentumUp   Category = "momentum_up"
	CategoryMomentumDown Category = "momentum_down"
	CategoryWinners      Category = "winners"
	CategoryLosers       Category = "losers"
	CategoryAnomalies    Category = "anomalies"
	CategoryHighVolume   Category = "high_volume"
	CategoryNewHighs     Category = "new_highs"
	CategoryNewLows      Category = "new_lows"
	CategoryReversals    Category = "reversals"
	CategoryPostMarket   Category = "post_market"
)

// AllCategories lists every bucket in publication order.
var AllCategories = []Category{
	CategoryGappersUp,
	CategoryGappersDown,
	CategoryMomentumUp,
	CategoryMomentumDown,
	CategoryWinners,
	CategoryLosers,
	CategoryAnomalies,
	CategoryHighVolume,
	CategoryNewHighs,
	CategoryNewLows,
	CategoryReversals,
	CategoryPostMarket,
}

// Ranking is the published state of one category at one tick.
type Ranking struct {
	Category  Category          `json:"category"`
	Sequence  uint64            `json:"sequence"`
	AsOf      int64             `json:"as_of_ms"`
	Rows      []*EnrichedTicker `json:"rows"`
}
