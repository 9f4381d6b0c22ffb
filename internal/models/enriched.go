package models

import "time"

// GapSizeClass buckets the magnitude of a gap.
type GapSizeClass string

const (
	GapSmall   GapSizeClass = "SMALL"   // |gap| < 2%
	GapMedium  GapSizeClass = "MEDIUM"  // |gap| < 5%
	GapLarge   GapSizeClass = "LARGE"   // |gap| < 10%
	GapExtreme GapSizeClass = "EXTREME" // else
)

// ClassifyGap maps an absolute gap percentage to its size class.
func ClassifyGap(gapPct float64) GapSizeClass {
	abs := gapPct
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 2:
		return GapSmall
	case abs < 5:
		return GapMedium
	case abs < 10:
		return GapLarge
	default:
		return GapExtreme
	}
}

// GapDirection is the sign of the reference gap.
type GapDirection string

const (
	GapUp   GapDirection = "UP"
	GapDown GapDirection = "DOWN"
	GapFlat GapDirection = "FLAT"
)

// EnrichedTicker is the working unit inside a scan cycle: a snapshot row
// joined with metadata, analytics and gap context, then scored and
// ranked. It lives for one cycle only. Pointer fields are nullable;
// a missing analytics input stays nil rather than becoming zero.
type EnrichedTicker struct {
	Symbol      string    `json:"symbol"`
	SnapshotAt  time.Time `json:"snapshot_at"`
	Session     Session   `json:"session"`

	// Snapshot fields.
	Price        float64 `json:"price"`
	DayOpen      float64 `json:"day_open"`
	DayHigh      float64 `json:"day_high"`
	DayLow       float64 `json:"day_low"`
	DayClose     float64 `json:"day_close"`
	VolumeToday  float64 `json:"volume_today"`
	PrevClose    float64 `json:"prev_close"`
	PrevVolume   float64 `json:"prev_volume"`
	TradesToday  int64   `json:"trades_today"`
	BidPrice     float64 `json:"bid_price"`
	AskPrice     float64 `json:"ask_price"`
	BidSize      float64 `json:"bid_size"`
	AskSize      float64 `json:"ask_size"`
	ChangeTotal  float64 `json:"change_total"` // percent vs previous close
	MinuteVolume float64 `json:"minute_volume"`

	// Metadata (nil when the symbol has no reference record).
	Meta *TickerMetadata `json:"meta,omitempty"`

	// Analytics.
	RVOL         *float64 `json:"rvol,omitempty"`
	ATR          *float64 `json:"atr,omitempty"`
	ATRPercent   *float64 `json:"atr_percent,omitempty"`
	VWAP         *float64 `json:"vwap,omitempty"`
	IntradayHigh float64  `json:"intraday_high"`
	IntradayLow  float64  `json:"intraday_low"`
	Change5Min   *float64 `json:"chg_5min,omitempty"`
	Volume5Min   *float64 `json:"vol_5min,omitempty"`
	TradeZScore  *float64 `json:"trade_z_score,omitempty"`

	// Gap context.
	GapFromPrevClose *float64     `json:"gap_from_prev_close,omitempty"`
	GapFromOpen      *float64     `json:"gap_from_open,omitempty"`
	GapPreMarket     *float64     `json:"gap_premarket,omitempty"`
	GapAtOpen        *float64     `json:"gap_at_open,omitempty"`
	GapPostMarket    *float64     `json:"gap_postmarket,omitempty"`
	GapDirection     GapDirection `json:"gap_direction,omitempty"`
	GapClass         GapSizeClass `json:"gap_class,omitempty"`

	// Scan outputs.
	Score          float64  `json:"score"`
	Rank           int      `json:"rank"`
	MatchedFilters []string `json:"matched_filters,omitempty"`
}

// Spread returns the bid/ask spread, or 0 when the quote is one-sided.
func (e *EnrichedTicker) Spread() float64 {
	if e.BidPrice <= 0 || e.AskPrice <= 0 {
		return 0
	}
	return e.AskPrice - e.BidPrice
}

// DollarVolume is price times accumulated volume.
func (e *EnrichedTicker) DollarVolume() float64 {
	return e.Price * e.VolumeToday
}

// Float64 is a convenience for building nullable analytics fields.
func Float64(v float64) *float64 { return &v }
