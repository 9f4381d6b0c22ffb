package models

import "time"

// TickerMetadata is the nightly-refreshed reference record for a symbol.
// The Warehouse copy is authoritative; the Bus mirror carries a 24h TTL.
type TickerMetadata struct {
	Symbol            string    `json:"symbol" db:"symbol"`
	CompanyName       string    `json:"company_name" db:"company_name"`
	Exchange          string    `json:"exchange" db:"exchange"`
	Sector            string    `json:"sector" db:"sector"`
	Industry          string    `json:"industry" db:"industry"`
	MarketCap         float64   `json:"market_cap" db:"market_cap"`
	SharesOutstanding float64   `json:"shares_outstanding" db:"shares_outstanding"`
	FreeFloat         float64   `json:"free_float" db:"free_float"`
	AvgVolume3M       float64   `json:"avg_volume_3m" db:"avg_volume_3m"`
	AvgVolume5D       float64   `json:"avg_volume_5d" db:"avg_volume_5d"`
	AvgVolume10D      float64   `json:"avg_volume_10d" db:"avg_volume_10d"`
	AvgVolume30D      float64   `json:"avg_volume_30d" db:"avg_volume_30d"`
	Beta              float64   `json:"beta" db:"beta"`
	IsETF             bool      `json:"is_etf" db:"is_etf"`
	IsActivelyTrading bool      `json:"is_actively_trading" db:"is_actively_trading"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// TradeBaselineDays is the lookback for the trade-count baseline shared
// by the nightly rebuild and the realtime detector: mean and stdev over
// the last five trading days.
const TradeBaselineDays = 5

// TradeBaseline is the per-symbol daily trade-count statistic used by the
// anomaly detector. Mirrored in the Bus hash trades:baseline:{symbol}:{days}.
type TradeBaseline struct {
	Symbol string  `json:"symbol"`
	Days   int     `json:"days"`
	Mean   float64 `json:"avg"`
	Stdev  float64 `json:"std"`
	Sample int     `json:"sample"`
}

// ATRValue is the cached 14-day Average True Range for a symbol.
type ATRValue struct {
	Symbol     string  `json:"symbol"`
	ATR        float64 `json:"atr"`
	ATRPercent float64 `json:"atr_percent"`
}

// DailyBar is one split-adjusted daily OHLCV row in market_data_daily.
type DailyBar struct {
	Symbol      string    `json:"symbol" db:"symbol"`
	TradingDate time.Time `json:"trading_date" db:"trading_date"`
	Open        float64   `json:"open" db:"open"`
	High        float64   `json:"high" db:"high"`
	Low         float64   `json:"low" db:"low"`
	Close       float64   `json:"close" db:"close"`
	Volume      float64   `json:"volume" db:"volume"`
}

// VolumeSlot is one 5-minute slot row in volume_slots. Volume is the
// vendor's accumulated day volume as of slot end, not a per-slot delta.
type VolumeSlot struct {
	TradingDate time.Time `json:"trading_date" db:"trading_date"`
	Symbol      string    `json:"symbol" db:"symbol"`
	SlotTime    time.Time `json:"slot_time" db:"slot_time"`
	Open        float64   `json:"open" db:"open"`
	High        float64   `json:"high" db:"high"`
	Low         float64   `json:"low" db:"low"`
	Close       float64   `json:"close" db:"close"`
	Volume      float64   `json:"volume" db:"volume"`
	VWAP        float64   `json:"vwap" db:"vwap"`
	TradesCount int64     `json:"trades_count" db:"trades_count"`
}

// EarningsEvent is one row in earnings_calendar.
type EarningsEvent struct {
	Symbol          string    `json:"symbol" db:"symbol"`
	ReportDate      time.Time `json:"report_date" db:"report_date"`
	TimeSlot        string    `json:"time_slot" db:"time_slot"` // "bmo" | "amc" | "dmh"
	FiscalQuarter   string    `json:"fiscal_quarter" db:"fiscal_quarter"`
	EPSEstimate     *float64  `json:"eps_estimate" db:"eps_estimate"`
	EPSActual       *float64  `json:"eps_actual" db:"eps_actual"`
	RevenueEstimate *float64  `json:"revenue_estimate" db:"revenue_estimate"`
	RevenueActual   *float64  `json:"revenue_actual" db:"revenue_actual"`
	Source          string    `json:"source" db:"source"`
	Confidence      float64   `json:"confidence" db:"confidence"`
}
