package models

import "time"

// MinPrice is the admission floor for snapshot rows. Anything trading
// below fifty cents is dropped at ingestion.
const MinPrice = 0.50

// Agg is a vendor OHLCV aggregate (daily, minute or previous-day).
type Agg struct {
	Open         float64 `json:"o"`
	High         float64 `json:"h"`
	Low          float64 `json:"l"`
	Close        float64 `json:"c"`
	Volume       float64 `json:"v"`
	VWAP         float64 `json:"vw,omitempty"`
	Trades       int64   `json:"n,omitempty"`
	AccumVolume  float64 `json:"av,omitempty"`
	TimestampMS  int64   `json:"t,omitempty"`
}

// LastTrade is the most recent trade reported in a snapshot row.
type LastTrade struct {
	Price       float64 `json:"p"`
	Size        float64 `json:"s"`
	Exchange    int     `json:"x"`
	TimestampNS int64   `json:"t"`
}

// LastQuote is the most recent NBBO quote reported in a snapshot row.
type LastQuote struct {
	BidPrice    float64 `json:"p"`
	BidSize     float64 `json:"s"`
	AskPrice    float64 `json:"P"`
	AskSize     float64 `json:"S"`
	TimestampNS int64   `json:"t"`
}

// SnapshotTicker is one symbol's row in the full-market snapshot.
type SnapshotTicker struct {
	Ticker           string    `json:"ticker"`
	Day              Agg       `json:"day"`
	Min              Agg       `json:"min"`
	PrevDay          Agg       `json:"prevDay"`
	LastTrade        LastTrade `json:"lastTrade"`
	LastQuote        LastQuote `json:"lastQuote"`
	TodaysChange     float64   `json:"todaysChange"`
	TodaysChangePerc float64   `json:"todaysChangePerc"`
	UpdatedNS        int64     `json:"updated"`
}

// CurrentPrice resolves the working price for a row: last trade first,
// then today's close, then the previous close. Zero means unknown.
func (s *SnapshotTicker) CurrentPrice() float64 {
	if s.LastTrade.Price > 0 {
		return s.LastTrade.Price
	}
	if s.Day.Close > 0 {
		return s.Day.Close
	}
	return s.PrevDay.Close
}

// CurrentVolume is today's accumulated share volume.
func (s *SnapshotTicker) CurrentVolume() float64 {
	return s.Day.Volume
}

// Admissible reports whether the row passes the ingestion gate:
// a known price at or above MinPrice and a non-negative volume.
func (s *SnapshotTicker) Admissible() bool {
	p := s.CurrentPrice()
	return p >= MinPrice && s.Day.Volume >= 0
}

// MarketSnapshot is the single-slot "latest snapshot" payload: every
// surviving row plus the moment it was taken. Only one snapshot is ever
// current; consumers that miss one process the next.
type MarketSnapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Count     int              `json:"count"`
	Tickers   []SnapshotTicker `json:"tickers"`
}
