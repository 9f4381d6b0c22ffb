package models

import "time"

// Session is the current market session as defined by the exchange
// calendar. Transitions only move forward within a trading date.
type Session string

const (
	SessionPreMarket  Session = "PRE_MARKET"
	SessionMarketOpen Session = "MARKET_OPEN"
	SessionPostMarket Session = "POST_MARKET"
	SessionClosed     Session = "CLOSED"
)

// sessionOrder encodes the forward-only ordering within a trading date.
var sessionOrder = map[Session]int{
	SessionPreMarket:  0,
	SessionMarketOpen: 1,
	SessionPostMarket: 2,
	SessionClosed:     3,
}

// Before reports whether s precedes other in the intraday ordering.
func (s Session) Before(other Session) bool {
	return sessionOrder[s] < sessionOrder[other]
}

// Valid reports whether s is one of the four known sessions.
func (s Session) Valid() bool {
	_, ok := sessionOrder[s]
	return ok
}

// SessionState is the singleton owned by the session detector.
type SessionState struct {
	Session     Session   `json:"session"`
	TradingDate string    `json:"trading_date"` // YYYY-MM-DD in exchange time
	NextChange  time.Time `json:"next_change"`
	Holiday     bool      `json:"holiday"`
	EarlyClose  bool      `json:"early_close"`
	AsOf        time.Time `json:"as_of"`
}

// SessionEvent is published on events:session whenever the session or
// the trading date changes.
type SessionEvent struct {
	Type        string    `json:"type"` // "session-changed" | "day-changed"
	From        Session   `json:"from,omitempty"`
	To          Session   `json:"to,omitempty"`
	TradingDate string    `json:"trading_date"`
	At          time.Time `json:"at"`
}
