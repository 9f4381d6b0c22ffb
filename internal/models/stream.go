package models

// SecondAggregate is the vendor per-second aggregate ("A" event).
// AccumVolume is cumulative since session start, pre-market included.
type SecondAggregate struct {
	Event       string  `json:"ev"`
	Symbol      string  `json:"sym"`
	Open        float64 `json:"o"`
	High        float64 `json:"h"`
	Low         float64 `json:"l"`
	Close       float64 `json:"c"`
	Volume      float64 `json:"v"`
	AccumVolume float64 `json:"av"`
	VWAP        float64 `json:"vw"`
	DayVWAP     float64 `json:"a"`
	StartMS     int64   `json:"s"`
	EndMS       int64   `json:"e"`
}

// MinuteBar is the vendor per-minute aggregate ("AM" event).
type MinuteBar struct {
	Event       string  `json:"ev"`
	Symbol      string  `json:"sym"`
	Open        float64 `json:"o"`
	High        float64 `json:"h"`
	Low         float64 `json:"l"`
	Close       float64 `json:"c"`
	Volume      float64 `json:"v"`
	AccumVolume float64 `json:"av"`
	VWAP        float64 `json:"vw"`
	StartMS     int64   `json:"s"`
	EndMS       int64   `json:"e"`
}

// TradeEvent is the vendor trade ("T" event).
type TradeEvent struct {
	Event       string  `json:"ev"`
	Symbol      string  `json:"sym"`
	Price       float64 `json:"p"`
	Size        float64 `json:"s"`
	Exchange    int     `json:"x"`
	TimestampMS int64   `json:"t"`
}

// QuoteEvent is the vendor NBBO quote ("Q" event).
type QuoteEvent struct {
	Event       string  `json:"ev"`
	Symbol      string  `json:"sym"`
	BidPrice    float64 `json:"bp"`
	BidSize     float64 `json:"bs"`
	AskPrice    float64 `json:"ap"`
	AskSize     float64 `json:"as"`
	TimestampMS int64   `json:"t"`
}

// SubscriptionCommand is one entry on the WebSocket command stream.
type SubscriptionCommand struct {
	Symbol    string `json:"symbol"`
	Action    string `json:"action"` // "subscribe" | "unsubscribe"
	Source    string `json:"source"`
	Session   string `json:"session"`
	Timestamp int64  `json:"timestamp"`
}
