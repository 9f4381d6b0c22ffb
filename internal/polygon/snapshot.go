package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/models"
)

// snapshotResponse is the vendor full-market snapshot envelope. Rows are
// decoded individually so one malformed row never poisons the batch.
type snapshotResponse struct {
	Status  string            `json:"status"`
	Count   int               `json:"count"`
	Tickers []json.RawMessage `json:"tickers"`
}

// SnapshotResult carries the parsed snapshot plus parse bookkeeping.
type SnapshotResult struct {
	Tickers   []models.SnapshotTicker
	Malformed int
	Total     int
	FetchedAt time.Time
}

// FullMarketSnapshot pulls the all-US-stocks snapshot. Malformed rows
// are counted and dropped; the call only fails when the envelope itself
// is unreadable.
func (c *Client) FullMarketSnapshot(ctx context.Context) (*SnapshotResult, error) {
	var resp snapshotResponse
	if err := c.get(ctx, "snapshot", "/v2/snapshot/locale/us/markets/stocks/tickers", nil, &resp); err != nil {
		return nil, err
	}

	res := &SnapshotResult{
		Tickers:   make([]models.SnapshotTicker, 0, len(resp.Tickers)),
		Total:     len(resp.Tickers),
		FetchedAt: time.Now(),
	}

	const logFirstN = 5
	for _, raw := range resp.Tickers {
		var t models.SnapshotTicker
		if err := json.Unmarshal(raw, &t); err != nil || t.Ticker == "" {
			res.Malformed++
			if res.Malformed <= logFirstN {
				log.Warn().Err(err).RawJSON("row", truncate(raw, 256)).
					Msg("Malformed snapshot row dropped")
			}
			continue
		}
		res.Tickers = append(res.Tickers, t)
	}

	if res.Total > 0 && res.Malformed*5 > res.Total {
		log.Error().Int("malformed", res.Malformed).Int("total", res.Total).
			Msg("More than 20% of snapshot rows failed to parse")
	}
	return res, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	// Keep output valid-ish JSON for the console writer.
	out := make([]byte, 0, n+2)
	out = append(out, b[:n]...)
	return append(out, '"', '}')
}

// GroupedDaily pulls every symbol's daily bar for one date.
func (c *Client) GroupedDaily(ctx context.Context, date string) ([]models.DailyBar, error) {
	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			Ticker string  `json:"T"`
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/v2/aggs/grouped/locale/us/market/stocks/%s", date)
	if err := c.get(ctx, "grouped_daily", path, nil, &resp); err != nil {
		return nil, err
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	bars := make([]models.DailyBar, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Ticker == "" || r.Close <= 0 {
			continue
		}
		bars = append(bars, models.DailyBar{
			Symbol:      r.Ticker,
			TradingDate: day,
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      r.Volume,
		})
	}
	return bars, nil
}

// IntradayAggs pulls 5-minute bars for one symbol over one date range.
// Slot volume is the day's accumulated volume as of slot end, not the
// bar's own volume; the running sum resets on each new trading date.
func (c *Client) IntradayAggs(ctx context.Context, symbol string, minutes int, from, to string) ([]models.VolumeSlot, error) {
	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			Open        float64 `json:"o"`
			High        float64 `json:"h"`
			Low         float64 `json:"l"`
			Close       float64 `json:"c"`
			Volume      float64 `json:"v"`
			VWAP        float64 `json:"vw"`
			Trades      int64   `json:"n"`
			TimestampMS int64   `json:"t"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/minute/%s/%s", symbol, minutes, from, to)
	if err := c.get(ctx, "intraday_aggs", path, nil, &resp); err != nil {
		return nil, err
	}

	slots := make([]models.VolumeSlot, 0, len(resp.Results))
	var day time.Time
	var accumulated float64
	for _, r := range resp.Results {
		ts := time.UnixMilli(r.TimestampMS).UTC()
		barDay := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if !barDay.Equal(day) {
			day = barDay
			accumulated = 0
		}
		accumulated += r.Volume
		slots = append(slots, models.VolumeSlot{
			TradingDate: barDay,
			Symbol:      symbol,
			SlotTime:    ts,
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      accumulated,
			VWAP:        r.VWAP,
			TradesCount: r.Trades,
		})
	}
	return slots, nil
}
