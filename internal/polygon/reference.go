package polygon

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sawpanic/equityrun/internal/models"
)

// TickerDetails pulls one symbol's reference record.
func (c *Client) TickerDetails(ctx context.Context, symbol string) (*models.TickerMetadata, error) {
	var resp struct {
		Status  string `json:"status"`
		Results struct {
			Ticker          string  `json:"ticker"`
			Name            string  `json:"name"`
			PrimaryExchange string  `json:"primary_exchange"`
			Type            string  `json:"type"`
			MarketCap       float64 `json:"market_cap"`
			ShareClassShares float64 `json:"share_class_shares_outstanding"`
			WeightedShares  float64 `json:"weighted_shares_outstanding"`
			SICDescription  string  `json:"sic_description"`
			Active          bool    `json:"active"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/v3/reference/tickers/%s", symbol)
	if err := c.get(ctx, "ticker_details", path, nil, &resp); err != nil {
		return nil, err
	}
	r := resp.Results
	shares := r.WeightedShares
	if shares == 0 {
		shares = r.ShareClassShares
	}
	return &models.TickerMetadata{
		Symbol:            r.Ticker,
		CompanyName:       r.Name,
		Exchange:          r.PrimaryExchange,
		Sector:            r.SICDescription,
		MarketCap:         r.MarketCap,
		SharesOutstanding: shares,
		IsETF:             r.Type == "ETF",
		IsActivelyTrading: r.Active,
		UpdatedAt:         time.Now(),
	}, nil
}

// ListTickers pages through the active ticker universe.
func (c *Client) ListTickers(ctx context.Context) ([]string, error) {
	type page struct {
		Results []struct {
			Ticker string `json:"ticker"`
			Active bool   `json:"active"`
		} `json:"results"`
		NextURL string `json:"next_url"`
	}

	var symbols []string
	q := url.Values{}
	q.Set("market", "stocks")
	q.Set("active", "true")
	q.Set("limit", "1000")

	path := "/v3/reference/tickers"
	for {
		var p page
		if err := c.get(ctx, "list_tickers", path, q, &p); err != nil {
			return nil, err
		}
		for _, r := range p.Results {
			if r.Active {
				symbols = append(symbols, r.Ticker)
			}
		}
		if p.NextURL == "" {
			break
		}
		next, err := url.Parse(p.NextURL)
		if err != nil {
			return nil, fmt.Errorf("bad next_url: %w", err)
		}
		path = next.Path
		q = next.Query()
		q.Del("apiKey")
	}
	return symbols, nil
}

// Split is one corporate action reported by the vendor.
type Split struct {
	Symbol        string
	ExecutionDate string // YYYY-MM-DD
	SplitFrom     float64
	SplitTo       float64
}

// Ratio is the price multiplier implied by the split: a 1-for-10
// reverse split yields 10.
func (s Split) Ratio() float64 {
	if s.SplitTo == 0 {
		return 0
	}
	return s.SplitFrom / s.SplitTo
}

// RecentSplits lists splits executed on or after the given date.
func (c *Client) RecentSplits(ctx context.Context, since string) ([]Split, error) {
	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			Ticker        string  `json:"ticker"`
			ExecutionDate string  `json:"execution_date"`
			SplitFrom     float64 `json:"split_from"`
			SplitTo       float64 `json:"split_to"`
		} `json:"results"`
	}
	q := url.Values{}
	q.Set("execution_date.gte", since)
	q.Set("limit", "1000")
	if err := c.get(ctx, "splits", "/v3/reference/splits", q, &resp); err != nil {
		return nil, err
	}

	splits := make([]Split, 0, len(resp.Results))
	for _, r := range resp.Results {
		splits = append(splits, Split{
			Symbol:        r.Ticker,
			ExecutionDate: r.ExecutionDate,
			SplitFrom:     r.SplitFrom,
			SplitTo:       r.SplitTo,
		})
	}
	return splits, nil
}

// MarketStatus is the vendor's live market-status report.
type MarketStatus struct {
	Market     string `json:"market"`
	EarlyHours bool   `json:"earlyHours"`
	AfterHours bool   `json:"afterHours"`
	ServerTime string `json:"serverTime"`
}

// CurrentMarketStatus queries the live status endpoint.
func (c *Client) CurrentMarketStatus(ctx context.Context) (*MarketStatus, error) {
	var status MarketStatus
	if err := c.get(ctx, "market_status", "/v1/marketstatus/now", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Holiday is one exchange holiday or early close.
type Holiday struct {
	Date     string `json:"date"`
	Exchange string `json:"exchange"`
	Name     string `json:"name"`
	Status   string `json:"status"` // "closed" | "early-close"
	Close    string `json:"close,omitempty"`
}

// UpcomingHolidays lists the vendor's holiday calendar.
func (c *Client) UpcomingHolidays(ctx context.Context) ([]Holiday, error) {
	var holidays []Holiday
	if err := c.get(ctx, "holidays", "/v1/marketstatus/upcoming", nil, &holidays); err != nil {
		return nil, err
	}
	return holidays, nil
}
