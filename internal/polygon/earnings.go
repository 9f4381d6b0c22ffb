package polygon

import (
	"context"
	"net/url"
	"time"

	"github.com/sawpanic/equityrun/internal/models"
)

// UpcomingEarnings pulls the earnings calendar between two dates
// (YYYY-MM-DD, inclusive). Rows without a parseable report date are
// dropped.
func (c *Client) UpcomingEarnings(ctx context.Context, from, to string) ([]models.EarningsEvent, error) {
	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			Ticker          string   `json:"ticker"`
			ReportDate      string   `json:"report_date"`
			Time            string   `json:"time"`
			FiscalQuarter   string   `json:"fiscal_period"`
			EPSEstimate     *float64 `json:"eps_estimate"`
			EPSActual       *float64 `json:"eps_actual"`
			RevenueEstimate *float64 `json:"revenue_estimate"`
			RevenueActual   *float64 `json:"revenue_actual"`
			Confidence      float64  `json:"confidence"`
		} `json:"results"`
	}
	q := url.Values{}
	q.Set("report_date.gte", from)
	q.Set("report_date.lte", to)
	q.Set("limit", "1000")
	if err := c.get(ctx, "earnings", "/vX/reference/earnings", q, &resp); err != nil {
		return nil, err
	}

	events := make([]models.EarningsEvent, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Ticker == "" {
			continue
		}
		day, err := time.Parse("2006-01-02", r.ReportDate)
		if err != nil {
			continue
		}
		events = append(events, models.EarningsEvent{
			Symbol:          r.Ticker,
			ReportDate:      day,
			TimeSlot:        r.Time,
			FiscalQuarter:   r.FiscalQuarter,
			EPSEstimate:     r.EPSEstimate,
			EPSActual:       r.EPSActual,
			RevenueEstimate: r.RevenueEstimate,
			RevenueActual:   r.RevenueActual,
			Source:          "vendor",
			Confidence:      r.Confidence,
		})
	}
	return events, nil
}
