package models

// FilterParams is the declarative bound set of one scanner filter. Every
// field is optional; nil bounds are ignored. Filters are data, loaded
// from the Warehouse, never code.
type FilterParams struct {
	MinRVOL   *float64 `json:"min_rvol,omitempty"`
	MaxRVOL   *float64 `json:"max_rvol,omitempty"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MinSpread *float64 `json:"min_spread,omitempty"`
	MaxSpread *float64 `json:"max_spread,omitempty"`

	MinBidSize *float64 `json:"min_bid_size,omitempty"`
	MaxBidSize *float64 `json:"max_bid_size,omitempty"`
	MinAskSize *float64 `json:"min_ask_size,omitempty"`
	MaxAskSize *float64 `json:"max_ask_size,omitempty"`

	MinDistFromNBBO *float64 `json:"min_dist_from_nbbo,omitempty"`
	MaxDistFromNBBO *float64 `json:"max_dist_from_nbbo,omitempty"`

	MinVolumeToday     *float64 `json:"min_volume_today,omitempty"`
	MinVolumeMinute    *float64 `json:"min_volume_minute,omitempty"`
	MinAvgVolume5D     *float64 `json:"min_avg_volume_5d,omitempty"`
	MinAvgVolume10D    *float64 `json:"min_avg_volume_10d,omitempty"`
	MinAvgVolume3M     *float64 `json:"min_avg_volume_3m,omitempty"`
	MinDollarVolume    *float64 `json:"min_dollar_volume,omitempty"`
	MinVolumeTodayPct  *float64 `json:"min_volume_today_pct,omitempty"`
	MinVolumeYesterPct *float64 `json:"min_volume_yesterday_pct,omitempty"`

	MinChangePct *float64 `json:"min_change_pct,omitempty"`
	MaxChangePct *float64 `json:"max_change_pct,omitempty"`
	MinGapPct    *float64 `json:"min_gap,omitempty"`
	MaxGapPct    *float64 `json:"max_gap,omitempty"`

	MinMarketCap *float64 `json:"min_market_cap,omitempty"`
	MaxMarketCap *float64 `json:"max_market_cap,omitempty"`
	MinFloat     *float64 `json:"min_float,omitempty"`
	MaxFloat     *float64 `json:"max_float,omitempty"`

	MaxDataAgeSeconds *float64 `json:"max_data_age_seconds,omitempty"`

	Sectors    []string `json:"sectors,omitempty"`
	Industries []string `json:"industries,omitempty"`
	Exchanges  []string `json:"exchanges,omitempty"`

	// Post-market only bounds; ignored outside POST_MARKET.
	MinPMChangePct *float64 `json:"min_pm_change_pct,omitempty"`
	MaxPMChangePct *float64 `json:"max_pm_change_pct,omitempty"`
	MinPMVolume    *float64 `json:"min_pm_volume,omitempty"`
}

// ScannerFilter is one named, prioritised filter. A row passes the
// active set iff it passes every enabled filter whose session set
// contains the current session.
type ScannerFilter struct {
	Name     string       `json:"name"`
	Enabled  bool         `json:"enabled"`
	Priority int          `json:"priority"`
	Sessions []Session    `json:"sessions"`
	Params   FilterParams `json:"params"`
}

// AppliesTo reports whether the filter is live for the given session.
// An empty session set means all sessions.
func (f *ScannerFilter) AppliesTo(s Session) bool {
	if !f.Enabled {
		return false
	}
	if len(f.Sessions) == 0 {
		return true
	}
	for _, fs := range f.Sessions {
		if fs == s {
			return true
		}
	}
	return false
}
