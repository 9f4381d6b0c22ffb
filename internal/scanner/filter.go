package scanner

import (
	"time"

	"github.com/sawpanic/equityrun/internal/models"
)

// fieldFn extracts one comparable field from an enriched row. A nil
// result means the field is unknown for this row.
type fieldFn func(row *models.EnrichedTicker) *float64

// bound is one compiled (min, max, field) triple. Filters stay data:
// the evaluator walks this fixed list instead of growing a comparator
// per parameter.
type bound struct {
	name  string
	min   *float64
	max   *float64
	field fieldFn
}

// compiledFilter is a filter with its non-null bounds precompiled.
type compiledFilter struct {
	models.ScannerFilter
	bounds     []bound
	sectors    map[string]struct{}
	industries map[string]struct{}
	exchanges  map[string]struct{}
}

// Compile turns declarative filter parameters into the bound list the
// hot loop walks. Only non-null bounds are kept.
func Compile(f models.ScannerFilter) *compiledFilter {
	p := f.Params
	cf := &compiledFilter{ScannerFilter: f}

	add := func(name string, min, max *float64, field fieldFn) {
		if min == nil && max == nil {
			return
		}
		cf.bounds = append(cf.bounds, bound{name: name, min: min, max: max, field: field})
	}

	add("rvol", p.MinRVOL, p.MaxRVOL, func(r *models.EnrichedTicker) *float64 { return r.RVOL })
	add("price", p.MinPrice, p.MaxPrice, val(func(r *models.EnrichedTicker) float64 { return r.Price }))
	add("spread", p.MinSpread, p.MaxSpread, val(func(r *models.EnrichedTicker) float64 { return r.Spread() }))
	add("bid_size", p.MinBidSize, p.MaxBidSize, val(func(r *models.EnrichedTicker) float64 { return r.BidSize }))
	add("ask_size", p.MinAskSize, p.MaxAskSize, val(func(r *models.EnrichedTicker) float64 { return r.AskSize }))
	add("dist_from_nbbo", p.MinDistFromNBBO, p.MaxDistFromNBBO, distFromNBBO)
	add("volume_today", p.MinVolumeToday, nil, val(func(r *models.EnrichedTicker) float64 { return r.VolumeToday }))
	add("volume_minute", p.MinVolumeMinute, nil, val(func(r *models.EnrichedTicker) float64 { return r.MinuteVolume }))
	add("avg_volume_5d", p.MinAvgVolume5D, nil, metaField(func(m *models.TickerMetadata) float64 { return m.AvgVolume5D }))
	add("avg_volume_10d", p.MinAvgVolume10D, nil, metaField(func(m *models.TickerMetadata) float64 { return m.AvgVolume10D }))
	add("avg_volume_3m", p.MinAvgVolume3M, nil, metaField(func(m *models.TickerMetadata) float64 { return m.AvgVolume3M }))
	add("dollar_volume", p.MinDollarVolume, nil, val(func(r *models.EnrichedTicker) float64 { return r.DollarVolume() }))
	add("volume_today_pct", p.MinVolumeTodayPct, nil, volumeTodayPct)
	add("volume_yesterday_pct", p.MinVolumeYesterPct, nil, volumeYesterdayPct)
	add("change_pct", p.MinChangePct, p.MaxChangePct, val(func(r *models.EnrichedTicker) float64 { return r.ChangeTotal }))
	add("gap", p.MinGapPct, p.MaxGapPct, func(r *models.EnrichedTicker) *float64 { return r.GapFromPrevClose })
	add("market_cap", p.MinMarketCap, p.MaxMarketCap, metaField(func(m *models.TickerMetadata) float64 { return m.MarketCap }))
	add("float", p.MinFloat, p.MaxFloat, metaField(func(m *models.TickerMetadata) float64 { return m.FreeFloat }))
	add("data_age", nil, p.MaxDataAgeSeconds, dataAgeSeconds)
	add("pm_change_pct", p.MinPMChangePct, p.MaxPMChangePct, pmChangePct)
	add("pm_volume", p.MinPMVolume, nil, pmVolume)

	cf.sectors = toSet(p.Sectors)
	cf.industries = toSet(p.Industries)
	cf.exchanges = toSet(p.Exchanges)
	return cf
}

// Matches reports whether the row satisfies every non-null bound.
// A bound over an unknown field rejects the row; bounds the filter does
// not set ignore the nullity entirely.
func (cf *compiledFilter) Matches(row *models.EnrichedTicker) bool {
	for i := range cf.bounds {
		b := &cf.bounds[i]
		v := b.field(row)
		if v == nil {
			return false
		}
		if b.min != nil && *v < *b.min {
			return false
		}
		if b.max != nil && *v > *b.max {
			return false
		}
	}
	if len(cf.sectors) > 0 && !inSet(cf.sectors, metaStr(row, func(m *models.TickerMetadata) string { return m.Sector })) {
		return false
	}
	if len(cf.industries) > 0 && !inSet(cf.industries, metaStr(row, func(m *models.TickerMetadata) string { return m.Industry })) {
		return false
	}
	if len(cf.exchanges) > 0 && !inSet(cf.exchanges, metaStr(row, func(m *models.TickerMetadata) string { return m.Exchange })) {
		return false
	}
	return true
}

// FilterSet is the immutable compiled active set for one reload epoch.
type FilterSet struct {
	filters []*compiledFilter
}

// NewFilterSet compiles filters; the result is never mutated.
func NewFilterSet(filters []models.ScannerFilter) *FilterSet {
	fs := &FilterSet{filters: make([]*compiledFilter, 0, len(filters))}
	for _, f := range filters {
		fs.filters = append(fs.filters, Compile(f))
	}
	return fs
}

// Evaluate returns the names of the session-applicable filters the row
// passed, and whether it passed all of them. Evaluation exits on the
// first failing filter. A panic inside a filter counts as "does not
// pass" and never aborts the cycle.
func (fs *FilterSet) Evaluate(row *models.EnrichedTicker, session models.Session) (matched []string, pass bool) {
	pass = true
	for _, cf := range fs.filters {
		if !cf.AppliesTo(session) {
			continue
		}
		if !safeMatch(cf, row) {
			return nil, false
		}
		matched = append(matched, cf.Name)
	}
	return matched, pass
}

// Len reports the compiled filter count.
func (fs *FilterSet) Len() int { return len(fs.filters) }

func safeMatch(cf *compiledFilter, row *models.EnrichedTicker) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return cf.Matches(row)
}

func val(get func(*models.EnrichedTicker) float64) fieldFn {
	return func(r *models.EnrichedTicker) *float64 {
		v := get(r)
		return &v
	}
}

func metaField(get func(*models.TickerMetadata) float64) fieldFn {
	return func(r *models.EnrichedTicker) *float64 {
		if r.Meta == nil {
			return nil
		}
		v := get(r.Meta)
		if v == 0 {
			return nil
		}
		return &v
	}
}

func metaStr(r *models.EnrichedTicker, get func(*models.TickerMetadata) string) string {
	if r.Meta == nil {
		return ""
	}
	return get(r.Meta)
}

func distFromNBBO(r *models.EnrichedTicker) *float64 {
	mid := (r.BidPrice + r.AskPrice) / 2
	if mid <= 0 || r.Price <= 0 {
		return nil
	}
	d := (r.Price - mid) / mid * 100
	if d < 0 {
		d = -d
	}
	return &d
}

func volumeTodayPct(r *models.EnrichedTicker) *float64 {
	if r.Meta == nil || r.Meta.AvgVolume30D <= 0 {
		return nil
	}
	v := r.VolumeToday / r.Meta.AvgVolume30D * 100
	return &v
}

func volumeYesterdayPct(r *models.EnrichedTicker) *float64 {
	if r.PrevVolume <= 0 {
		return nil
	}
	v := r.VolumeToday / r.PrevVolume * 100
	return &v
}

func dataAgeSeconds(r *models.EnrichedTicker) *float64 {
	age := time.Since(r.SnapshotAt).Seconds()
	return &age
}

func pmChangePct(r *models.EnrichedTicker) *float64 {
	if r.Session != models.SessionPostMarket {
		return nil
	}
	return r.GapPostMarket
}

func pmVolume(r *models.EnrichedTicker) *float64 {
	if r.Session != models.SessionPostMarket {
		return nil
	}
	return r.Volume5Min
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func inSet(s map[string]struct{}, v string) bool {
	_, ok := s[v]
	return ok
}
