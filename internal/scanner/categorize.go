package scanner

import (
	"sort"

	"github.com/sawpanic/equityrun/internal/analytics"
	"github.com/sawpanic/equityrun/internal/models"
)

// Categorizer buckets scored rows into themed categories. Predicates
// are evaluated once per row in a single pass; each non-empty bucket is
// then sorted by its own key. A row may land in several categories.
type Categorizer struct {
	limit      int
	zThreshold float64
}

// NewCategorizer caps each category at limit rows (hard cap 1000). A
// non-positive zThreshold falls back to analytics.AnomalyThreshold.
func NewCategorizer(limit int, zThreshold float64) *Categorizer {
	if limit <= 0 {
		limit = 20
	}
	if limit > 1000 {
		limit = 1000
	}
	if zThreshold <= 0 {
		zThreshold = analytics.AnomalyThreshold
	}
	return &Categorizer{limit: limit, zThreshold: zThreshold}
}

// Assign buckets every row, sorts each bucket by its category key and
// truncates to the configured limit. Ranks inside each category are
// reassigned 1-based after the sort.
func (c *Categorizer) Assign(rows []*models.EnrichedTicker) map[models.Category][]*models.EnrichedTicker {
	buckets := make(map[models.Category][]*models.EnrichedTicker)

	for _, row := range rows {
		for _, cat := range c.categoriesOf(row) {
			buckets[cat] = append(buckets[cat], row)
		}
	}

	out := make(map[models.Category][]*models.EnrichedTicker, len(buckets))
	for cat, bucket := range buckets {
		less := sortKey(cat)
		sort.SliceStable(bucket, func(i, j int) bool { return less(bucket[i], bucket[j]) })
		if len(bucket) > c.limit {
			bucket = bucket[:c.limit]
		}
		// Category rank is positional; rows are shared across buckets
		// so the per-category rank lives in the ranking copy.
		ranked := make([]*models.EnrichedTicker, len(bucket))
		for i, row := range bucket {
			cp := *row
			cp.Rank = i + 1
			ranked[i] = &cp
		}
		out[cat] = ranked
	}
	return out
}

// categoriesOf evaluates every category predicate once for the row.
func (c *Categorizer) categoriesOf(r *models.EnrichedTicker) []models.Category {
	cats := make([]models.Category, 0, 4)

	if g := r.GapFromPrevClose; g != nil {
		if *g >= 2 {
			cats = append(cats, models.CategoryGappersUp)
		}
		if *g <= -2 {
			cats = append(cats, models.CategoryGappersDown)
		}
	}

	if r.Change5Min != nil && *r.Change5Min >= 1.5 &&
		r.IntradayHigh > 0 && (r.Price-r.IntradayHigh)/r.IntradayHigh >= -0.02 &&
		r.VWAP != nil && r.Price > *r.VWAP &&
		r.RVOL != nil && *r.RVOL >= 5.0 {
		cats = append(cats, models.CategoryMomentumUp)
	}

	if r.ChangeTotal <= -3 {
		cats = append(cats, models.CategoryMomentumDown)
	}
	if r.ChangeTotal >= 5 {
		cats = append(cats, models.CategoryWinners)
	}
	if r.ChangeTotal <= -5 {
		cats = append(cats, models.CategoryLosers)
	}

	// Strict Z-score rule: no RVOL fallback for anomalies.
	if r.TradeZScore != nil && *r.TradeZScore >= c.zThreshold {
		cats = append(cats, models.CategoryAnomalies)
	}

	if r.RVOL != nil && *r.RVOL >= 2.0 {
		cats = append(cats, models.CategoryHighVolume)
	}

	if r.IntradayHigh > 0 && r.Price >= 0.999*r.IntradayHigh {
		cats = append(cats, models.CategoryNewHighs)
	}
	if r.IntradayLow > 0 && r.Price <= 1.001*r.IntradayLow {
		cats = append(cats, models.CategoryNewLows)
	}

	if g, o := r.GapFromPrevClose, r.GapFromOpen; g != nil && o != nil {
		if (*g >= 2 && *o <= -1) || (*g <= -2 && *o >= 1) {
			cats = append(cats, models.CategoryReversals)
		}
	}

	if r.Session == models.SessionPostMarket {
		pmVol := r.Volume5Min != nil && *r.Volume5Min >= 20_000
		pmChg := r.GapPostMarket != nil && absf(*r.GapPostMarket) >= 0.5
		if pmVol || pmChg {
			cats = append(cats, models.CategoryPostMarket)
		}
	}
	return cats
}

type lessFn func(a, b *models.EnrichedTicker) bool

// sortKey returns the per-category ordering.
func sortKey(cat models.Category) lessFn {
	switch cat {
	case models.CategoryGappersUp:
		return byPtrDesc(func(r *models.EnrichedTicker) *float64 { return r.GapFromPrevClose })
	case models.CategoryGappersDown:
		return byPtrAsc(func(r *models.EnrichedTicker) *float64 { return r.GapFromPrevClose })
	case models.CategoryMomentumUp:
		return byPtrDesc(func(r *models.EnrichedTicker) *float64 { return r.Change5Min })
	case models.CategoryWinners:
		return func(a, b *models.EnrichedTicker) bool { return a.ChangeTotal > b.ChangeTotal }
	case models.CategoryMomentumDown, models.CategoryLosers:
		return func(a, b *models.EnrichedTicker) bool { return a.ChangeTotal < b.ChangeTotal }
	case models.CategoryAnomalies:
		return byPtrDesc(func(r *models.EnrichedTicker) *float64 { return r.TradeZScore })
	case models.CategoryHighVolume:
		return func(a, b *models.EnrichedTicker) bool { return a.VolumeToday > b.VolumeToday }
	case models.CategoryNewHighs:
		return func(a, b *models.EnrichedTicker) bool {
			return distTo(a.Price, a.IntradayHigh) < distTo(b.Price, b.IntradayHigh)
		}
	case models.CategoryNewLows:
		return func(a, b *models.EnrichedTicker) bool {
			return distTo(a.Price, a.IntradayLow) < distTo(b.Price, b.IntradayLow)
		}
	case models.CategoryPostMarket:
		return func(a, b *models.EnrichedTicker) bool {
			return absPtr(a.GapPostMarket) > absPtr(b.GapPostMarket)
		}
	default: // REVERSALS and any future bucket rank by score.
		return func(a, b *models.EnrichedTicker) bool { return a.Score > b.Score }
	}
}

func byPtrDesc(get func(*models.EnrichedTicker) *float64) lessFn {
	return func(a, b *models.EnrichedTicker) bool {
		av, bv := get(a), get(b)
		if av == nil {
			return false
		}
		if bv == nil {
			return true
		}
		return *av > *bv
	}
}

func byPtrAsc(get func(*models.EnrichedTicker) *float64) lessFn {
	return func(a, b *models.EnrichedTicker) bool {
		av, bv := get(a), get(b)
		if av == nil {
			return false
		}
		if bv == nil {
			return true
		}
		return *av < *bv
	}
}

func distTo(price, ref float64) float64 {
	if ref <= 0 {
		return 1e18
	}
	return absf(price-ref) / ref
}

func absPtr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return absf(*v)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
