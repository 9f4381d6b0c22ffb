package analytics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/models"
)

// AnomalyThreshold is the default Z-score at and above which a symbol's
// trading activity counts as anomalous.
const AnomalyThreshold = 3.0

// TradeAnomalyDetector scores today's trade count against the nightly
// per-symbol baseline. Counters come from the snapshot's day.n field;
// baselines come from the Bus hashes maintenance mirrors.
type TradeAnomalyDetector struct {
	bus          *bus.Bus
	baselineDays int
	threshold    float64

	mu        sync.RWMutex
	today     map[string]int64
	baselines map[string]*models.TradeBaseline // nil entry = known-missing
	loaded    map[string]time.Time
}

// NewTradeAnomalyDetector creates the detector over a baseline lookback.
// A non-positive threshold falls back to AnomalyThreshold.
func NewTradeAnomalyDetector(b *bus.Bus, baselineDays int, threshold float64) *TradeAnomalyDetector {
	if threshold <= 0 {
		threshold = AnomalyThreshold
	}
	return &TradeAnomalyDetector{
		bus:          b,
		baselineDays: baselineDays,
		threshold:    threshold,
		today:        make(map[string]int64),
		baselines:    make(map[string]*models.TradeBaseline),
		loaded:       make(map[string]time.Time),
	}
}

// ObserveTradeCount records today's running trade count for a symbol.
// Counts only move forward within a day.
func (d *TradeAnomalyDetector) ObserveTradeCount(symbol string, count int64) {
	if count <= 0 {
		return
	}
	d.mu.Lock()
	if count > d.today[symbol] {
		d.today[symbol] = count
	}
	d.mu.Unlock()
}

// ZScore computes today's trade-count Z-score for a symbol. Missing
// baseline yields nil. With stdev 0: today > 2·mean forces z = 10,
// otherwise z = 0.
func (d *TradeAnomalyDetector) ZScore(ctx context.Context, symbol string) *float64 {
	d.mu.RLock()
	today := d.today[symbol]
	d.mu.RUnlock()
	if today == 0 {
		return nil
	}

	base := d.baseline(ctx, symbol)
	if base == nil {
		return nil
	}

	var z float64
	switch {
	case base.Stdev > 0:
		z = (float64(today) - base.Mean) / base.Stdev
	case float64(today) > 2*base.Mean:
		z = 10
	default:
		z = 0
	}
	return &z
}

// IsAnomalous reports whether the symbol's Z-score is at the threshold.
func (d *TradeAnomalyDetector) IsAnomalous(ctx context.Context, symbol string) bool {
	z := d.ZScore(ctx, symbol)
	return z != nil && *z >= d.threshold
}

func (d *TradeAnomalyDetector) baseline(ctx context.Context, symbol string) *models.TradeBaseline {
	d.mu.RLock()
	base, cached := d.baselines[symbol]
	at := d.loaded[symbol]
	d.mu.RUnlock()
	if cached && time.Since(at) < 10*time.Minute {
		return base
	}

	fields, err := d.bus.GetHash(ctx, bus.KeyTradeBaseline(symbol, d.baselineDays))
	if err != nil {
		return nil
	}
	base = nil
	if len(fields) > 0 {
		mean, err1 := strconv.ParseFloat(fields["avg"], 64)
		std, err2 := strconv.ParseFloat(fields["std"], 64)
		if err1 == nil && err2 == nil {
			base = &models.TradeBaseline{
				Symbol: symbol,
				Days:   d.baselineDays,
				Mean:   mean,
				Stdev:  std,
			}
		}
	}

	d.mu.Lock()
	d.baselines[symbol] = base
	d.loaded[symbol] = time.Now()
	d.mu.Unlock()
	return base
}

// Reset drops in-day counters and the baseline cache. Called on day
// change; the Bus baselines themselves are untouched until maintenance
// rebuilds them.
func (d *TradeAnomalyDetector) Reset() {
	d.mu.Lock()
	d.today = make(map[string]int64)
	d.baselines = make(map[string]*models.TradeBaseline)
	d.loaded = make(map[string]time.Time)
	d.mu.Unlock()
}

// TodayCount returns the recorded trade count for a symbol.
func (d *TradeAnomalyDetector) TodayCount(symbol string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.today[symbol]
}
