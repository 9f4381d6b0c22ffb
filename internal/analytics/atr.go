package analytics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/models"
)

// ATRCache is a read-through view of the maintenance-owned ATR hashes
// in the Bus. Entries are held in-process briefly so the enrichment
// stage does not hit the Bus per symbol per tick.
type ATRCache struct {
	bus *bus.Bus
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]atrEntry
}

type atrEntry struct {
	value  *models.ATRValue // nil means known-missing
	loaded time.Time
}

// NewATRCache creates the cache with a 5-minute local TTL.
func NewATRCache(b *bus.Bus) *ATRCache {
	return &ATRCache{
		bus:     b,
		ttl:     5 * time.Minute,
		entries: make(map[string]atrEntry),
	}
}

// Get returns (atr, atr%) for a symbol, or nil when no baseline exists.
func (c *ATRCache) Get(ctx context.Context, symbol string) *models.ATRValue {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if ok && time.Since(e.loaded) < c.ttl {
		return e.value
	}

	fields, err := c.bus.GetHash(ctx, bus.KeyATR(symbol))
	if err != nil {
		return nil
	}
	var value *models.ATRValue
	if len(fields) > 0 {
		atr, err1 := strconv.ParseFloat(fields["atr"], 64)
		pct, err2 := strconv.ParseFloat(fields["atr_percent"], 64)
		if err1 == nil && err2 == nil && atr > 0 {
			value = &models.ATRValue{Symbol: symbol, ATR: atr, ATRPercent: pct}
		}
	}

	c.mu.Lock()
	c.entries[symbol] = atrEntry{value: value, loaded: time.Now()}
	c.mu.Unlock()
	return value
}

// Reset drops local entries so refreshed baselines are re-read lazily.
func (c *ATRCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]atrEntry)
	c.mu.Unlock()
}

// ComputeATR derives (ATR, ATR%) from daily bars ordered newest first,
// using the Wilder true-range average over period bars. Returns false
// when history is insufficient.
func ComputeATR(bars []models.DailyBar, period int) (float64, float64, bool) {
	if len(bars) < period+1 {
		return 0, 0, false
	}
	var sum float64
	for i := 0; i < period; i++ {
		cur, prev := bars[i], bars[i+1]
		tr := cur.High - cur.Low
		if d := abs(cur.High - prev.Close); d > tr {
			tr = d
		}
		if d := abs(cur.Low - prev.Close); d > tr {
			tr = d
		}
		sum += tr
	}
	atr := sum / float64(period)
	lastClose := bars[0].Close
	if lastClose <= 0 {
		return atr, 0, true
	}
	return atr, atr / lastClose * 100, true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
