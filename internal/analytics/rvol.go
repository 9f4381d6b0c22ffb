package analytics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/bus"
)

// SlotIndex maps an exchange-local time to its N-minute slot counted
// from 04:00. With 5-minute slots the 04:00–20:00 day has 192 slots.
// Returns -1 outside the extended-hours window.
func SlotIndex(t time.Time, slotMinutes int) int {
	minutes := t.Hour()*60 + t.Minute() - 4*60
	if minutes < 0 {
		return -1
	}
	idx := minutes / slotMinutes
	if idx >= (20-4)*60/slotMinutes {
		return -1
	}
	return idx
}

// RVOLCalculator answers RVOL queries against the nightly baseline
// hashes mirrored in the Bus. Baselines are cached in-process; a day
// change invalidates the cache so refreshed baselines are re-read
// lazily.
type RVOLCalculator struct {
	bus *bus.Bus

	mu       sync.RWMutex
	baseline map[string]map[int]float64 // symbol -> slot -> mean
}

// NewRVOLCalculator creates the calculator.
func NewRVOLCalculator(b *bus.Bus) *RVOLCalculator {
	return &RVOLCalculator{
		bus:      b,
		baseline: make(map[string]map[int]float64),
	}
}

// RVOL returns current accumulated volume divided by the baseline mean
// at this slot. A missing baseline yields nil, never zero.
func (r *RVOLCalculator) RVOL(ctx context.Context, symbol string, slot int, accumVolume float64) *float64 {
	if slot < 0 || accumVolume <= 0 {
		return nil
	}
	mean, ok := r.baselineMean(ctx, symbol, slot)
	if !ok || mean <= 0 {
		return nil
	}
	v := accumVolume / mean
	return &v
}

func (r *RVOLCalculator) baselineMean(ctx context.Context, symbol string, slot int) (float64, bool) {
	r.mu.RLock()
	slots, cached := r.baseline[symbol]
	r.mu.RUnlock()

	if !cached {
		loaded, err := r.load(ctx, symbol)
		if err != nil {
			return 0, false
		}
		r.mu.Lock()
		r.baseline[symbol] = loaded
		r.mu.Unlock()
		slots = loaded
	}
	mean, ok := slots[slot]
	return mean, ok
}

func (r *RVOLCalculator) load(ctx context.Context, symbol string) (map[int]float64, error) {
	fields, err := r.bus.GetHash(ctx, bus.KeyRVOLAverages(symbol))
	if err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(fields))
	for k, v := range fields {
		slot, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		mean, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[slot] = mean
	}
	return out, nil
}

// Reset drops the in-process baseline cache. Called on day change and
// after the nightly refresh completes.
func (r *RVOLCalculator) Reset() {
	r.mu.Lock()
	r.baseline = make(map[string]map[int]float64)
	r.mu.Unlock()
}
