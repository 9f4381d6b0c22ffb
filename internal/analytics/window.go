package analytics

import (
	"sync"
	"time"
)

type windowPoint struct {
	tsMS  int64
	value float64
}

// WindowTracker maintains a per-symbol deque of (vendor timestamp,
// value) observations. Timestamps are vendor aggregate time, not wall
// clock, so replay and consumer lag do not distort windows.
type WindowTracker struct {
	mu        sync.RWMutex
	series    map[string][]windowPoint
	retention time.Duration
}

// NewWindowTracker keeps observations for the given retention window.
func NewWindowTracker(retention time.Duration) *WindowTracker {
	return &WindowTracker{
		series:    make(map[string][]windowPoint),
		retention: retention,
	}
}

// Observe appends a data point and evicts entries older than the
// retention window relative to the newest vendor timestamp.
func (t *WindowTracker) Observe(symbol string, tsMS int64, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pts := t.series[symbol]
	// Out-of-order vendor timestamps are dropped; the vendor never
	// reorders within a symbol, so this only happens on replays.
	if n := len(pts); n > 0 && tsMS <= pts[n-1].tsMS {
		return
	}
	pts = append(pts, windowPoint{tsMS: tsMS, value: value})

	cutoff := tsMS - t.retention.Milliseconds()
	i := 0
	for i < len(pts) && pts[i].tsMS < cutoff {
		i++
	}
	t.series[symbol] = pts[i:]
}

// ValueAgo returns the series value exactly ago before the newest
// observation, linearly interpolated between the two bracketing points.
// Returns nil when the deque does not reach back that far.
func (t *WindowTracker) ValueAgo(symbol string, ago time.Duration) *float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pts := t.series[symbol]
	if len(pts) < 2 {
		return nil
	}
	target := pts[len(pts)-1].tsMS - ago.Milliseconds()
	if pts[0].tsMS > target {
		return nil
	}

	// Find the first point at or after the target.
	lo, hi := 0, len(pts)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if pts[mid].tsMS < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if pts[lo].tsMS == target || lo == 0 {
		v := pts[lo].value
		return &v
	}

	a, b := pts[lo-1], pts[lo]
	frac := float64(target-a.tsMS) / float64(b.tsMS-a.tsMS)
	v := a.value + frac*(b.value-a.value)
	return &v
}

// Latest returns the newest observation; nil when the symbol is unknown.
func (t *WindowTracker) Latest(symbol string) *float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pts := t.series[symbol]
	if len(pts) == 0 {
		return nil
	}
	v := pts[len(pts)-1].value
	return &v
}

// Reset drops all rolling state. Called on day change.
func (t *WindowTracker) Reset() {
	t.mu.Lock()
	t.series = make(map[string][]windowPoint)
	t.mu.Unlock()
}

// VolumeWindows answers 5-minute accumulated-volume deltas.
type VolumeWindows struct {
	*WindowTracker
}

// NewVolumeWindows keeps 15 minutes of accumulated-volume history.
func NewVolumeWindows() *VolumeWindows {
	return &VolumeWindows{NewWindowTracker(15 * time.Minute)}
}

// Vol5Min returns av_now - av_5min_ago; nil when the window is not
// covered yet. Missing history is null, never zero.
func (v *VolumeWindows) Vol5Min(symbol string) *float64 {
	now := v.Latest(symbol)
	ago := v.ValueAgo(symbol, 5*time.Minute)
	if now == nil || ago == nil {
		return nil
	}
	d := *now - *ago
	if d < 0 {
		d = 0
	}
	return &d
}

// PriceWindows answers 5-minute price change percentages.
type PriceWindows struct {
	*WindowTracker
}

// NewPriceWindows keeps 15 minutes of close-price history.
func NewPriceWindows() *PriceWindows {
	return &PriceWindows{NewWindowTracker(15 * time.Minute)}
}

// Chg5Min returns (p_now - p_5min_ago) / p_5min_ago * 100; nil when the
// window is not covered or the reference price is zero.
func (p *PriceWindows) Chg5Min(symbol string) *float64 {
	now := p.Latest(symbol)
	ago := p.ValueAgo(symbol, 5*time.Minute)
	if now == nil || ago == nil || *ago == 0 {
		return nil
	}
	chg := (*now - *ago) / *ago * 100
	return &chg
}
