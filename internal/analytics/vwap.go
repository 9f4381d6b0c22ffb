package analytics

import "sync"

// VWAPCache keeps the vendor-reported session VWAP per symbol. A zero
// or missing VWAP on an update preserves the previous value: VWAP must
// never disappear mid-session.
type VWAPCache struct {
	mu sync.RWMutex
	m  map[string]float64
}

// NewVWAPCache creates an empty cache.
func NewVWAPCache() *VWAPCache {
	return &VWAPCache{m: make(map[string]float64)}
}

// Update records a vendor VWAP observation. Non-positive values are
// ignored.
func (c *VWAPCache) Update(symbol string, vwap float64) {
	if vwap <= 0 {
		return
	}
	c.mu.Lock()
	c.m[symbol] = vwap
	c.mu.Unlock()
}

// Get returns the current VWAP; false when the symbol has never
// reported one this session.
func (c *VWAPCache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[symbol]
	return v, ok
}

// Reset drops all session state. Called on day change.
func (c *VWAPCache) Reset() {
	c.mu.Lock()
	c.m = make(map[string]float64)
	c.mu.Unlock()
}

// Size returns the tracked symbol count.
func (c *VWAPCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
