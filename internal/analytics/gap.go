package analytics

import (
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/models"
)

// GapState is one symbol's latched gap context for the trading day.
type GapState struct {
	PreMarketPeak float64   // peak |gap| observed during pre-market
	OpenGap       *float64  // gap latched at the first PRE_MARKET -> MARKET_OPEN tick
	HighGap       float64   // running max |gap| across the day
	CurrentGap    float64
	LastSession   models.Session
	UpdatedAt     time.Time
}

// GapTracker latches per-symbol gap milestones across the trading day.
// The open gap latches on the first observation whose session is
// MARKET_OPEN while the symbol's previously observed session was
// PRE_MARKET; it is never overwritten afterwards. Tracking is
// per-symbol because symbols can be first observed mid-session.
type GapTracker struct {
	mu    sync.RWMutex
	state map[string]*GapState
}

// NewGapTracker creates an empty tracker.
func NewGapTracker() *GapTracker {
	return &GapTracker{state: make(map[string]*GapState)}
}

// Observe records a gap observation and returns the updated state.
func (t *GapTracker) Observe(symbol string, session models.Session, gapFromPrevClose float64, at time.Time) GapState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.state[symbol]
	if !ok {
		s = &GapState{LastSession: session}
		t.state[symbol] = s
	}

	abs := gapFromPrevClose
	if abs < 0 {
		abs = -abs
	}

	if session == models.SessionPreMarket && abs > s.PreMarketPeak {
		s.PreMarketPeak = abs
	}
	if session == models.SessionMarketOpen && s.OpenGap == nil && s.LastSession == models.SessionPreMarket {
		g := gapFromPrevClose
		s.OpenGap = &g
	}
	if abs > s.HighGap {
		s.HighGap = abs
	}
	s.CurrentGap = gapFromPrevClose
	s.LastSession = session
	s.UpdatedAt = at
	return *s
}

// Get returns the current state for a symbol.
func (t *GapTracker) Get(symbol string) (GapState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.state[symbol]
	if !ok {
		return GapState{}, false
	}
	return *s, true
}

// Reset drops all per-day state. Called on day change.
func (t *GapTracker) Reset() {
	t.mu.Lock()
	t.state = make(map[string]*GapState)
	t.mu.Unlock()
}
