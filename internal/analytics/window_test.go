package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAgoNotCoveredIsNil(t *testing.T) {
	w := NewWindowTracker(15 * time.Minute)

	assert.Nil(t, w.ValueAgo("AAPL", 5*time.Minute))

	w.Observe("AAPL", 0, 100)
	// A single point cannot cover any window.
	assert.Nil(t, w.ValueAgo("AAPL", 5*time.Minute))

	// Two points 3 minutes apart still cannot reach 5 minutes back.
	w.Observe("AAPL", 3*60*1000, 110)
	assert.Nil(t, w.ValueAgo("AAPL", 5*time.Minute))
}

func TestValueAgoInterpolates(t *testing.T) {
	w := NewWindowTracker(15 * time.Minute)
	w.Observe("AAPL", 0, 100)
	w.Observe("AAPL", 10*60*1000, 200)

	// 5 minutes before the newest point falls exactly between the two.
	v := w.ValueAgo("AAPL", 5*time.Minute)
	require.NotNil(t, v)
	assert.InDelta(t, 150, *v, 1e-9)

	// Exact hit on a stored point.
	w.Observe("AAPL", 12*60*1000, 240)
	v = w.ValueAgo("AAPL", 2*time.Minute)
	require.NotNil(t, v)
	assert.InDelta(t, 200, *v, 1e-9)
}

func TestObserveDropsOutOfOrder(t *testing.T) {
	w := NewWindowTracker(15 * time.Minute)
	w.Observe("AAPL", 1000, 100)
	w.Observe("AAPL", 500, 999) // replayed, ignored
	w.Observe("AAPL", 1000, 999) // duplicate ts, ignored

	v := w.Latest("AAPL")
	require.NotNil(t, v)
	assert.Equal(t, 100.0, *v)
}

func TestRetentionEviction(t *testing.T) {
	w := NewWindowTracker(10 * time.Minute)
	w.Observe("AAPL", 0, 1)
	w.Observe("AAPL", 11*60*1000, 2)

	// The first point is past retention relative to the newest.
	assert.Nil(t, w.ValueAgo("AAPL", 10*time.Minute))
}

func TestVol5Min(t *testing.T) {
	v := NewVolumeWindows()
	assert.Nil(t, v.Vol5Min("AAPL"))

	v.Observe("AAPL", 0, 1_000_000)
	v.Observe("AAPL", 5*60*1000, 1_250_000)

	d := v.Vol5Min("AAPL")
	require.NotNil(t, d)
	assert.InDelta(t, 250_000, *d, 1e-6)
}

func TestChg5Min(t *testing.T) {
	p := NewPriceWindows()
	p.Observe("AAPL", 0, 100)
	p.Observe("AAPL", 5*60*1000, 103)

	c := p.Chg5Min("AAPL")
	require.NotNil(t, c)
	assert.InDelta(t, 3.0, *c, 1e-9)

	assert.Nil(t, p.Chg5Min("MSFT"))
}

func TestResetDropsState(t *testing.T) {
	v := NewVolumeWindows()
	v.Observe("AAPL", 0, 100)
	v.Observe("AAPL", 5*60*1000, 200)
	require.NotNil(t, v.Vol5Min("AAPL"))

	v.Reset()
	assert.Nil(t, v.Vol5Min("AAPL"))
}
