package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/models"
	"github.com/sawpanic/equityrun/internal/polygon"
)

// Boundaries are the exchange-local session boundaries.
type Boundaries struct {
	PreMarketStart string
	MarketOpen     string
	MarketClose    string
	PostMarketEnd  string
}

// Detector computes the current session from the vendor status endpoint
// when reachable and from wall clock plus the cached holiday calendar
// otherwise. It owns market:session:current and emits session-changed
// and day-changed events.
type Detector struct {
	bus    *bus.Bus
	vendor *polygon.Client
	loc    *time.Location
	bounds Boundaries

	mu       sync.RWMutex
	current  models.SessionState
	holidays map[string]polygon.Holiday // date -> holiday
}

// New creates a detector. The timezone must resolve or startup fails.
func New(b *bus.Bus, vendor *polygon.Client, timezone string, bounds Boundaries) (*Detector, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return &Detector{
		bus:      b,
		vendor:   vendor,
		loc:      loc,
		bounds:   bounds,
		holidays: make(map[string]polygon.Holiday),
	}, nil
}

// Start loads the holiday calendar and begins the 60s poll loop.
func (d *Detector) Start(ctx context.Context) error {
	if err := d.refreshHolidays(ctx); err != nil {
		log.Warn().Err(err).Msg("Holiday calendar fetch failed, falling back to weekday rules")
	}

	d.evaluate(ctx, time.Now())

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.evaluate(ctx, time.Now())
		}
	}
}

// Current returns the latest session state.
func (d *Detector) Current() models.SessionState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// evaluate recomputes the session and publishes events when the session
// or trading date changed. State is treated as unchanged otherwise. The
// vendor's live status wins over the wall-clock rules when reachable.
func (d *Detector) evaluate(ctx context.Context, now time.Time) {
	state := d.compute(now)
	if live, ok := d.liveSession(ctx); ok && live != state.Session {
		log.Debug().Str("computed", string(state.Session)).Str("vendor", string(live)).
			Msg("Vendor status overrides computed session")
		state.Session = live
	}

	d.mu.Lock()
	prev := d.current
	changed := state.Session != prev.Session || state.TradingDate != prev.TradingDate
	if changed {
		d.current = state
	}
	d.mu.Unlock()

	if !changed {
		return
	}

	if err := d.bus.SetJSON(ctx, bus.KeySessionCurrent, state, 0); err != nil {
		log.Warn().Err(err).Msg("Failed to write session state")
	}

	if prev.TradingDate != "" && state.TradingDate != prev.TradingDate {
		ev := models.SessionEvent{
			Type:        "day-changed",
			TradingDate: state.TradingDate,
			At:          now,
		}
		d.emit(ctx, ev)
		if err := d.bus.PublishEvent(ctx, bus.ChannelNewDay, ev); err != nil {
			log.Warn().Err(err).Msg("Failed to publish new-day event")
		}
		log.Info().Str("trading_date", state.TradingDate).Msg("Trading day changed")
	}

	if prev.Session != "" && state.Session != prev.Session {
		ev := models.SessionEvent{
			Type:        "session-changed",
			From:        prev.Session,
			To:          state.Session,
			TradingDate: state.TradingDate,
			At:          now,
		}
		d.emit(ctx, ev)
		log.Info().Str("from", string(prev.Session)).Str("to", string(state.Session)).
			Msg("Session changed")
	}
}

func (d *Detector) emit(ctx context.Context, ev models.SessionEvent) {
	payload := map[string]any{
		"type":         ev.Type,
		"from":         string(ev.From),
		"to":           string(ev.To),
		"trading_date": ev.TradingDate,
		"at":           ev.At.UnixMilli(),
	}
	if _, err := d.bus.Publish(ctx, bus.StreamSessionEvents, payload, 1000); err != nil {
		log.Warn().Err(err).Msg("Failed to publish session event")
	}
}

// liveSession asks the vendor for the live market status. Any fetch
// failure falls back to the wall-clock computation.
func (d *Detector) liveSession(ctx context.Context) (models.Session, bool) {
	if d.vendor == nil {
		return "", false
	}
	st, err := d.vendor.CurrentMarketStatus(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Market status fetch failed, using wall clock")
		return "", false
	}
	return sessionFromStatus(st)
}

// sessionFromStatus maps the vendor's status report onto a session. An
// unrecognized report maps to nothing rather than guessing.
func sessionFromStatus(st *polygon.MarketStatus) (models.Session, bool) {
	if st == nil {
		return "", false
	}
	switch {
	case st.EarlyHours:
		return models.SessionPreMarket, true
	case st.AfterHours:
		return models.SessionPostMarket, true
	}
	switch st.Market {
	case "open":
		return models.SessionMarketOpen, true
	case "closed":
		return models.SessionClosed, true
	}
	return "", false
}

// compute derives the session state for the given instant.
func (d *Detector) compute(now time.Time) models.SessionState {
	local := now.In(d.loc)
	date := local.Format("2006-01-02")

	state := models.SessionState{
		TradingDate: date,
		Session:     models.SessionClosed,
		AsOf:        now,
	}

	// Weekends are always non-trading.
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return state
	}

	closeStr := d.bounds.MarketClose
	d.mu.RLock()
	if h, ok := d.holidays[date]; ok {
		if h.Status == "closed" {
			state.Holiday = true
		} else if h.Status == "early-close" && h.Close != "" {
			state.EarlyClose = true
			if t, err := time.Parse(time.RFC3339, h.Close); err == nil {
				closeStr = t.In(d.loc).Format("15:04")
			}
		}
	}
	d.mu.RUnlock()
	if state.Holiday {
		return state
	}

	pre := d.minutesOf(d.bounds.PreMarketStart)
	open := d.minutesOf(d.bounds.MarketOpen)
	cls := d.minutesOf(closeStr)
	post := d.minutesOf(d.bounds.PostMarketEnd)
	minutes := local.Hour()*60 + local.Minute()

	switch {
	case minutes >= pre && minutes < open:
		state.Session = models.SessionPreMarket
		state.NextChange = d.at(local, open)
	case minutes >= open && minutes < cls:
		state.Session = models.SessionMarketOpen
		state.NextChange = d.at(local, cls)
	case minutes >= cls && minutes < post:
		state.Session = models.SessionPostMarket
		state.NextChange = d.at(local, post)
	default:
		state.Session = models.SessionClosed
	}
	return state
}

func (d *Detector) minutesOf(hhmm string) int {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}

func (d *Detector) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, d.loc)
}

// refreshHolidays loads the vendor calendar and mirrors each date in
// the Bus with a 30-day TTL.
func (d *Detector) refreshHolidays(ctx context.Context) error {
	if d.vendor == nil {
		return nil
	}
	holidays, err := d.vendor.UpcomingHolidays(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, h := range holidays {
		d.holidays[h.Date] = h
	}
	d.mu.Unlock()

	for _, h := range holidays {
		key := bus.KeyHoliday(h.Date, h.Exchange)
		if err := d.bus.SetJSON(ctx, key, h, bus.TTLHoliday); err != nil {
			log.Warn().Err(err).Str("date", h.Date).Msg("Failed to cache holiday")
		}
	}
	log.Info().Int("count", len(holidays)).Msg("Holiday calendar refreshed")
	return nil
}

// SetHolidays seeds the calendar directly. Used by tests and recovery.
func (d *Detector) SetHolidays(holidays []polygon.Holiday) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range holidays {
		d.holidays[h.Date] = h
	}
}

// ComputeAt exposes the pure computation for tests.
func (d *Detector) ComputeAt(now time.Time) models.SessionState {
	return d.compute(now)
}
