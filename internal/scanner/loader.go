package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/warehouse"
)

// FilterLoader keeps the compiled filter set current against the
// Warehouse. The active set swaps atomically; a reload failure keeps the
// previous set so the hot loop never runs unfiltered.
type FilterLoader struct {
	store    *warehouse.Store
	bus      *bus.Bus
	interval time.Duration
	active   atomic.Pointer[FilterSet]
}

// NewFilterLoader creates a loader with an empty active set.
func NewFilterLoader(store *warehouse.Store, b *bus.Bus, interval time.Duration) *FilterLoader {
	l := &FilterLoader{store: store, bus: b, interval: interval}
	l.active.Store(NewFilterSet(nil))
	return l
}

// Active returns the current compiled set. Never nil.
func (l *FilterLoader) Active() *FilterSet {
	return l.active.Load()
}

// Reload fetches, compiles and swaps in the enabled filters.
func (l *FilterLoader) Reload(ctx context.Context) error {
	filters, err := l.store.Filters.ListEnabled(ctx)
	if err != nil {
		return err
	}
	l.active.Store(NewFilterSet(filters))
	log.Debug().Int("filters", len(filters)).Msg("Filter set reloaded")
	return nil
}

// Run performs an initial reload and then refreshes on the cadence or
// when a reload event arrives on the bus.
func (l *FilterLoader) Run(ctx context.Context) error {
	if err := l.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial filter load failed, starting with empty set")
	}

	sub := l.bus.SubscribeEvents(ctx, bus.ChannelFiltersReload)
	defer sub.Close()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Channel():
			log.Info().Msg("Filter reload requested")
			if err := l.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("Filter reload failed, keeping previous set")
			}
		case <-ticker.C:
			if err := l.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("Filter reload failed, keeping previous set")
			}
		}
	}
}
