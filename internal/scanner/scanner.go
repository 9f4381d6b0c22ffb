package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
)

// SessionSource supplies the current session state to the scan loop.
// The session detector satisfies this.
type SessionSource interface {
	Current() models.SessionState
}

// Scanner runs the scan cycle: latest snapshot in, ranked category
// deltas out. One instance owns the ranking keys; the cycle is
// single-threaded so every published state derives from exactly one
// snapshot.
type Scanner struct {
	bus      *bus.Bus
	metrics  *metrics.Registry
	session  SessionSource
	enricher *Enricher
	filters  *FilterLoader
	cats     *Categorizer
	deltas   *DeltaEngine
	archiver *Archiver

	interval time.Duration
	maxRows  int

	lastSnapshot time.Time
}

// New wires the scan loop.
func New(b *bus.Bus, m *metrics.Registry, session SessionSource, enricher *Enricher,
	filters *FilterLoader, cats *Categorizer, deltas *DeltaEngine, archiver *Archiver,
	interval time.Duration, maxRows int) *Scanner {
	return &Scanner{
		bus:      b,
		metrics:  m,
		session:  session,
		enricher: enricher,
		filters:  filters,
		cats:     cats,
		deltas:   deltas,
		archiver: archiver,
		interval: interval,
		maxRows:  maxRows,
	}
}

// Run restores delta sequences and executes the cycle on the scan
// cadence until the context ends.
func (s *Scanner) Run(ctx context.Context) error {
	s.deltas.RestoreSequences(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle executes one scan pass. A missing or already-processed snapshot
// is a no-op: the same snapshot timestamp is never emitted twice.
func (s *Scanner) Cycle(ctx context.Context) {
	var snap models.MarketSnapshot
	ok, err := s.bus.GetJSON(ctx, bus.KeySnapshotLatest, &snap)
	if err != nil {
		log.Warn().Err(err).Msg("Snapshot read failed")
		return
	}
	if !ok || len(snap.Tickers) == 0 {
		return
	}
	if !snap.Timestamp.After(s.lastSnapshot) {
		return
	}
	s.lastSnapshot = snap.Timestamp

	state := s.session.Current()
	s.metrics.SnapshotRowCount.Set(float64(len(snap.Tickers)))
	s.metrics.SnapshotAge.Set(time.Since(snap.Timestamp).Seconds())

	start := time.Now()
	rows := s.enricher.Enrich(ctx, &snap, state)
	s.metrics.ScanDuration.WithLabelValues("enrich").Observe(time.Since(start).Seconds())

	start = time.Now()
	fs := s.filters.Active()
	passed := make([]*models.EnrichedTicker, 0, len(rows))
	for _, row := range rows {
		matched, ok := fs.Evaluate(row, state.Session)
		if !ok {
			continue
		}
		row.MatchedFilters = matched
		passed = append(passed, row)
	}
	s.metrics.ScanDuration.WithLabelValues("filter").Observe(time.Since(start).Seconds())
	s.metrics.RowsFiltered.Set(float64(len(passed)))

	start = time.Now()
	for _, row := range passed {
		row.Score = Score(row)
	}
	emitted := RankByScore(passed, s.maxRows)
	rankings := s.cats.Assign(emitted)
	s.metrics.ScanDuration.WithLabelValues("rank").Observe(time.Since(start).Seconds())
	s.metrics.RowsEmitted.Set(float64(len(emitted)))

	start = time.Now()
	if err := s.deltas.Commit(ctx, rankings, snap.Timestamp); err != nil {
		log.Warn().Err(err).Msg("Delta publish failed")
	}
	s.metrics.ScanDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())

	s.publishEmitted(ctx, emitted, state, snap.Timestamp)
	s.archiver.Enqueue(snap.Timestamp, state.Session, emitted)
}

// publishEmitted refreshes the enriched snapshot key and the per-session
// completion marker other services poll.
func (s *Scanner) publishEmitted(ctx context.Context, rows []*models.EnrichedTicker, state models.SessionState, at time.Time) {
	if err := s.bus.SetJSON(ctx, bus.KeyEnrichedLatest, models.Ranking{
		AsOf: at.UnixMilli(),
		Rows: rows,
	}, bus.TTLSnapshot); err != nil {
		log.Warn().Err(err).Msg("Enriched snapshot write failed")
	}

	marker := map[string]any{
		"session":   string(state.Session),
		"at":        at.UnixMilli(),
		"row_count": len(rows),
	}
	if err := s.bus.SetJSON(ctx, bus.KeyFilteredComplete(string(state.Session)), marker, bus.TTLSnapshot); err != nil {
		log.Warn().Err(err).Msg("Filter completion marker write failed")
	}
}
