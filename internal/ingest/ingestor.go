package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
	"github.com/sawpanic/equityrun/internal/polygon"
)

// maxRateLimitBackoff caps the pause between fetches after vendor 429s.
const maxRateLimitBackoff = 30 * time.Second

// rateLimitBackoff is the pause after the nth consecutive vendor 429:
// doubling from one second, capped at maxRateLimitBackoff.
func rateLimitBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxRateLimitBackoff
	}
	d := time.Second << uint(attempt-1)
	if d > maxRateLimitBackoff {
		d = maxRateLimitBackoff
	}
	return d
}

// Ingestor pulls the full-market snapshot on a cadence, gates rows
// through admission, and publishes the survivors as the single-slot
// latest snapshot plus a capped raw stream entry. It is the only writer
// of snapshot:polygon:latest.
type Ingestor struct {
	vendor   *polygon.Client
	bus      *bus.Bus
	metrics  *metrics.Registry
	interval time.Duration
}

// New wires the ingestor.
func New(vendor *polygon.Client, b *bus.Bus, m *metrics.Registry, interval time.Duration) *Ingestor {
	return &Ingestor{vendor: vendor, bus: b, metrics: m, interval: interval}
}

// Run fetches and publishes until the context ends. Consecutive
// rate-limited fetches pause the loop with a growing backoff; other
// failures retry on the next tick with the previous snapshot still live
// under its TTL.
func (i *Ingestor) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	var rateLimited int
	i.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if i.tick(ctx) != errBackoff {
				rateLimited = 0
				continue
			}
			rateLimited++
			pause := rateLimitBackoff(rateLimited)
			log.Warn().Int("consecutive", rateLimited).Dur("backoff", pause).
				Msg("Vendor rate limited, pausing snapshot fetch")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
	}
}

var errBackoff = errors.New("backoff requested")

func (i *Ingestor) tick(ctx context.Context) error {
	res, err := i.vendor.FullMarketSnapshot(ctx)
	if err != nil {
		if errors.Is(err, polygon.ErrRateLimited) {
			i.metrics.SnapshotFetches.WithLabelValues("rate_limited").Inc()
			return errBackoff
		}
		log.Warn().Err(err).Msg("Snapshot fetch failed")
		i.metrics.SnapshotFetches.WithLabelValues("error").Inc()
		return err
	}
	i.metrics.SnapshotFetches.WithLabelValues("ok").Inc()

	snap := i.admit(res)
	if len(snap.Tickers) == 0 {
		log.Warn().Int("total", res.Total).Msg("No admissible rows in snapshot")
		return nil
	}

	if err := i.bus.SetJSON(ctx, bus.KeySnapshotLatest, snap, bus.TTLSnapshot); err != nil {
		log.Error().Err(err).Msg("Snapshot publish failed")
		return err
	}
	i.metrics.SnapshotRowCount.Set(float64(len(snap.Tickers)))

	i.publishRaw(ctx, snap)

	log.Debug().Int("rows", len(snap.Tickers)).
		Int("dropped", res.Total-len(snap.Tickers)).
		Msg("Snapshot published")
	return nil
}

// admit applies the ingestion gate to every parsed row.
func (i *Ingestor) admit(res *polygon.SnapshotResult) *models.MarketSnapshot {
	snap := &models.MarketSnapshot{
		Timestamp: res.FetchedAt,
		Tickers:   make([]models.SnapshotTicker, 0, len(res.Tickers)),
	}
	for idx := range res.Tickers {
		t := &res.Tickers[idx]
		if !t.Admissible() {
			i.metrics.RowsDropped.WithLabelValues("inadmissible").Inc()
			continue
		}
		snap.Tickers = append(snap.Tickers, *t)
		i.metrics.RowsIngested.Inc()
	}
	if res.Malformed > 0 {
		i.metrics.RowsDropped.WithLabelValues("malformed").Add(float64(res.Malformed))
	}
	snap.Count = len(snap.Tickers)
	return snap
}

// publishRaw mirrors the snapshot onto the capped raw stream for
// consumers that want history rather than just the latest slot.
func (i *Ingestor) publishRaw(ctx context.Context, snap *models.MarketSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if _, err := i.bus.Publish(ctx, bus.StreamRawSnapshots, map[string]any{
		"at":    snap.Timestamp.UnixMilli(),
		"count": snap.Count,
		"data":  string(data),
	}, bus.MaxLenRawSnapshots); err != nil {
		log.Warn().Err(err).Msg("Raw snapshot stream publish failed")
	}
}
