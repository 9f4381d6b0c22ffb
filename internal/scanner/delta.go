package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
)

// DeltaEngine turns successive per-category rankings into incremental
// batches. It is the single writer of scanner:category:* and
// scanner:sequence:*. Sequences are monotonic per category; a consumer
// that sees a gap re-reads the full ranking key.
type DeltaEngine struct {
	bus     *bus.Bus
	metrics *metrics.Registry

	prev map[models.Category][]*models.EnrichedTicker
	seq  map[models.Category]uint64
}

// NewDeltaEngine creates an engine with empty previous state: the first
// tick for every category emits a full snapshot batch.
func NewDeltaEngine(b *bus.Bus, m *metrics.Registry) *DeltaEngine {
	return &DeltaEngine{
		bus:     b,
		metrics: m,
		prev:    make(map[models.Category][]*models.EnrichedTicker),
		seq:     make(map[models.Category]uint64),
	}
}

// RestoreSequences re-reads persisted sequence numbers so a restart
// continues the numbering instead of rewinding it.
func (d *DeltaEngine) RestoreSequences(ctx context.Context) {
	for _, cat := range models.AllCategories {
		var seq uint64
		ok, err := d.bus.GetJSON(ctx, bus.KeySequence(string(cat)), &seq)
		if err != nil {
			log.Warn().Err(err).Str("category", string(cat)).Msg("Sequence restore failed")
			continue
		}
		if ok {
			d.seq[cat] = seq
		}
	}
}

// Commit diffs the new rankings against the previous tick, publishes one
// batch per changed category and refreshes the full ranking keys. The
// diff itself is pure; republishing the same input yields the same
// records with only the sequence advanced.
func (d *DeltaEngine) Commit(ctx context.Context, rankings map[models.Category][]*models.EnrichedTicker, now time.Time) error {
	var firstErr error
	for _, cat := range models.AllCategories {
		rows := rankings[cat]
		records := Diff(d.prev[cat], rows)
		d.prev[cat] = rows

		if d.metrics != nil {
			d.metrics.CategorySize.WithLabelValues(string(cat)).Set(float64(len(rows)))
		}
		if len(records) == 0 {
			continue
		}

		d.seq[cat]++
		batch := models.DeltaBatch{
			ID:        uuid.NewString(),
			Category:  cat,
			Sequence:  d.seq[cat],
			Timestamp: now,
			Records:   records,
		}
		if err := d.publish(ctx, &batch, rows, now); err != nil && firstErr == nil {
			firstErr = err
		}
		if d.metrics != nil {
			for _, rec := range records {
				d.metrics.DeltaRecords.WithLabelValues(string(cat), string(rec.Type)).Inc()
			}
		}
	}
	return firstErr
}

func (d *DeltaEngine) publish(ctx context.Context, batch *models.DeltaBatch, rows []*models.EnrichedTicker, now time.Time) error {
	name := string(batch.Category)

	ranking := models.Ranking{
		Category: batch.Category,
		Sequence: batch.Sequence,
		AsOf:     now.UnixMilli(),
		Rows:     rows,
	}
	if err := d.bus.SetJSON(ctx, bus.KeyCategory(name), ranking, 0); err != nil {
		return fmt.Errorf("write ranking %s: %w", name, err)
	}
	if err := d.bus.SetJSON(ctx, bus.KeySequence(name), batch.Sequence, 0); err != nil {
		return fmt.Errorf("write sequence %s: %w", name, err)
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch %s: %w", name, err)
	}
	if _, err := d.bus.Publish(ctx, bus.StreamRankingDeltas, map[string]any{
		"category": name,
		"seq":      batch.Sequence,
		"data":     string(data),
	}, bus.MaxLenDeltas); err != nil {
		return err
	}
	return nil
}

// Diff computes the records turning prev into next. Record order is
// fixed: removes, then adds, then reranks, then updates, so a consumer
// applying them in order never holds a duplicate symbol. An empty prev
// yields a single snapshot record carrying the full ranking.
func Diff(prev, next []*models.EnrichedTicker) []models.DeltaRecord {
	if len(prev) == 0 && len(next) == 0 {
		return nil
	}
	if len(prev) == 0 {
		return []models.DeltaRecord{{Type: models.DeltaSnapshot, Rows: next}}
	}

	prevBy := make(map[string]*models.EnrichedTicker, len(prev))
	for _, r := range prev {
		prevBy[r.Symbol] = r
	}
	nextBy := make(map[string]*models.EnrichedTicker, len(next))
	for _, r := range next {
		nextBy[r.Symbol] = r
	}

	var removes, adds, reranks, updates []models.DeltaRecord

	for _, old := range prev {
		if _, ok := nextBy[old.Symbol]; !ok {
			removes = append(removes, models.DeltaRecord{
				Type:   models.DeltaRemove,
				Symbol: old.Symbol,
			})
		}
	}

	for _, row := range next {
		old, ok := prevBy[row.Symbol]
		if !ok {
			adds = append(adds, models.DeltaRecord{
				Type:   models.DeltaAdd,
				Symbol: row.Symbol,
				Rank:   row.Rank,
				Data:   row,
			})
			continue
		}
		if old.Rank != row.Rank {
			reranks = append(reranks, models.DeltaRecord{
				Type:    models.DeltaRerank,
				Symbol:  row.Symbol,
				OldRank: old.Rank,
				NewRank: row.Rank,
			})
		}
		if materiallyChanged(old, row) {
			updates = append(updates, models.DeltaRecord{
				Type:   models.DeltaUpdate,
				Symbol: row.Symbol,
				Rank:   row.Rank,
				Data:   row,
			})
		}
	}

	records := make([]models.DeltaRecord, 0, len(removes)+len(adds)+len(reranks)+len(updates))
	records = append(records, removes...)
	records = append(records, adds...)
	records = append(records, reranks...)
	records = append(records, updates...)
	return records
}

// materiallyChanged reports whether any watched field moved past its
// threshold. A rank move alone does not make a row an update.
func materiallyChanged(old, now *models.EnrichedTicker) bool {
	if absf(now.Price-old.Price) >= models.UpdatePriceThreshold {
		return true
	}
	if absf(now.VolumeToday-old.VolumeToday) >= models.UpdateVolumeThreshold {
		return true
	}
	if absf(now.ChangeTotal-old.ChangeTotal) >= models.UpdateChangeThreshold {
		return true
	}
	oldR, newR := floatOrZero(old.RVOL), floatOrZero(now.RVOL)
	return absf(newR-oldR) >= models.UpdateRVOLThreshold
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
