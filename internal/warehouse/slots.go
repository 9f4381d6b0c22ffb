package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/equityrun/internal/models"
)

// SlotsRepo manages volume_slots, the 5-minute accumulated-volume table
// the RVOL baselines are built from.
type SlotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// InsertBatch writes slot rows idempotently on the compound key.
func (r *SlotsRepo) InsertBatch(ctx context.Context, slots []models.VolumeSlot) error {
	if len(slots) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(slots)/5000+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO volume_slots (trading_date, symbol, slot_time,
			open, high, low, close, volume, vwap, trades_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (trading_date, symbol, slot_time) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare slot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range slots {
		if _, err := stmt.ExecContext(ctx, s.TradingDate, s.Symbol, s.SlotTime,
			s.Open, s.High, s.Low, s.Close, s.Volume, s.VWAP, s.TradesCount); err != nil {
			return fmt.Errorf("failed to insert slot %s@%s: %w", s.Symbol, s.SlotTime, err)
		}
	}
	return tx.Commit()
}

// CountForDate reports rows loaded for a trading date. Used as the
// completeness gate for the nightly load.
func (r *SlotsRepo) CountForDate(ctx context.Context, date time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM volume_slots WHERE trading_date = $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to count slots: %w", err)
	}
	return n, nil
}

// SlotBaseline is the nightly mean/stdev of accumulated volume for one
// (symbol, slot index).
type SlotBaseline struct {
	Symbol    string  `db:"symbol"`
	SlotIndex int     `db:"slot_index"`
	Mean      float64 `db:"mean"`
	Stdev     float64 `db:"stdev"`
	Sample    int     `db:"sample"`
}

// SlotBaselines computes, per (symbol, slot index), the mean and stdev
// of accumulated volume over the last lookback trading days. The slot
// index counts slotMinutes buckets from 04:00 exchange time.
func (r *SlotsRepo) SlotBaselines(ctx context.Context, lookback, slotMinutes int) ([]SlotBaseline, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var out []SlotBaseline
	err := r.db.SelectContext(ctx, &out, `
		WITH recent AS (
			SELECT DISTINCT trading_date FROM volume_slots
			ORDER BY trading_date DESC LIMIT $1
		)
		SELECT symbol,
		       ((EXTRACT(HOUR FROM slot_time)::int * 60 +
		         EXTRACT(MINUTE FROM slot_time)::int) - 240) / $2 AS slot_index,
		       AVG(volume)::float8 AS mean,
		       COALESCE(STDDEV_SAMP(volume), 0)::float8 AS stdev,
		       COUNT(*)::int AS sample
		FROM volume_slots
		WHERE trading_date IN (SELECT trading_date FROM recent)
		GROUP BY symbol, slot_index
		ORDER BY symbol, slot_index`, lookback, slotMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to compute slot baselines: %w", err)
	}
	return out, nil
}
