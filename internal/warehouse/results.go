package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/equityrun/internal/models"
)

// ResultsRepo appends emitted scan rows to the scan_results hypertable.
// Writes happen off the hot path through a buffered archiver.
type ResultsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// InsertBatch appends one cycle's emitted rows.
func (r *ResultsRepo) InsertBatch(ctx context.Context, at time.Time, session models.Session, rows []*models.EnrichedTicker) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scan_results (time, symbol, session, price, volume,
			change_pct, rvol, score, rank)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		var rvol *float64
		if row.RVOL != nil {
			rvol = row.RVOL
		}
		if _, err := stmt.ExecContext(ctx, at, row.Symbol, string(session),
			row.Price, row.VolumeToday, row.ChangeTotal, rvol,
			row.Score, row.Rank); err != nil {
			return fmt.Errorf("failed to insert scan result %s: %w", row.Symbol, err)
		}
	}
	return tx.Commit()
}
