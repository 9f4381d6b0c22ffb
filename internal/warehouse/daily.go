package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/equityrun/internal/models"
)

// DailyRepo manages market_data_daily, the split-adjusted source of
// truth for daily OHLCV.
type DailyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// UpsertBatch writes a day's bars idempotently; re-running the loader
// for a completed day changes nothing.
func (r *DailyRepo) UpsertBatch(ctx context.Context, bars []models.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(bars)/1000+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_data_daily (symbol, trading_date, open, high, low, close, volume)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (symbol, trading_date) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high,
			low = EXCLUDED.low, close = EXCLUDED.close,
			volume = EXCLUDED.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare daily upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.TradingDate,
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to upsert daily bar %s: %w", b.Symbol, err)
		}
	}
	return tx.Commit()
}

// CountForDate reports how many bars exist for a trading date.
func (r *DailyRepo) CountForDate(ctx context.Context, date time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM market_data_daily WHERE trading_date = $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to count daily bars: %w", err)
	}
	return n, nil
}

// RecentBars returns the last n daily bars for a symbol, newest first.
func (r *DailyRepo) RecentBars(ctx context.Context, symbol string, n int) ([]models.DailyBar, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.DailyBar
	err := r.db.SelectContext(ctx, &out, `
		SELECT symbol, trading_date, open, high, low, close, volume
		FROM market_data_daily
		WHERE symbol = $1
		ORDER BY trading_date DESC
		LIMIT $2`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent bars for %s: %w", symbol, err)
	}
	return out, nil
}

// CloseOn returns the close for a symbol on a given date; false when
// no bar exists.
func (r *DailyRepo) CloseOn(ctx context.Context, symbol string, date time.Time) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var c float64
	err := r.db.GetContext(ctx, &c, `
		SELECT close FROM market_data_daily
		WHERE symbol = $1 AND trading_date = $2`, symbol, date)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load close for %s: %w", symbol, err)
	}
	return c, true, nil
}

// AdjustForSplit reverse-adjusts rows predating a split: price fields
// divided by the ratio, volume multiplied, so history stays comparable
// with post-split quotes.
func (r *DailyRepo) AdjustForSplit(ctx context.Context, symbol string, before time.Time, ratio float64) (int64, error) {
	if ratio <= 0 {
		return 0, fmt.Errorf("invalid split ratio %f", ratio)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE market_data_daily
		SET open = open / $3, high = high / $3, low = low / $3,
		    close = close / $3, volume = volume * $3
		WHERE symbol = $1 AND trading_date < $2`, symbol, before, ratio)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust %s for split: %w", symbol, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DailyTradeCounts returns the last n days of per-day trade counts for a
// symbol, computed from the 5-minute slot table, newest first.
func (r *DailyRepo) DailyTradeCounts(ctx context.Context, symbol string, n int) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []float64
	err := r.db.SelectContext(ctx, &out, `
		SELECT SUM(trades_count)::float8
		FROM volume_slots
		WHERE symbol = $1
		GROUP BY trading_date
		ORDER BY trading_date DESC
		LIMIT $2`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade counts for %s: %w", symbol, err)
	}
	return out, nil
}
