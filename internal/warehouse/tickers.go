package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/equityrun/internal/models"
)

// TickersRepo manages the tickers_unified reference table.
type TickersRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// ListActive returns every actively trading symbol's metadata.
func (r *TickersRepo) ListActive(ctx context.Context) ([]models.TickerMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.TickerMetadata
	err := r.db.SelectContext(ctx, &out, `
		SELECT symbol, company_name, exchange, sector, industry,
		       market_cap, shares_outstanding, free_float,
		       avg_volume_3m, avg_volume_5d, avg_volume_10d, avg_volume_30d,
		       beta, is_etf, is_actively_trading, updated_at
		FROM tickers_unified
		WHERE is_actively_trading = true
		ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tickers: %w", err)
	}
	return out, nil
}

// ActiveSymbols returns just the symbols of the active universe.
func (r *TickersRepo) ActiveSymbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []string
	err := r.db.SelectContext(ctx, &out, `
		SELECT symbol FROM tickers_unified
		WHERE is_actively_trading = true ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active symbols: %w", err)
	}
	return out, nil
}

// Upsert inserts or updates one reference record.
func (r *TickersRepo) Upsert(ctx context.Context, m models.TickerMetadata) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickers_unified (
			symbol, company_name, exchange, sector, industry,
			market_cap, shares_outstanding, free_float,
			avg_volume_3m, avg_volume_5d, avg_volume_10d, avg_volume_30d,
			beta, is_etf, is_actively_trading, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			exchange = EXCLUDED.exchange,
			sector = EXCLUDED.sector,
			industry = EXCLUDED.industry,
			market_cap = EXCLUDED.market_cap,
			shares_outstanding = EXCLUDED.shares_outstanding,
			free_float = EXCLUDED.free_float,
			avg_volume_3m = EXCLUDED.avg_volume_3m,
			avg_volume_5d = EXCLUDED.avg_volume_5d,
			avg_volume_10d = EXCLUDED.avg_volume_10d,
			avg_volume_30d = EXCLUDED.avg_volume_30d,
			beta = EXCLUDED.beta,
			is_etf = EXCLUDED.is_etf,
			is_actively_trading = EXCLUDED.is_actively_trading,
			updated_at = NOW()`,
		m.Symbol, m.CompanyName, m.Exchange, m.Sector, m.Industry,
		m.MarketCap, m.SharesOutstanding, m.FreeFloat,
		m.AvgVolume3M, m.AvgVolume5D, m.AvgVolume10D, m.AvgVolume30D,
		m.Beta, m.IsETF, m.IsActivelyTrading)
	if err != nil {
		return fmt.Errorf("failed to upsert ticker %s: %w", m.Symbol, err)
	}
	return nil
}

// Deactivate marks symbols that left the vendor universe.
func (r *TickersRepo) Deactivate(ctx context.Context, symbols []string) (int64, error) {
	if len(symbols) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE tickers_unified SET is_actively_trading = false, updated_at = NOW()
		WHERE symbol = ANY($1) AND is_actively_trading = true`,
		pq.Array(symbols))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate tickers: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
