package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/equityrun/internal/models"
)

// EarningsRepo manages earnings_calendar.
type EarningsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// UpsertBatch writes earnings events idempotently.
func (r *EarningsRepo) UpsertBatch(ctx context.Context, events []models.EarningsEvent) error {
	if len(events) == 0 {
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
		INSERT INTO earnings_calendar (symbol, report_date, time_slot,
			fiscal_quarter, eps_estimate, eps_actual,
			revenue_estimate, revenue_actual, source, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (symbol, report_date) DO UPDATE SET
			time_slot = EXCLUDED.time_slot,
			fiscal_quarter = EXCLUDED.fiscal_quarter,
			eps_estimate = EXCLUDED.eps_estimate,
			eps_actual = EXCLUDED.eps_actual,
			revenue_estimate = EXCLUDED.revenue_estimate,
			revenue_actual = EXCLUDED.revenue_actual,
			source = EXCLUDED.source,
			confidence = EXCLUDED.confidence`)
	if err != nil {
		return fmt.Errorf("failed to prepare earnings upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.Symbol, e.ReportDate, e.TimeSlot,
			e.FiscalQuarter, e.EPSEstimate, e.EPSActual,
			e.RevenueEstimate, e.RevenueActual, e.Source, e.Confidence); err != nil {
			return fmt.Errorf("failed to upsert earnings %s: %w", e.Symbol, err)
		}
	}
	return tx.Commit()
}

// UpcomingWindow returns events with report dates inside ±days of now.
func (r *EarningsRepo) UpcomingWindow(ctx context.Context, days int) ([]models.EarningsEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []models.EarningsEvent
	err := r.db.SelectContext(ctx, &out, `
		SELECT symbol, report_date, time_slot, fiscal_quarter,
		       eps_estimate, eps_actual, revenue_estimate, revenue_actual,
		       source, confidence
		FROM earnings_calendar
		WHERE report_date BETWEEN CURRENT_DATE - $1::int AND CURRENT_DATE + $1::int
		ORDER BY report_date, symbol`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to load earnings window: %w", err)
	}
	return out, nil
}
