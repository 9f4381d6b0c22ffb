package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store bundles the repositories over the time-series warehouse.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration

	Tickers  *TickersRepo
	Daily    *DailyRepo
	Slots    *SlotsRepo
	Filters  *FiltersRepo
	Results  *ResultsRepo
	Earnings *EarningsRepo
}

// Open connects to the warehouse and pings it.
func Open(ctx context.Context, url string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("warehouse ping failed: %w", err)
	}

	s := &Store{db: db, timeout: timeout}
	s.Tickers = &TickersRepo{db: db, timeout: timeout}
	s.Daily = &DailyRepo{db: db, timeout: timeout}
	s.Slots = &SlotsRepo{db: db, timeout: timeout}
	s.Filters = &FiltersRepo{db: db, timeout: timeout}
	s.Results = &ResultsRepo{db: db, timeout: timeout}
	s.Earnings = &EarningsRepo{db: db, timeout: timeout}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Healthy pings the warehouse with a short deadline.
func (s *Store) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}
