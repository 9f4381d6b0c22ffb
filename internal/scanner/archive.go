package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/models"
	"github.com/sawpanic/equityrun/internal/warehouse"
)

// archiveBatch is one cycle's emitted rows queued for the Warehouse.
type archiveBatch struct {
	at      time.Time
	session models.Session
	rows    []*models.EnrichedTicker
}

// Archiver persists emitted rows to scan_results off the hot path.
// The queue is bounded; when the Warehouse falls behind, batches are
// dropped with a warning rather than stalling the scan loop.
type Archiver struct {
	store *warehouse.Store
	ch    chan archiveBatch
}

// NewArchiver creates an archiver with a 64-batch queue.
func NewArchiver(store *warehouse.Store) *Archiver {
	return &Archiver{
		store: store,
		ch:    make(chan archiveBatch, 64),
	}
}

// Enqueue queues one cycle's rows. Non-blocking.
func (a *Archiver) Enqueue(at time.Time, session models.Session, rows []*models.EnrichedTicker) {
	if len(rows) == 0 {
		return
	}
	select {
	case a.ch <- archiveBatch{at: at, session: session, rows: rows}:
	default:
		log.Warn().Int("rows", len(rows)).Msg("Archive queue full, dropping batch")
	}
}

// Run drains the queue until the context ends, then flushes what is
// already queued.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return ctx.Err()
		case b := <-a.ch:
			a.write(b)
		}
	}
}

func (a *Archiver) drain() {
	for {
		select {
		case b := <-a.ch:
			a.write(b)
		default:
			return
		}
	}
}

func (a *Archiver) write(b archiveBatch) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.store.Results.InsertBatch(ctx, b.at, b.session, b.rows); err != nil {
		log.Warn().Err(err).Int("rows", len(b.rows)).Msg("Scan result archive failed")
	}
}
