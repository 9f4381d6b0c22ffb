package analytics

import (
	"context"
	"encoding/json"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
)

// MinuteBarEngine consumes the minute stream and exposes each symbol's
// most recent closed bar. Batches are sized for burst tolerance: one
// group read of up to 15000 messages with a 2s block. When two bars
// arrive for the same (symbol, minute) the later one supersedes.
type MinuteBarEngine struct {
	bus     *bus.Bus
	metrics *metrics.Registry

	mu   sync.RWMutex
	bars map[string]models.MinuteBar

	batchTimes []time.Duration // ring of recent batch durations for p95
}

// NewMinuteBarEngine creates the engine.
func NewMinuteBarEngine(b *bus.Bus, m *metrics.Registry) *MinuteBarEngine {
	return &MinuteBarEngine{
		bus:     b,
		metrics: m,
		bars:    make(map[string]models.MinuteBar),
	}
}

const minuteGroup = "analytics:minutes"

// Run consumes until the context is cancelled.
func (e *MinuteBarEngine) Run(ctx context.Context) error {
	if err := e.bus.EnsureGroup(ctx, bus.StreamMinutes, minuteGroup); err != nil {
		return err
	}
	consumer := "minutebar-1"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := e.bus.ReadGroup(ctx, bus.StreamMinutes, minuteGroup, consumer, 15000, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Minute bar read failed")
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		start := time.Now()
		ids := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			ids = append(ids, msg.ID)
			raw, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var bar models.MinuteBar
			if err := json.Unmarshal([]byte(raw), &bar); err != nil || bar.Symbol == "" {
				continue
			}
			e.apply(bar)
		}
		if err := e.bus.Ack(ctx, bus.StreamMinutes, minuteGroup, ids...); err != nil {
			log.Warn().Err(err).Msg("Minute bar ack failed")
		}

		elapsed := time.Since(start)
		e.recordBatch(elapsed)
		if e.metrics != nil {
			e.metrics.BatchDuration.WithLabelValues("minutebar").Observe(elapsed.Seconds())
		}
	}
}

func (e *MinuteBarEngine) apply(bar models.MinuteBar) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.bars[bar.Symbol]
	// Later bar for the same minute supersedes; never step backwards.
	if !ok || bar.StartMS >= prev.StartMS {
		e.bars[bar.Symbol] = bar
	}
}

// LastClosedBar returns the most recent closed minute bar for a symbol.
func (e *MinuteBarEngine) LastClosedBar(symbol string) (models.MinuteBar, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bar, ok := e.bars[symbol]
	return bar, ok
}

// Reset drops all bars. Called on day change.
func (e *MinuteBarEngine) Reset() {
	e.mu.Lock()
	e.bars = make(map[string]models.MinuteBar)
	e.batchTimes = nil
	e.mu.Unlock()
}

func (e *MinuteBarEngine) recordBatch(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchTimes = append(e.batchTimes, d)
	if len(e.batchTimes) > 200 {
		e.batchTimes = e.batchTimes[len(e.batchTimes)-200:]
	}
}

// Stats reports p95 batch time and resident memory for health output.
func (e *MinuteBarEngine) Stats() map[string]any {
	e.mu.RLock()
	times := make([]time.Duration, len(e.batchTimes))
	copy(times, e.batchTimes)
	symbols := len(e.bars)
	e.mu.RUnlock()

	var p95 time.Duration
	if len(times) > 0 {
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		p95 = times[len(times)*95/100]
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"symbols":        symbols,
		"p95_batch_ms":   p95.Milliseconds(),
		"resident_bytes": mem.HeapInuse,
	}
}
