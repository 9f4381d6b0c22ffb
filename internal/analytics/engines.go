package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
)

// Engines bundles the in-memory rolling trackers fed from the realtime
// streams. Each consumer runs in its own goroutine with its own group;
// a day-changed event drops all working state before the next message.
type Engines struct {
	VWAP      *VWAPCache
	Volume    *VolumeWindows
	Price     *PriceWindows
	MinuteBar *MinuteBarEngine
	RVOL      *RVOLCalculator
	ATR       *ATRCache
	Anomaly   *TradeAnomalyDetector
	Gaps      *GapTracker

	bus     *bus.Bus
	metrics *metrics.Registry
}

// NewEngines wires all engines against the Bus.
func NewEngines(b *bus.Bus, m *metrics.Registry, baselineDays int, anomalyThreshold float64) *Engines {
	return &Engines{
		VWAP:      NewVWAPCache(),
		Volume:    NewVolumeWindows(),
		Price:     NewPriceWindows(),
		MinuteBar: NewMinuteBarEngine(b, m),
		RVOL:      NewRVOLCalculator(b),
		ATR:       NewATRCache(b),
		Anomaly:   NewTradeAnomalyDetector(b, baselineDays, anomalyThreshold),
		Gaps:      NewGapTracker(),
		bus:       b,
		metrics:   m,
	}
}

const aggregateGroup = "analytics:aggregates"

// RunAggregateConsumer feeds the VWAP cache and the volume/price window
// trackers from the per-second aggregate stream.
func (e *Engines) RunAggregateConsumer(ctx context.Context) error {
	if err := e.bus.EnsureGroup(ctx, bus.StreamAggregates, aggregateGroup); err != nil {
		return err
	}
	consumer := "aggregates-1"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := e.bus.ReadGroup(ctx, bus.StreamAggregates, aggregateGroup, consumer, 5000, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Aggregate read failed")
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
			var agg models.SecondAggregate
			if err := json.Unmarshal([]byte(raw), &agg); err != nil || agg.Symbol == "" {
				continue
			}
			e.VWAP.Update(agg.Symbol, agg.DayVWAP)
			if agg.AccumVolume > 0 {
				e.Volume.Observe(agg.Symbol, agg.EndMS, agg.AccumVolume)
			}
			if agg.Close > 0 {
				e.Price.Observe(agg.Symbol, agg.EndMS, agg.Close)
			}
		}
		if err := e.bus.Ack(ctx, bus.StreamAggregates, aggregateGroup, ids...); err != nil {
			log.Warn().Err(err).Msg("Aggregate ack failed")
		}
		if e.metrics != nil {
			e.metrics.BatchDuration.WithLabelValues("aggregates").Observe(time.Since(start).Seconds())
		}
	}
}

// WatchBacklog periodically reports consumer-group backlogs and logs
// when a group falls behind its alert threshold.
func (e *Engines) WatchBacklog(ctx context.Context, threshold int64) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	groups := map[string]string{
		aggregateGroup: bus.StreamAggregates,
		minuteGroup:    bus.StreamMinutes,
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for group, stream := range groups {
				n, err := e.bus.Backlog(ctx, stream, group)
				if err != nil {
					continue
				}
				if e.metrics != nil {
					e.metrics.ConsumerBacklog.WithLabelValues(group).Set(float64(n))
				}
				if n > threshold {
					log.Warn().Str("group", group).Int64("backlog", n).
						Msg("Consumer backlog above threshold")
				}
			}
		}
	}
}

// WatchDayChange subscribes to the new-day channel and resets every
// engine's in-day state on receipt. Baselines in the Bus are untouched;
// engines re-read them lazily after the nightly refresh.
func (e *Engines) WatchDayChange(ctx context.Context) {
	sub := e.bus.SubscribeEvents(ctx, bus.ChannelNewDay)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			log.Info().Str("payload", msg.Payload).Msg("Day change received, resetting engines")
			e.ResetDay()
		}
	}
}

// ResetDay drops all rolling in-day state across engines.
func (e *Engines) ResetDay() {
	e.VWAP.Reset()
	e.Volume.Reset()
	e.Price.Reset()
	e.MinuteBar.Reset()
	e.RVOL.Reset()
	e.ATR.Reset()
	e.Anomaly.Reset()
	e.Gaps.Reset()
}
