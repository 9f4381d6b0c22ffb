package maintain

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/config"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/polygon"
	"github.com/sawpanic/equityrun/internal/warehouse"
)

// task is one node of the nightly graph. Tasks run in declaration
// order; a failure is recorded and the graph continues, so one broken
// vendor endpoint never blocks the rest of the night's work.
type task struct {
	name string
	// skippedOnHoliday marks tasks that touch live caches or notify
	// downstream services; on a holiday run only data loading happens.
	skippedOnHoliday bool
	run              func(ctx context.Context, day time.Time) error
}

// Orchestrator runs the nightly maintenance graph and its schedule.
type Orchestrator struct {
	bus     *bus.Bus
	store   *warehouse.Store
	vendor  *polygon.Client
	metrics *metrics.Registry
	cfg     *config.Config
	loc     *time.Location

	tasks []task
}

// New builds the orchestrator and its task graph.
func New(b *bus.Bus, store *warehouse.Store, vendor *polygon.Client, m *metrics.Registry, cfg *config.Config) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Market.Timezone, err)
	}
	o := &Orchestrator{
		bus:     b,
		store:   store,
		vendor:  vendor,
		metrics: m,
		cfg:     cfg,
		loc:     loc,
	}
	o.tasks = []task{
		{name: "clear_caches", skippedOnHoliday: true, run: o.clearCaches},
		{name: "load_ohlc", run: o.loadOHLC},
		{name: "load_volume_slots", run: o.loadVolumeSlots},
		{name: "calculate_atr", run: o.calculateATR},
		{name: "calculate_rvol_averages", run: o.calculateRVOLAverages},
		{name: "calculate_trades_baselines", run: o.calculateTradesBaselines},
		{name: "sync_ticker_universe", run: o.syncTickerUniverse},
		{name: "enrich_metadata", run: o.enrichMetadata},
		{name: "reconcile_splits", run: o.reconcileSplits},
		{name: "reconcile_parquet_splits", run: o.reconcileParquetSplits},
		{name: "sync_earnings", run: o.syncEarnings},
		{name: "export_screener_metadata", run: o.exportScreenerMetadata},
		{name: "sync_redis", skippedOnHoliday: true, run: o.syncRedis},
		{name: "notify_services", skippedOnHoliday: true, run: o.notifyServices},
	}
	return o, nil
}

// RunForDate executes the full graph for one trading date. Each task's
// status lands in the per-day status hash as it happens, so an operator
// watching mid-run sees live progress. Returns whether every task
// succeeded.
func (o *Orchestrator) RunForDate(ctx context.Context, day time.Time) bool {
	date := day.Format("2006-01-02")
	statusKey := bus.KeyMaintenanceStatus(date)
	holiday := o.cfg.Maintain.HolidayMode

	log.Info().Str("date", date).Bool("holiday_mode", holiday).Msg("Maintenance run starting")
	o.setStatus(ctx, statusKey, "started_at", time.Now().Format(time.RFC3339))

	allSuccess := true
	for _, t := range o.tasks {
		if holiday && t.skippedOnHoliday {
			o.setStatus(ctx, statusKey, t.name, "skipped")
			continue
		}
		select {
		case <-ctx.Done():
			o.setStatus(ctx, statusKey, t.name, "aborted")
			return false
		default:
		}

		o.setStatus(ctx, statusKey, t.name, "running")
		start := time.Now()
		err := t.run(ctx, day)
		elapsed := time.Since(start)
		o.metrics.TaskDuration.WithLabelValues(t.name).Observe(elapsed.Seconds())

		if err != nil {
			allSuccess = false
			o.metrics.TaskOutcome.WithLabelValues(t.name, "failed").Inc()
			o.setStatus(ctx, statusKey, t.name, "failed: "+err.Error())
			log.Error().Err(err).Str("task", t.name).Dur("elapsed", elapsed).
				Msg("Maintenance task failed, continuing")
			continue
		}
		o.metrics.TaskOutcome.WithLabelValues(t.name, "success").Inc()
		o.setStatus(ctx, statusKey, t.name, fmt.Sprintf("success (%s)", elapsed.Round(time.Millisecond)))
		log.Info().Str("task", t.name).Dur("elapsed", elapsed).Msg("Maintenance task done")
	}

	o.setStatus(ctx, statusKey, "all_success", fmt.Sprintf("%t", allSuccess))
	o.setStatus(ctx, statusKey, "finished_at", time.Now().Format(time.RFC3339))
	if allSuccess {
		if err := o.bus.SetJSON(ctx, bus.KeyMaintenanceExecuted(date), time.Now(), bus.TTLMaintenance); err != nil {
			log.Warn().Err(err).Msg("Failed to mark maintenance executed")
		}
	}
	log.Info().Str("date", date).Bool("all_success", allSuccess).Msg("Maintenance run finished")
	return allSuccess
}

func (o *Orchestrator) setStatus(ctx context.Context, key, field, value string) {
	if err := o.bus.SetHash(ctx, key, map[string]string{field: value}, bus.TTLMaintenance); err != nil {
		log.Warn().Err(err).Str("field", field).Msg("Maintenance status write failed")
	}
}

// Recover runs the graph for recent weekdays whose run never completed,
// oldest first, so baselines catch up in order after downtime.
func (o *Orchestrator) Recover(ctx context.Context) {
	now := time.Now().In(o.loc)
	var pending []time.Time

	for back := o.cfg.Maintain.RecoveryLookback; back >= 1; back-- {
		day := now.AddDate(0, 0, -back)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		var executedAt time.Time
		ok, err := o.bus.GetJSON(ctx, bus.KeyMaintenanceExecuted(day.Format("2006-01-02")), &executedAt)
		if err != nil {
			log.Warn().Err(err).Msg("Recovery check failed")
			continue
		}
		if !ok {
			pending = append(pending, day)
		}
	}

	if len(pending) == 0 {
		log.Info().Msg("No pending maintenance runs to recover")
		return
	}
	log.Info().Int("days", len(pending)).Msg("Recovering missed maintenance runs")
	for _, day := range pending {
		if ctx.Err() != nil {
			return
		}
		o.RunForDate(ctx, day)
	}
}

// Schedule installs the nightly run on weekdays plus a pre-open cache
// clear, and blocks until the context ends.
func (o *Orchestrator) Schedule(ctx context.Context) error {
	c := cron.New(cron.WithLocation(o.loc))

	nightly := fmt.Sprintf("%d %d * * 1-5", o.cfg.Maintain.Minute, o.cfg.Maintain.Hour)
	if _, err := c.AddFunc(nightly, func() {
		o.RunForDate(ctx, time.Now().In(o.loc))
	}); err != nil {
		return fmt.Errorf("bad nightly schedule: %w", err)
	}

	// Pre-open clear wipes anything a failed overnight run left behind.
	if _, err := c.AddFunc("0 3 * * 1-5", func() {
		if err := o.clearCaches(ctx, time.Now().In(o.loc)); err != nil {
			log.Warn().Err(err).Msg("Pre-open cache clear failed")
		}
	}); err != nil {
		return fmt.Errorf("bad pre-open schedule: %w", err)
	}

	c.Start()
	defer c.Stop()
	log.Info().Str("nightly", nightly).Msg("Maintenance schedule installed")

	<-ctx.Done()
	return ctx.Err()
}
