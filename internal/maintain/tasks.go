package maintain

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/equityrun/internal/analytics"
	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/models"
)

// symbolConcurrency bounds the per-symbol vendor fan-out inside tasks.
const symbolConcurrency = 8

// clearCaches wipes the derived realtime keys so the next trading day
// starts from a clean slate, then announces the new day so realtime
// services drop their in-memory state too. Baseline hashes are rebuilt,
// not cleared.
func (o *Orchestrator) clearCaches(ctx context.Context, day time.Time) error {
	patterns := []string{
		"scanner:category:*",
		"scanner:sequence:*",
		"scanner:filtered_complete:*",
	}
	var total int
	for _, p := range patterns {
		n, err := o.bus.DeletePattern(ctx, p)
		if err != nil {
			return err
		}
		total += n
	}
	if err := o.bus.Delete(ctx, bus.KeyEnrichedLatest); err != nil {
		return err
	}
	if err := o.bus.PublishEvent(ctx, bus.ChannelNewDay, map[string]any{
		"date": day.Format("2006-01-02"),
	}); err != nil {
		return err
	}
	log.Info().Int("keys", total).Msg("Derived caches cleared")
	return nil
}

// loadOHLC pulls the grouped daily bars for the trading date into the
// Warehouse.
func (o *Orchestrator) loadOHLC(ctx context.Context, day time.Time) error {
	date := day.Format("2006-01-02")
	bars, err := o.vendor.GroupedDaily(ctx, date)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("vendor returned no daily bars for %s", date)
	}
	if err := o.store.Daily.UpsertBatch(ctx, bars); err != nil {
		return err
	}
	log.Info().Int("bars", len(bars)).Str("date", date).Msg("Daily bars loaded")
	return nil
}

// loadVolumeSlots pulls the day's 5-minute bars for every active symbol.
// The row count gates completeness: below the floor the task fails so
// the status hash shows a partial load.
func (o *Orchestrator) loadVolumeSlots(ctx context.Context, day time.Time) error {
	symbols, err := o.store.Tickers.ActiveSymbols(ctx)
	if err != nil {
		return err
	}
	date := day.Format("2006-01-02")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(symbolConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			slots, err := o.vendor.IntradayAggs(gctx, symbol, o.cfg.Market.SlotMinutes, date, date)
			if err != nil {
				// One symbol failing is noise at this scale.
				log.Debug().Err(err).Str("symbol", symbol).Msg("Slot fetch failed")
				return nil
			}
			return o.store.Slots.InsertBatch(gctx, slots)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	n, err := o.store.Slots.CountForDate(ctx, midnight(day))
	if err != nil {
		return err
	}
	if n < o.cfg.Maintain.MinSlotRows {
		return fmt.Errorf("slot load incomplete: %d rows, floor is %d", n, o.cfg.Maintain.MinSlotRows)
	}
	log.Info().Int("rows", n).Str("date", date).Msg("Volume slots loaded")
	return nil
}

// calculateATR rebuilds the per-symbol ATR hashes from daily bars.
func (o *Orchestrator) calculateATR(ctx context.Context, _ time.Time) error {
	symbols, err := o.store.Tickers.ActiveSymbols(ctx)
	if err != nil {
		return err
	}
	period := o.cfg.Scanner.ATRPeriod

	var written int64
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(symbolConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := o.store.Daily.RecentBars(gctx, symbol, period+1)
			if err != nil {
				return err
			}
			atr, pct, ok := analytics.ComputeATR(bars, period)
			if !ok {
				return nil
			}
			fields := map[string]string{
				"atr":         strconv.FormatFloat(atr, 'f', -1, 64),
				"atr_percent": strconv.FormatFloat(pct, 'f', -1, 64),
			}
			if err := o.bus.SetHash(gctx, bus.KeyATR(symbol), fields, bus.TTLATR); err != nil {
				return err
			}
			if err := o.bus.SetHash(gctx, bus.KeyATRDaily(symbol), fields, bus.TTLATR); err != nil {
				return err
			}
			mu.Lock()
			written++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Int64("symbols", written).Msg("ATR baselines rebuilt")
	return nil
}

// calculateRVOLAverages rebuilds the per-symbol slot-mean hashes that
// intraday RVOL divides against.
func (o *Orchestrator) calculateRVOLAverages(ctx context.Context, _ time.Time) error {
	baselines, err := o.store.Slots.SlotBaselines(ctx, o.cfg.Scanner.RVOLLookbackDays, o.cfg.Market.SlotMinutes)
	if err != nil {
		return err
	}

	bySymbol := make(map[string]map[string]string)
	for _, b := range baselines {
		if b.SlotIndex < 0 || b.Mean <= 0 {
			continue
		}
		fields, ok := bySymbol[b.Symbol]
		if !ok {
			fields = make(map[string]string)
			bySymbol[b.Symbol] = fields
		}
		fields[strconv.Itoa(b.SlotIndex)] = strconv.FormatFloat(b.Mean, 'f', -1, 64)
	}

	for symbol, fields := range bySymbol {
		if err := o.bus.SetHash(ctx, bus.KeyRVOLAverages(symbol), fields, bus.TTLRVOL); err != nil {
			return err
		}
	}
	log.Info().Int("symbols", len(bySymbol)).Msg("RVOL baselines rebuilt")
	return nil
}

// calculateTradesBaselines rebuilds the per-symbol trade-count mean and
// stdev hashes the anomaly detector scores against.
func (o *Orchestrator) calculateTradesBaselines(ctx context.Context, _ time.Time) error {
	symbols, err := o.store.Tickers.ActiveSymbols(ctx)
	if err != nil {
		return err
	}
	days := models.TradeBaselineDays

	var written int64
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(symbolConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			counts, err := o.store.Daily.DailyTradeCounts(gctx, symbol, days)
			if err != nil {
				return err
			}
			if len(counts) == 0 {
				return nil
			}
			mean, stdev := meanStdev(counts)
			fields := map[string]string{
				"avg":    strconv.FormatFloat(mean, 'f', -1, 64),
				"std":    strconv.FormatFloat(stdev, 'f', -1, 64),
				"sample": strconv.Itoa(len(counts)),
			}
			if err := o.bus.SetHash(gctx, bus.KeyTradeBaseline(symbol, days), fields, bus.TTLTradeBaseline); err != nil {
				return err
			}
			mu.Lock()
			written++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Int64("symbols", written).Msg("Trade baselines rebuilt")
	return nil
}

// syncTickerUniverse aligns the Warehouse universe with the vendor's:
// new symbols get a minimal record, departed ones are deactivated.
func (o *Orchestrator) syncTickerUniverse(ctx context.Context, _ time.Time) error {
	vendorSyms, err := o.vendor.ListTickers(ctx)
	if err != nil {
		return err
	}
	if len(vendorSyms) == 0 {
		return fmt.Errorf("vendor returned empty universe")
	}
	current, err := o.store.Tickers.ActiveSymbols(ctx)
	if err != nil {
		return err
	}

	vendorSet := make(map[string]struct{}, len(vendorSyms))
	for _, s := range vendorSyms {
		vendorSet[s] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, s := range current {
		currentSet[s] = struct{}{}
	}

	var added int
	for _, s := range vendorSyms {
		if _, ok := currentSet[s]; ok {
			continue
		}
		if err := o.store.Tickers.Upsert(ctx, models.TickerMetadata{
			Symbol:            s,
			IsActivelyTrading: true,
		}); err != nil {
			return err
		}
		added++
	}

	var departed []string
	for _, s := range current {
		if _, ok := vendorSet[s]; !ok {
			departed = append(departed, s)
		}
	}
	deactivated, err := o.store.Tickers.Deactivate(ctx, departed)
	if err != nil {
		return err
	}
	log.Info().Int("added", added).Int64("deactivated", deactivated).
		Int("universe", len(vendorSyms)).Msg("Ticker universe synced")
	return nil
}

// enrichMetadata refreshes reference records from the vendor and fills
// the average-volume columns from the Warehouse's own daily history.
func (o *Orchestrator) enrichMetadata(ctx context.Context, _ time.Time) error {
	symbols, err := o.store.Tickers.ActiveSymbols(ctx)
	if err != nil {
		return err
	}

	var refreshed int64
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(symbolConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			meta, err := o.vendor.TickerDetails(gctx, symbol)
			if err != nil {
				log.Debug().Err(err).Str("symbol", symbol).Msg("Details fetch failed")
				return nil
			}
			bars, err := o.store.Daily.RecentBars(gctx, symbol, 63)
			if err != nil {
				return err
			}
			meta.AvgVolume5D = avgVolume(bars, 5)
			meta.AvgVolume10D = avgVolume(bars, 10)
			meta.AvgVolume30D = avgVolume(bars, 30)
			meta.AvgVolume3M = avgVolume(bars, 63)
			if meta.FreeFloat == 0 {
				meta.FreeFloat = meta.SharesOutstanding
			}
			if err := o.store.Tickers.Upsert(gctx, *meta); err != nil {
				return err
			}
			mu.Lock()
			refreshed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Int64("symbols", refreshed).Msg("Metadata enriched")
	return nil
}

// reconcileSplits verifies recent splits against the Warehouse and
// reverse-adjusts history that the split has not reached yet. The
// Warehouse's own implied factor decides whether an adjustment is due;
// the vendor ratio is only the expectation.
func (o *Orchestrator) reconcileSplits(ctx context.Context, day time.Time) error {
	since := day.AddDate(0, 0, -7).Format("2006-01-02")
	splits, err := o.vendor.RecentSplits(ctx, since)
	if err != nil {
		return err
	}

	var adjusted int
	for _, s := range splits {
		ratio := s.Ratio()
		if ratio <= 0 {
			continue
		}
		execDay, err := time.Parse("2006-01-02", s.ExecutionDate)
		if err != nil {
			continue
		}

		implied, ok := o.impliedFactor(ctx, s.Symbol, execDay)
		if !ok {
			log.Debug().Str("symbol", s.Symbol).Msg("No bars around split, skipping")
			continue
		}
		if withinTolerance(implied, 1, factorUnityTolerance) {
			// History already adjusted.
			continue
		}
		// The implied factor is close-before over close-after, the
		// inverse of the vendor's price multiplier.
		if !withinTolerance(implied, 1/ratio, vendorRatioTolerance) {
			log.Warn().Str("symbol", s.Symbol).Float64("implied", implied).
				Float64("expected", 1/ratio).Msg("Split factor disagrees with vendor ratio")
		}

		n, err := o.store.Daily.AdjustForSplit(ctx, s.Symbol, execDay, implied)
		if err != nil {
			return err
		}
		adjusted++
		log.Info().Str("symbol", s.Symbol).Float64("factor", implied).
			Int64("rows", n).Msg("Split-adjusted daily history")
	}
	log.Info().Int("splits", len(splits)).Int("adjusted", adjusted).Msg("Splits reconciled")
	return nil
}

// impliedFactor derives the split factor from the Warehouse's own
// closes: the last pre-split close over the execution-day close.
func (o *Orchestrator) impliedFactor(ctx context.Context, symbol string, execDay time.Time) (float64, bool) {
	after, ok, err := o.store.Daily.CloseOn(ctx, symbol, midnight(execDay))
	if err != nil || !ok || after <= 0 {
		return 0, false
	}
	for back := 1; back <= 5; back++ {
		before, ok, err := o.store.Daily.CloseOn(ctx, symbol, midnight(execDay.AddDate(0, 0, -back)))
		if err != nil {
			return 0, false
		}
		if ok && before > 0 {
			return before / after, true
		}
	}
	return 0, false
}

// syncEarnings refreshes the earnings calendar for a one-week window
// either side of the trading date.
func (o *Orchestrator) syncEarnings(ctx context.Context, day time.Time) error {
	from := day.AddDate(0, 0, -7).Format("2006-01-02")
	to := day.AddDate(0, 0, 7).Format("2006-01-02")
	events, err := o.vendor.UpcomingEarnings(ctx, from, to)
	if err != nil {
		return err
	}
	if err := o.store.Earnings.UpsertBatch(ctx, events); err != nil {
		return err
	}
	log.Info().Int("events", len(events)).Msg("Earnings calendar synced")
	return nil
}

// screenerMetaRecord is one row of the nightly screener metadata export.
type screenerMetaRecord struct {
	Symbol            string  `parquet:"symbol,zstd"`
	CompanyName       string  `parquet:"company_name,zstd"`
	Exchange          string  `parquet:"exchange,zstd"`
	Sector            string  `parquet:"sector,zstd"`
	Industry          string  `parquet:"industry,zstd"`
	MarketCap         float64 `parquet:"market_cap,zstd"`
	SharesOutstanding float64 `parquet:"shares_outstanding,zstd"`
	FreeFloat         float64 `parquet:"free_float,zstd"`
	AvgVolume5D       float64 `parquet:"avg_volume_5d,zstd"`
	AvgVolume10D      float64 `parquet:"avg_volume_10d,zstd"`
	AvgVolume30D      float64 `parquet:"avg_volume_30d,zstd"`
	AvgVolume3M       float64 `parquet:"avg_volume_3m,zstd"`
	IsETF             bool    `parquet:"is_etf,zstd"`
}

// exportScreenerMetadata writes the active universe's metadata to a
// dated parquet file for the offline screener.
func (o *Orchestrator) exportScreenerMetadata(ctx context.Context, day time.Time) error {
	metas, err := o.store.Tickers.ListActive(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.cfg.Maintain.ExportDir, 0o755); err != nil {
		return err
	}

	records := make([]screenerMetaRecord, 0, len(metas))
	for i := range metas {
		m := &metas[i]
		records = append(records, screenerMetaRecord{
			Symbol:            m.Symbol,
			CompanyName:       m.CompanyName,
			Exchange:          m.Exchange,
			Sector:            m.Sector,
			Industry:          m.Industry,
			MarketCap:         m.MarketCap,
			SharesOutstanding: m.SharesOutstanding,
			FreeFloat:         m.FreeFloat,
			AvgVolume5D:       m.AvgVolume5D,
			AvgVolume10D:      m.AvgVolume10D,
			AvgVolume30D:      m.AvgVolume30D,
			AvgVolume3M:       m.AvgVolume3M,
			IsETF:             m.IsETF,
		})
	}

	path := filepath.Join(o.cfg.Maintain.ExportDir, fmt.Sprintf("metadata_%s.parquet", day.Format("2006-01-02")))
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	log.Info().Str("path", path).Int("symbols", len(records)).Msg("Screener metadata exported")
	return nil
}

// syncRedis mirrors the refreshed reference records and the universe
// set into the Bus for the hot path.
func (o *Orchestrator) syncRedis(ctx context.Context, _ time.Time) error {
	metas, err := o.store.Tickers.ListActive(ctx)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(metas))
	for i := range metas {
		m := &metas[i]
		symbols = append(symbols, m.Symbol)
		if err := o.bus.SetJSON(ctx, bus.KeyMetadata(m.Symbol), m, bus.TTLMetadata); err != nil {
			return err
		}
	}
	if err := o.bus.ReplaceSet(ctx, bus.KeyTickerUniverse, symbols, 0); err != nil {
		return err
	}
	log.Info().Int("symbols", len(symbols)).Msg("Metadata mirrored to bus")
	return nil
}

// notifyServices announces the finished run so realtime services reload
// their baselines.
func (o *Orchestrator) notifyServices(ctx context.Context, day time.Time) error {
	return o.bus.PublishEvent(ctx, bus.ChannelMaintenanceCompleted, map[string]any{
		"date": day.Format("2006-01-02"),
		"at":   time.Now().UnixMilli(),
	})
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func meanStdev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}

func avgVolume(bars []models.DailyBar, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if n > len(bars) {
		n = len(bars)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += bars[i].Volume
	}
	return sum / float64(n)
}
