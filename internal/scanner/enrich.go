package scanner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/analytics"
	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
)

// metadataBatchSize bounds one MGET round trip.
const metadataBatchSize = 1000

// Enricher joins raw snapshot rows with reference metadata and the
// realtime analytics engines. Output rows live for one cycle.
type Enricher struct {
	bus         *bus.Bus
	engines     *analytics.Engines
	metrics     *metrics.Registry
	loc         *time.Location
	slotMinutes int

	metaCache *expirable.LRU[string, *models.TickerMetadata]
}

// NewEnricher builds an enricher with an expiring metadata LRU in front
// of the Bus mirror.
func NewEnricher(b *bus.Bus, engines *analytics.Engines, m *metrics.Registry, loc *time.Location, slotMinutes, cacheSize int, cacheTTL time.Duration) *Enricher {
	return &Enricher{
		bus:         b,
		engines:     engines,
		metrics:     m,
		loc:         loc,
		slotMinutes: slotMinutes,
		metaCache:   expirable.NewLRU[string, *models.TickerMetadata](cacheSize, nil, cacheTTL),
	}
}

// Enrich deduplicates the snapshot (first occurrence wins), joins
// metadata in MGET batches and attaches the analytics fields. Missing
// analytics inputs stay nil; a row is never dropped for lacking them.
func (e *Enricher) Enrich(ctx context.Context, snap *models.MarketSnapshot, state models.SessionState) []*models.EnrichedTicker {
	seen := make(map[string]struct{}, len(snap.Tickers))
	rows := make([]*models.EnrichedTicker, 0, len(snap.Tickers))
	var missing []string

	for i := range snap.Tickers {
		t := &snap.Tickers[i]
		if _, dup := seen[t.Ticker]; dup {
			continue
		}
		seen[t.Ticker] = struct{}{}

		row := e.baseRow(t, snap.Timestamp, state.Session)
		if meta, ok := e.metaCache.Get(t.Ticker); ok {
			row.Meta = meta
			if e.metrics != nil {
				e.metrics.CacheHits.WithLabelValues("metadata").Inc()
			}
		} else {
			missing = append(missing, t.Ticker)
		}
		rows = append(rows, row)
	}

	e.fillMetadata(ctx, rows, missing)

	slot := analytics.SlotIndex(snap.Timestamp.In(e.loc), e.slotMinutes)
	for _, row := range rows {
		e.attachAnalytics(ctx, row, slot, state)
	}
	return rows
}

func (e *Enricher) baseRow(t *models.SnapshotTicker, at time.Time, session models.Session) *models.EnrichedTicker {
	return &models.EnrichedTicker{
		Symbol:       t.Ticker,
		SnapshotAt:   at,
		Session:      session,
		Price:        t.CurrentPrice(),
		DayOpen:      t.Day.Open,
		DayHigh:      t.Day.High,
		DayLow:       t.Day.Low,
		DayClose:     t.Day.Close,
		VolumeToday:  t.Day.Volume,
		PrevClose:    t.PrevDay.Close,
		PrevVolume:   t.PrevDay.Volume,
		TradesToday:  t.Day.Trades,
		BidPrice:     t.LastQuote.BidPrice,
		AskPrice:     t.LastQuote.AskPrice,
		BidSize:      t.LastQuote.BidSize,
		AskSize:      t.LastQuote.AskSize,
		ChangeTotal:  t.TodaysChangePerc,
		MinuteVolume: t.Min.Volume,
		IntradayHigh: t.Day.High,
		IntradayLow:  t.Day.Low,
	}
}

// fillMetadata resolves cache misses against the Bus mirror in batches.
// Symbols with no mirror entry keep a nil Meta; the next cycle retries.
func (e *Enricher) fillMetadata(ctx context.Context, rows []*models.EnrichedTicker, missing []string) {
	if len(missing) == 0 {
		return
	}
	bysym := make(map[string]*models.EnrichedTicker, len(rows))
	for _, r := range rows {
		bysym[r.Symbol] = r
	}

	for start := 0; start < len(missing); start += metadataBatchSize {
		end := start + metadataBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		keys := make([]string, len(batch))
		for i, sym := range batch {
			keys[i] = bus.KeyMetadata(sym)
		}

		vals, err := e.bus.MGetRaw(ctx, keys)
		if err != nil {
			log.Warn().Err(err).Int("batch", len(batch)).Msg("Metadata batch fetch failed")
			return
		}
		for i, raw := range vals {
			if e.metrics != nil {
				e.metrics.CacheMisses.WithLabelValues("metadata").Inc()
			}
			if raw == nil {
				continue
			}
			var meta models.TickerMetadata
			if err := json.Unmarshal(raw, &meta); err != nil {
				continue
			}
			e.metaCache.Add(batch[i], &meta)
			if row := bysym[batch[i]]; row != nil {
				row.Meta = &meta
			}
		}
	}
}

func (e *Enricher) attachAnalytics(ctx context.Context, row *models.EnrichedTicker, slot int, state models.SessionState) {
	eng := e.engines

	if vwap, ok := eng.VWAP.Get(row.Symbol); ok {
		row.VWAP = models.Float64(vwap)
	}
	row.Volume5Min = eng.Volume.Vol5Min(row.Symbol)
	row.Change5Min = eng.Price.Chg5Min(row.Symbol)
	row.RVOL = eng.RVOL.RVOL(ctx, row.Symbol, slot, row.VolumeToday)

	if atr := eng.ATR.Get(ctx, row.Symbol); atr != nil {
		row.ATR = models.Float64(atr.ATR)
		row.ATRPercent = models.Float64(atr.ATRPercent)
	}

	if row.TradesToday > 0 {
		eng.Anomaly.ObserveTradeCount(row.Symbol, row.TradesToday)
	}
	row.TradeZScore = eng.Anomaly.ZScore(ctx, row.Symbol)

	if bar, ok := eng.MinuteBar.LastClosedBar(row.Symbol); ok {
		if bar.High > row.IntradayHigh {
			row.IntradayHigh = bar.High
		}
		if row.IntradayLow == 0 || (bar.Low > 0 && bar.Low < row.IntradayLow) {
			row.IntradayLow = bar.Low
		}
	}

	e.attachGaps(row, state)
}

// attachGaps derives the gap fields and feeds the day-long gap tracker.
func (e *Enricher) attachGaps(row *models.EnrichedTicker, state models.SessionState) {
	if row.PrevClose > 0 && row.Price > 0 {
		g := (row.Price - row.PrevClose) / row.PrevClose * 100
		row.GapFromPrevClose = models.Float64(g)
	}
	if row.DayOpen > 0 && row.Price > 0 {
		g := (row.Price - row.DayOpen) / row.DayOpen * 100
		row.GapFromOpen = models.Float64(g)
	}
	if state.Session == models.SessionPostMarket && row.DayClose > 0 && row.Price > 0 {
		g := (row.Price - row.DayClose) / row.DayClose * 100
		row.GapPostMarket = models.Float64(g)
	}

	if row.GapFromPrevClose == nil {
		return
	}
	gs := e.engines.Gaps.Observe(row.Symbol, state.Session, *row.GapFromPrevClose, row.SnapshotAt)

	if state.Session == models.SessionPreMarket {
		row.GapPreMarket = row.GapFromPrevClose
	} else if gs.PreMarketPeak > 0 {
		row.GapPreMarket = models.Float64(gs.PreMarketPeak)
	}
	row.GapAtOpen = gs.OpenGap

	switch {
	case *row.GapFromPrevClose > 0.05:
		row.GapDirection = models.GapUp
	case *row.GapFromPrevClose < -0.05:
		row.GapDirection = models.GapDown
	default:
		row.GapDirection = models.GapFlat
	}
	row.GapClass = models.ClassifyGap(*row.GapFromPrevClose)
}
