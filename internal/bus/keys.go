package bus

import (
	"fmt"
	"time"
)

// Key and stream inventory. Writers are single-owner per key: the
// snapshot ingestor owns the latest-snapshot slot, the delta engine owns
// the ranking keys, maintenance owns the baseline hashes.
const (
	KeySnapshotLatest  = "snapshot:polygon:latest"
	KeyEnrichedLatest  = "snapshot:enriched:latest"
	KeySessionCurrent  = "market:session:current"
	KeyTickerUniverse  = "ticker:universe"
	KeyActiveTickers   = "polygon_ws:active_tickers"

	StreamRawSnapshots  = "snapshots:raw"
	StreamAggregates    = "stream:realtime:aggregates"
	StreamMinutes       = "stream:market:minutes"
	StreamTrades        = "stream:realtime:trades"
	StreamQuotes        = "stream:realtime:quotes"
	StreamRankingDeltas = "stream:ranking:deltas"
	StreamSubscriptions = "polygon_ws:subscriptions"
	StreamSessionEvents = "events:session"

	ChannelNewDay               = "trading:new_day"
	ChannelMaintenanceCompleted = "maintenance:completed"
	ChannelFiltersReload        = "scanner:filters:reload"

	TTLSnapshot      = 60 * time.Second
	TTLHoliday       = 30 * 24 * time.Hour
	TTLATR           = 24 * time.Hour
	TTLRVOL          = 24 * time.Hour
	TTLMetadata      = 24 * time.Hour
	TTLTradeBaseline = 14 * time.Hour
	TTLActiveTickers = time.Hour
	TTLMaintenance   = 7 * 24 * time.Hour

	// Stream caps, trimmed approximately on write.
	MaxLenRawSnapshots = 1_000
	MaxLenAggregates   = 3_000
	MaxLenMinutes      = 15_000
	MaxLenTrades       = 10_000
	MaxLenQuotes       = 10_000
	MaxLenDeltas       = 20_000
)

// KeyATRDaily is the maintenance-owned ATR hash for a symbol.
func KeyATRDaily(symbol string) string { return "atr:daily:" + symbol }

// KeyATR is the realtime mirror of the ATR cache.
func KeyATR(symbol string) string { return "atr:" + symbol }

// KeyRVOLAverages is the per-symbol hash of slot index to baseline mean.
func KeyRVOLAverages(symbol string) string { return "rvol:hist:avg:" + symbol }

// KeyTradeBaseline is the hash {avg,std,days} for the anomaly detector.
func KeyTradeBaseline(symbol string, days int) string {
	return fmt.Sprintf("trades:baseline:%s:%d", symbol, days)
}

// KeyMetadata is the 24h mirror of a symbol's reference record.
func KeyMetadata(symbol string) string { return "ticker:metadata:" + symbol }

// KeyCategory is the full ranking snapshot for one category.
func KeyCategory(name string) string { return "scanner:category:" + name }

// KeySequence is the category's current delta sequence number.
func KeySequence(name string) string { return "scanner:sequence:" + name }

// KeyFilteredComplete marks a completed filter pass per session.
func KeyFilteredComplete(session string) string {
	return "scanner:filtered_complete:" + session
}

// KeyHoliday caches one exchange holiday date.
func KeyHoliday(date, exchange string) string {
	return fmt.Sprintf("market:holiday:%s:%s", date, exchange)
}

// KeyMaintenanceStatus is the per-day task status hash.
func KeyMaintenanceStatus(date string) string { return "maintenance:status:" + date }

// KeyMaintenanceExecuted marks a day's graph as completed.
func KeyMaintenanceExecuted(date string) string { return "maintenance:executed:" + date }
