package reconciler

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/models"
)

// Reconciler keeps the WebSocket subscription set equal to the union of
// current category members. It owns polygon_ws:active_tickers and emits
// subscribe/unsubscribe commands for the stream ingestor to apply.
// When the union exceeds the cap, symbols keep their best rank across
// categories and the best-ranked win the slots.
type Reconciler struct {
	bus      *bus.Bus
	cap      int
	interval time.Duration
}

// New wires the reconciler.
func New(b *bus.Bus, subscriptionCap int, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reconciler{bus: b, cap: subscriptionCap, interval: interval}
}

// Run reconciles on a cadence until the context ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				log.Warn().Err(err).Msg("Subscription reconcile failed")
			}
		}
	}
}

// Reconcile computes the desired set, diffs it against the active set
// and publishes the commands covering the difference. While the market
// is fully closed the set is left as-is: churning subscriptions against
// a silent feed only costs vendor round trips.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if r.marketClosed(ctx) {
		return nil
	}

	desired := r.desired(ctx)

	active, err := r.bus.SetMembers(ctx, bus.KeyActiveTickers)
	if err != nil {
		return err
	}
	activeSet := make(map[string]struct{}, len(active))
	for _, s := range active {
		activeSet[s] = struct{}{}
	}

	var subs, unsubs []string
	for sym := range desired {
		if _, ok := activeSet[sym]; !ok {
			subs = append(subs, sym)
		}
	}
	for sym := range activeSet {
		if _, ok := desired[sym]; !ok {
			unsubs = append(unsubs, sym)
		}
	}
	if len(subs) == 0 && len(unsubs) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	for _, sym := range subs {
		r.publish(ctx, sym, "subscribe", now)
	}
	for _, sym := range unsubs {
		r.publish(ctx, sym, "unsubscribe", now)
	}

	members := make([]string, 0, len(desired))
	for sym := range desired {
		members = append(members, sym)
	}
	if err := r.bus.ReplaceSet(ctx, bus.KeyActiveTickers, members, bus.TTLActiveTickers); err != nil {
		return err
	}

	log.Info().Int("subscribed", len(subs)).Int("unsubscribed", len(unsubs)).
		Int("active", len(members)).Msg("Subscriptions reconciled")
	return nil
}

// marketClosed reads the session singleton. An absent or unreadable
// state never blocks reconciliation.
func (r *Reconciler) marketClosed(ctx context.Context) bool {
	var state models.SessionState
	ok, err := r.bus.GetJSON(ctx, bus.KeySessionCurrent, &state)
	if err != nil || !ok {
		return false
	}
	return state.Session == models.SessionClosed
}

// desired builds the capped union of category members. Each symbol
// carries its best (lowest) rank across categories; the cap keeps the
// best-ranked symbols.
func (r *Reconciler) desired(ctx context.Context) map[string]struct{} {
	bestRank := make(map[string]int)
	for _, cat := range models.AllCategories {
		var ranking models.Ranking
		ok, err := r.bus.GetJSON(ctx, bus.KeyCategory(string(cat)), &ranking)
		if err != nil || !ok {
			continue
		}
		for _, row := range ranking.Rows {
			if cur, seen := bestRank[row.Symbol]; !seen || row.Rank < cur {
				bestRank[row.Symbol] = row.Rank
			}
		}
	}

	if r.cap > 0 && len(bestRank) > r.cap {
		type ranked struct {
			symbol string
			rank   int
		}
		all := make([]ranked, 0, len(bestRank))
		for sym, rk := range bestRank {
			all = append(all, ranked{symbol: sym, rank: rk})
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].rank != all[j].rank {
				return all[i].rank < all[j].rank
			}
			return all[i].symbol < all[j].symbol
		})
		all = all[:r.cap]
		bestRank = make(map[string]int, len(all))
		for _, rk := range all {
			bestRank[rk.symbol] = rk.rank
		}
	}

	out := make(map[string]struct{}, len(bestRank))
	for sym := range bestRank {
		out[sym] = struct{}{}
	}
	return out
}

func (r *Reconciler) publish(ctx context.Context, symbol, action string, now int64) {
	cmd := models.SubscriptionCommand{
		Symbol:    symbol,
		Action:    action,
		Source:    "reconciler",
		Timestamp: now,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return
	}
	if _, err := r.bus.Publish(ctx, bus.StreamSubscriptions, map[string]any{
		"data": string(data),
	}, 10_000); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Subscription command publish failed")
	}
}
