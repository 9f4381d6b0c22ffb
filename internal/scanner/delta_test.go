package scanner

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/models"
)

func rows(symbols ...string) []*models.EnrichedTicker {
	out := make([]*models.EnrichedTicker, len(symbols))
	for i, s := range symbols {
		out[i] = &models.EnrichedTicker{Symbol: s, Rank: i + 1, Price: 10}
	}
	return out
}

func TestDiffFirstEmissionIsSnapshot(t *testing.T) {
	next := rows("A", "B", "C")
	records := Diff(nil, next)

	require.Len(t, records, 1)
	assert.Equal(t, models.DeltaSnapshot, records[0].Type)
	assert.Len(t, records[0].Rows, 3)
}

func TestDiffEmptyToEmpty(t *testing.T) {
	assert.Nil(t, Diff(nil, nil))
}

func TestDiffRecordOrdering(t *testing.T) {
	prev := rows("A", "B", "C")
	// C leaves, D arrives at rank 1, A and B shift down.
	next := []*models.EnrichedTicker{
		{Symbol: "D", Rank: 1, Price: 10},
		{Symbol: "A", Rank: 2, Price: 10},
		{Symbol: "B", Rank: 3, Price: 10},
	}
	records := Diff(prev, next)
	require.Len(t, records, 4)

	assert.Equal(t, models.DeltaRemove, records[0].Type)
	assert.Equal(t, "C", records[0].Symbol)

	assert.Equal(t, models.DeltaAdd, records[1].Type)
	assert.Equal(t, "D", records[1].Symbol)
	require.NotNil(t, records[1].Data)

	assert.Equal(t, models.DeltaRerank, records[2].Type)
	assert.Equal(t, "A", records[2].Symbol)
	assert.Equal(t, 1, records[2].OldRank)
	assert.Equal(t, 2, records[2].NewRank)

	assert.Equal(t, models.DeltaRerank, records[3].Type)
	assert.Equal(t, "B", records[3].Symbol)
}

func TestDiffRerankWithoutUpdate(t *testing.T) {
	prev := rows("A", "B")
	// Ranks swap but every watched field moves less than its threshold.
	next := []*models.EnrichedTicker{
		{Symbol: "B", Rank: 1, Price: 10.005},
		{Symbol: "A", Rank: 2, Price: 10.005},
	}
	records := Diff(prev, next)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, models.DeltaRerank, rec.Type)
	}
}

func TestDiffUpdateThresholds(t *testing.T) {
	prev := []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10, VolumeToday: 5000}}

	// Price moved exactly one cent: update.
	next := []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10.01, VolumeToday: 5000}}
	records := Diff(prev, next)
	require.Len(t, records, 1)
	assert.Equal(t, models.DeltaUpdate, records[0].Type)
	require.NotNil(t, records[0].Data)

	// Sub-threshold moves on every field: no records at all.
	next = []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10.005, VolumeToday: 5999}}
	assert.Empty(t, Diff(prev, next))

	// Volume jump past the threshold: update.
	next = []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10, VolumeToday: 6000}}
	records = Diff(prev, next)
	require.Len(t, records, 1)
	assert.Equal(t, models.DeltaUpdate, records[0].Type)
}

func TestDiffRVOLThreshold(t *testing.T) {
	prev := []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10, RVOL: f64(2.00)}}

	next := []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10, RVOL: f64(2.04)}}
	assert.Empty(t, Diff(prev, next))

	next = []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10, RVOL: f64(2.05)}}
	records := Diff(prev, next)
	require.Len(t, records, 1)
	assert.Equal(t, models.DeltaUpdate, records[0].Type)

	// RVOL appearing counts against a zero baseline.
	prev = []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10}}
	next = []*models.EnrichedTicker{{Symbol: "A", Rank: 1, Price: 10, RVOL: f64(1.0)}}
	records = Diff(prev, next)
	require.Len(t, records, 1)
	assert.Equal(t, models.DeltaUpdate, records[0].Type)
}

// applyDelta replays records against a ranking the way a stream
// consumer would: removes drop symbols, adds insert full rows, reranks
// and updates move or replace in place, and the result is re-sorted by
// rank.
func applyDelta(prev []*models.EnrichedTicker, records []models.DeltaRecord) []*models.EnrichedTicker {
	bySymbol := map[string]*models.EnrichedTicker{}
	for _, r := range prev {
		cp := *r
		bySymbol[r.Symbol] = &cp
	}
	for _, rec := range records {
		switch rec.Type {
		case models.DeltaSnapshot:
			bySymbol = map[string]*models.EnrichedTicker{}
			for _, r := range rec.Rows {
				cp := *r
				bySymbol[r.Symbol] = &cp
			}
		case models.DeltaRemove:
			delete(bySymbol, rec.Symbol)
		case models.DeltaAdd, models.DeltaUpdate:
			cp := *rec.Data
			bySymbol[rec.Symbol] = &cp
		case models.DeltaRerank:
			if r, ok := bySymbol[rec.Symbol]; ok {
				r.Rank = rec.NewRank
			}
		}
	}
	out := make([]*models.EnrichedTicker, 0, len(bySymbol))
	for _, r := range bySymbol {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

func TestDiffReconstructsRanking(t *testing.T) {
	prev := rows("A", "B", "C")
	next := []*models.EnrichedTicker{
		{Symbol: "D", Rank: 1, Price: 10},
		{Symbol: "A", Rank: 2, Price: 10.50},
		{Symbol: "B", Rank: 3, Price: 10},
	}

	got := applyDelta(prev, Diff(prev, next))
	require.Len(t, got, len(next))
	for i := range next {
		assert.Equal(t, next[i].Symbol, got[i].Symbol)
		assert.Equal(t, next[i].Rank, got[i].Rank)
		assert.Equal(t, next[i].Price, got[i].Price)
	}

	// The first emission reconstructs from the snapshot record alone.
	got = applyDelta(nil, Diff(nil, next))
	require.Len(t, got, len(next))
	assert.Equal(t, "D", got[0].Symbol)
}

func TestDiffIsPure(t *testing.T) {
	prev := rows("A", "B", "C")
	next := rows("B", "C", "D")

	first := Diff(prev, next)
	second := Diff(prev, next)
	assert.Equal(t, first, second)
}
