package scanner

import (
	"sort"

	"github.com/sawpanic/equityrun/internal/models"
)

// Score computes the deterministic rank score for a row that passed
// filtering: 10·rvol + 5·(volume_today / avg_volume_30d). Terms with
// null inputs contribute zero.
func Score(row *models.EnrichedTicker) float64 {
	var score float64
	if row.RVOL != nil {
		score += 10 * *row.RVOL
	}
	if row.Meta != nil && row.Meta.AvgVolume30D > 0 {
		score += 5 * (row.VolumeToday / row.Meta.AvgVolume30D)
	}
	return score
}

// RankByScore sorts rows by score descending (ties by symbol ascending),
// assigns 1-based ranks, and truncates to maxRows.
func RankByScore(rows []*models.EnrichedTicker, maxRows int) []*models.EnrichedTicker {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Symbol < rows[j].Symbol
	})
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for i, r := range rows {
		r.Rank = i + 1
	}
	return rows
}
