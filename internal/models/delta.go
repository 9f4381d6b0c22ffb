package models

import "time"

// DeltaType discriminates ranking delta records.
type DeltaType string

const (
	DeltaSnapshot DeltaType = "snapshot"
	DeltaAdd      DeltaType = "add"
	DeltaRemove   DeltaType = "remove"
	DeltaRerank   DeltaType = "rerank"
	DeltaUpdate   DeltaType = "update"
)

// DeltaRecord is one incremental change to a category ranking.
// Add and update carry the full row; remove carries only the symbol;
// rerank carries the position move.
type DeltaRecord struct {
	Type    DeltaType         `json:"type"`
	Symbol  string            `json:"symbol"`
	Rank    int               `json:"rank,omitempty"`
	OldRank int               `json:"old_rank,omitempty"`
	NewRank int               `json:"new_rank,omitempty"`
	Data    *EnrichedTicker   `json:"data,omitempty"`
	Rows    []*EnrichedTicker `json:"rows,omitempty"` // snapshot only
}

// DeltaBatch is the unit published per (category, tick). All records in
// a batch share one monotonically incremented sequence number.
type DeltaBatch struct {
	ID        string        `json:"id"`
	Category  Category      `json:"category"`
	Sequence  uint64        `json:"sequence"`
	Timestamp time.Time     `json:"timestamp"`
	Records   []DeltaRecord `json:"records"`
}

// Empty reports whether the batch carries no changes.
func (b *DeltaBatch) Empty() bool { return len(b.Records) == 0 }

// Watched-field thresholds below which an in-place change is not worth
// an update record.
const (
	UpdatePriceThreshold  = 0.01
	UpdateVolumeThreshold = 1000
	UpdateChangeThreshold = 0.01
	UpdateRVOLThreshold   = 0.05
)
