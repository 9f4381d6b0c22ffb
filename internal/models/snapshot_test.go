package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmissible(t *testing.T) {
	tests := []struct {
		name string
		row  SnapshotTicker
		want bool
	}{
		{
			name: "at the floor",
			row:  SnapshotTicker{LastTrade: LastTrade{Price: 0.50}},
			want: true,
		},
		{
			name: "just below the floor",
			row:  SnapshotTicker{LastTrade: LastTrade{Price: 0.4999}},
			want: false,
		},
		{
			name: "no price at all",
			row:  SnapshotTicker{},
			want: false,
		},
		{
			name: "negative volume",
			row: SnapshotTicker{
				LastTrade: LastTrade{Price: 10},
				Day:       Agg{Volume: -1},
			},
			want: false,
		},
		{
			name: "price only from previous close",
			row:  SnapshotTicker{PrevDay: Agg{Close: 3.25}},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.row.Admissible())
		})
	}
}

func TestCurrentPriceFallback(t *testing.T) {
	row := SnapshotTicker{
		LastTrade: LastTrade{Price: 12.34},
		Day:       Agg{Close: 12.00},
		PrevDay:   Agg{Close: 11.00},
	}
	assert.Equal(t, 12.34, row.CurrentPrice())

	row.LastTrade.Price = 0
	assert.Equal(t, 12.00, row.CurrentPrice())

	row.Day.Close = 0
	assert.Equal(t, 11.00, row.CurrentPrice())
}

func TestClassifyGap(t *testing.T) {
	assert.Equal(t, GapSmall, ClassifyGap(1.9))
	assert.Equal(t, GapMedium, ClassifyGap(-3.5))
	assert.Equal(t, GapLarge, ClassifyGap(7))
	assert.Equal(t, GapExtreme, ClassifyGap(-12))
}

func TestSessionOrdering(t *testing.T) {
	assert.True(t, SessionPreMarket.Before(SessionMarketOpen))
	assert.True(t, SessionMarketOpen.Before(SessionPostMarket))
	assert.False(t, SessionClosed.Before(SessionPreMarket))
	assert.True(t, Session("PRE_MARKET").Valid())
	assert.False(t, Session("LUNCH").Valid())
}
