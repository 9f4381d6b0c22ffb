package reconciler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/models"
)

func TestReconcileSkipsWhileMarketClosed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(bus.NewFromClient(db), 1000, time.Second)

	state, err := json.Marshal(models.SessionState{
		Session:     models.SessionClosed,
		TradingDate: "2026-08-24",
	})
	require.NoError(t, err)
	mock.ExpectGet(bus.KeySessionCurrent).SetVal(string(state))

	// The closed gate returns before any category or active-set read;
	// any further command would be unexpected and fail the call.
	require.NoError(t, r.Reconcile(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileProceedsWhenSessionUnknown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(bus.NewFromClient(db), 1000, time.Second)

	mock.ExpectGet(bus.KeySessionCurrent).RedisNil()
	for _, cat := range models.AllCategories {
		mock.ExpectGet(bus.KeyCategory(string(cat))).RedisNil()
	}
	mock.ExpectSMembers(bus.KeyActiveTickers).SetVal(nil)

	// An absent session state never blocks reconciliation; with no
	// rankings and no active set there is nothing to publish.
	require.NoError(t, r.Reconcile(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileDuringOpenSessionReadsRankings(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(bus.NewFromClient(db), 1000, time.Second)

	state, err := json.Marshal(models.SessionState{
		Session:     models.SessionMarketOpen,
		TradingDate: "2026-08-24",
	})
	require.NoError(t, err)
	mock.ExpectGet(bus.KeySessionCurrent).SetVal(string(state))
	for _, cat := range models.AllCategories {
		mock.ExpectGet(bus.KeyCategory(string(cat))).RedisNil()
	}
	mock.ExpectSMembers(bus.KeyActiveTickers).SetVal(nil)

	require.NoError(t, r.Reconcile(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDesiredCapKeepsBestRanked(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(bus.NewFromClient(db), 2, time.Second)

	ranking, err := json.Marshal(models.Ranking{
		Category: models.CategoryWinners,
		Rows: []*models.EnrichedTicker{
			{Symbol: "AAA", Rank: 1},
			{Symbol: "BBB", Rank: 2},
			{Symbol: "CCC", Rank: 3},
		},
	})
	require.NoError(t, err)
	for _, cat := range models.AllCategories {
		if cat == models.CategoryWinners {
			mock.ExpectGet(bus.KeyCategory(string(cat))).SetVal(string(ranking))
			continue
		}
		mock.ExpectGet(bus.KeyCategory(string(cat))).RedisNil()
	}

	desired := r.desired(context.Background())
	assert.Len(t, desired, 2)
	assert.Contains(t, desired, "AAA")
	assert.Contains(t, desired, "BBB")
	assert.NotContains(t, desired, "CCC")
}
