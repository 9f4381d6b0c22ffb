package maintain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDayAggs(t *testing.T, path string, records []dayAggRecord) {
	t.Helper()
	require.NoError(t, parquet.WriteFile(path, records))
}

func TestRewriteFileAppliesWarehouseFactor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2026-08-20.parquet")
	writeDayAggs(t, path, []dayAggRecord{
		{Ticker: "AAPL", Open: 200, High: 210, Low: 195, Close: 205, Volume: 1000, Transactions: 50},
		// Pre-split prices for a 10-for-1 forward split: the adjusted
		// warehouse close is 10, the vendor multiplier 1/10.
		{Ticker: "SPLT", Open: 100, High: 110, Low: 95, Close: 100, Volume: 1000, Transactions: 77},
	})

	o := &Orchestrator{}
	changed, err := o.rewriteFile(path, "SPLT", 10.0, 0.1)
	require.NoError(t, err)
	assert.True(t, changed)

	records, err := parquet.ReadFile[dayAggRecord](path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var splt, aapl dayAggRecord
	for _, r := range records {
		switch r.Ticker {
		case "SPLT":
			splt = r
		case "AAPL":
			aapl = r
		}
	}

	// factor = 10 / 100 = 0.1: prices scale down, volume scales up,
	// transaction counts are untouched.
	assert.InDelta(t, 10.0, splt.Open, 1e-9)
	assert.InDelta(t, 11.0, splt.High, 1e-9)
	assert.InDelta(t, 9.5, splt.Low, 1e-9)
	assert.InDelta(t, 10.0, splt.Close, 1e-9)
	assert.InDelta(t, 10_000, splt.Volume, 1e-6)
	assert.Equal(t, int64(77), splt.Transactions)

	// Other symbols in the file ride along unchanged.
	assert.InDelta(t, 205.0, aapl.Close, 1e-9)
	assert.InDelta(t, 1000.0, aapl.Volume, 1e-9)
}

func TestRewriteFileReverseSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2024-09-13.parquet")
	// Unadjusted pre-split row for a 1-for-10 reverse split. The
	// warehouse close already carries the split, so the implied factor
	// matches the vendor multiplier of 10.
	writeDayAggs(t, path, []dayAggRecord{
		{Ticker: "RVRS", Open: 1.1, High: 1.3, Low: 1.0, Close: 1.2, Volume: 50_000, Transactions: 12},
	})

	o := &Orchestrator{}
	changed, err := o.rewriteFile(path, "RVRS", 12.0, 10.0)
	require.NoError(t, err)
	assert.True(t, changed)

	records, err := parquet.ReadFile[dayAggRecord](path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 12.0, records[0].Close, 1e-9)
	assert.InDelta(t, 11.0, records[0].Open, 1e-9)
	assert.InDelta(t, 5_000, records[0].Volume, 1e-6)
	assert.Equal(t, int64(12), records[0].Transactions)
}

func TestRewriteFileSkipsAdjustedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2026-08-20.parquet")
	// Close already matches the warehouse within the unity tolerance.
	writeDayAggs(t, path, []dayAggRecord{
		{Ticker: "SPLT", Open: 9.9, High: 10.2, Low: 9.8, Close: 10.2, Volume: 10_000, Transactions: 77},
	})

	o := &Orchestrator{}
	changed, err := o.rewriteFile(path, "SPLT", 10.0, 0.1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRewriteFileSymbolAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2026-08-20.parquet")
	writeDayAggs(t, path, []dayAggRecord{
		{Ticker: "AAPL", Close: 205, Volume: 1000},
	})

	o := &Orchestrator{}
	changed, err := o.rewriteFile(path, "SPLT", 10.0, 0.1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRewriteFileWarehouseWinsOverVendorRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2026-08-20.parquet")
	writeDayAggs(t, path, []dayAggRecord{
		{Ticker: "SPLT", Open: 100, High: 110, Low: 95, Close: 100, Volume: 1000, Transactions: 5},
	})

	// Vendor claims a 4-for-1 but the warehouse implies a 10-for-1. The
	// warehouse factor is applied regardless.
	o := &Orchestrator{}
	changed, err := o.rewriteFile(path, "SPLT", 10.0, 0.25)
	require.NoError(t, err)
	assert.True(t, changed)

	records, err := parquet.ReadFile[dayAggRecord](path)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, records[0].Close, 1e-9)
}

func TestParquetDaysBeforeWalksFullHistory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"2014-06-09.parquet", // a decade back stays in scope
		"2024-09-13.parquet",
		"2024-09-16.parquet", // execution day itself is excluded
		"2024-09-17.parquet",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2020-01-02.parquet"), 0o755))

	execDay := time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)
	days, err := parquetDaysBefore(dir, execDay)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2014-06-09", days[0].Format("2006-01-02"))
	assert.Equal(t, "2024-09-13", days[1].Format("2006-01-02"))
}

func TestParquetDaysBeforeMissingDir(t *testing.T) {
	days, err := parquetDaysBefore(filepath.Join(t.TempDir(), "absent"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, days)
}
