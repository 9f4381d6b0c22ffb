package maintain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
)

const (
	// factorUnityTolerance: a file whose implied factor is this close to
	// 1 is considered already adjusted and left alone.
	factorUnityTolerance = 0.10
	// vendorRatioTolerance: the Warehouse-implied factor is expected to
	// sit this close to the vendor's stated ratio; farther off is logged
	// but the Warehouse factor still wins.
	vendorRatioTolerance = 0.05
)

// dayAggRecord is one row of a day_aggs parquet file.
type dayAggRecord struct {
	Ticker       string  `parquet:"ticker"`
	Open         float64 `parquet:"open"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Close        float64 `parquet:"close"`
	Volume       float64 `parquet:"volume"`
	Transactions int64   `parquet:"transactions"`
	WindowStart  int64   `parquet:"window_start"`
}

// reconcileParquetSplits rewrites historical day_aggs files whose rows
// predate a recent split. The Warehouse close is the reference: the
// per-file factor is warehouse close over parquet close for the file's
// date, so a file that was already rewritten comes out with a factor
// near 1 and is skipped. Prices divide by the factor inverse (multiply
// by factor), volumes divide, transaction counts stay.
func (o *Orchestrator) reconcileParquetSplits(ctx context.Context, day time.Time) error {
	since := day.AddDate(0, 0, -7).Format("2006-01-02")
	splits, err := o.vendor.RecentSplits(ctx, since)
	if err != nil {
		return err
	}
	if len(splits) == 0 {
		return nil
	}

	var rewritten int
	for _, s := range splits {
		ratio := s.Ratio()
		if ratio <= 0 {
			continue
		}
		execDay, err := time.Parse("2006-01-02", s.ExecutionDate)
		if err != nil {
			continue
		}
		n, err := o.rewriteSymbolHistory(ctx, s.Symbol, execDay, ratio)
		if err != nil {
			return fmt.Errorf("parquet reconcile %s: %w", s.Symbol, err)
		}
		rewritten += n
	}
	log.Info().Int("splits", len(splits)).Int("files", rewritten).Msg("Parquet splits reconciled")
	return nil
}

// rewriteSymbolHistory walks every daily file dated before the execution
// date and rewrites the ones whose rows for the symbol are unadjusted.
// The whole archive is in scope: the unity check skips files that are
// already consistent, so depth costs reads, not corruption.
func (o *Orchestrator) rewriteSymbolHistory(ctx context.Context, symbol string, execDay time.Time, vendorRatio float64) (int, error) {
	days, err := parquetDaysBefore(o.cfg.Maintain.ParquetDir, execDay)
	if err != nil {
		return 0, err
	}

	var rewritten int
	for _, fileDay := range days {
		if ctx.Err() != nil {
			return rewritten, ctx.Err()
		}
		path := filepath.Join(o.cfg.Maintain.ParquetDir, fileDay.Format("2006-01-02")+".parquet")

		whClose, ok, err := o.store.Daily.CloseOn(ctx, symbol, midnight(fileDay))
		if err != nil {
			return rewritten, err
		}
		if !ok || whClose <= 0 {
			continue
		}

		changed, err := o.rewriteFile(path, symbol, whClose, vendorRatio)
		if err != nil {
			return rewritten, err
		}
		if changed {
			rewritten++
		}
	}
	return rewritten, nil
}

// parquetDaysBefore lists the dates of day_aggs files strictly before
// the given date, oldest first. Files whose names are not dates are
// ignored; a missing directory yields an empty list.
func parquetDaysBefore(dir string, before time.Time) ([]time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read parquet dir: %w", err)
	}

	cutoff := midnight(before)
	days := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(e.Name(), ".parquet"))
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// rewriteFile adjusts one symbol's rows in one daily file. The factor
// comes from the Warehouse close against the file's own close. Returns
// whether the file was rewritten.
func (o *Orchestrator) rewriteFile(path, symbol string, whClose, vendorRatio float64) (bool, error) {
	records, err := parquet.ReadFile[dayAggRecord](path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	idx := -1
	for i := range records {
		if records[i].Ticker == symbol {
			idx = i
			break
		}
	}
	if idx < 0 || records[idx].Close <= 0 {
		return false, nil
	}

	factor := whClose / records[idx].Close
	if withinTolerance(factor, 1, factorUnityTolerance) {
		return false, nil
	}
	// For unadjusted pre-split rows the warehouse close already carries
	// the split, so the implied factor is the vendor's price multiplier.
	expected := vendorRatio
	if !withinTolerance(factor, expected, vendorRatioTolerance) {
		log.Warn().Str("symbol", symbol).Str("file", filepath.Base(path)).
			Float64("factor", factor).Float64("expected", expected).
			Msg("Parquet split factor off vendor ratio, applying warehouse factor")
	}

	for i := range records {
		if records[i].Ticker != symbol {
			continue
		}
		r := &records[i]
		r.Open *= factor
		r.High *= factor
		r.Low *= factor
		r.Close *= factor
		r.Volume /= factor
	}

	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, err
	}
	log.Info().Str("symbol", symbol).Str("file", filepath.Base(path)).
		Float64("factor", factor).Msg("Parquet file split-adjusted")
	return true, nil
}

// withinTolerance reports whether v is within frac of ref.
func withinTolerance(v, ref, frac float64) bool {
	if ref == 0 {
		return false
	}
	d := v/ref - 1
	if d < 0 {
		d = -d
	}
	return d <= frac
}
