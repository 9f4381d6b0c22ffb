package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/equityrun/internal/analytics"
	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/httpserv"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
	"github.com/sawpanic/equityrun/internal/polygon"
	"github.com/sawpanic/equityrun/internal/reconciler"
	"github.com/sawpanic/equityrun/internal/scanner"
	"github.com/sawpanic/equityrun/internal/session"
	"github.com/sawpanic/equityrun/internal/warehouse"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the scanner: analytics consumers, filter pipeline and delta publisher",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateCore(); err != nil {
			return err
		}
		if err := cfg.ValidateWarehouse(); err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runScan(ctx)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(ctx context.Context) error {
	m := metrics.NewRegistry()

	b, err := bus.New(ctx, cfg.Bus.URL, cfg.Bus.DB)
	if err != nil {
		return err
	}
	defer b.Close()

	store, err := warehouse.Open(ctx, cfg.Warehouse.URL, cfg.Warehouse.QueryTimeout)
	if err != nil {
		return err
	}
	defer store.Close()

	vendor := polygon.New(cfg.Vendor.BaseURL, cfg.Vendor.APIKey, cfg.Vendor.RequestTimeout,
		cfg.Vendor.RatePerSecond, cfg.Vendor.Burst, m)

	detector, err := session.New(b, vendor, cfg.Market.Timezone, session.Boundaries{
		PreMarketStart: cfg.Market.PreMarketStart,
		MarketOpen:     cfg.Market.MarketOpen,
		MarketClose:    cfg.Market.MarketClose,
		PostMarketEnd:  cfg.Market.PostMarketEnd,
	})
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return err
	}

	engines := analytics.NewEngines(b, m, models.TradeBaselineDays, cfg.Scanner.AnomalyZThreshold)
	enricher := scanner.NewEnricher(b, engines, m, loc, cfg.Market.SlotMinutes,
		cfg.Scanner.MetadataCacheSize, cfg.Scanner.MetadataCacheTTL)
	loader := scanner.NewFilterLoader(store, b, cfg.Scanner.FilterReload)
	cats := scanner.NewCategorizer(cfg.Scanner.CategoryLimit, cfg.Scanner.AnomalyZThreshold)
	deltas := scanner.NewDeltaEngine(b, m)
	archiver := scanner.NewArchiver(store)
	scan := scanner.New(b, m, detector, enricher, loader, cats, deltas, archiver,
		cfg.Scanner.ScanInterval, cfg.Scanner.MaxRows)
	recon := reconciler.New(b, cfg.Scanner.SubscriptionCap, 10*time.Second)
	srv := httpserv.New(cfg.HTTP.Addr, b, store, m)

	log.Info().Dur("interval", cfg.Scanner.ScanInterval).Msg("Scanner starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return detector.Start(gctx) })
	g.Go(func() error { return engines.RunAggregateConsumer(gctx) })
	g.Go(func() error { return engines.MinuteBar.Run(gctx) })
	g.Go(func() error { engines.WatchBacklog(gctx, 50_000); return gctx.Err() })
	g.Go(func() error { engines.WatchDayChange(gctx); return gctx.Err() })
	g.Go(func() error { return loader.Run(gctx) })
	g.Go(func() error { return archiver.Run(gctx) })
	g.Go(func() error { return scan.Run(gctx) })
	g.Go(func() error { return recon.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		log.Info().Msg("Scanner stopped")
		return nil
	}
	return err
}
