package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/httpserv"
	"github.com/sawpanic/equityrun/internal/ingest"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/polygon"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll the full-market snapshot and publish the latest slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateCore(); err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runIngest(ctx)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context) error {
	m := metrics.NewRegistry()

	b, err := bus.New(ctx, cfg.Bus.URL, cfg.Bus.DB)
	if err != nil {
		return err
	}
	defer b.Close()

	vendor := polygon.New(cfg.Vendor.BaseURL, cfg.Vendor.APIKey, cfg.Vendor.RequestTimeout,
		cfg.Vendor.RatePerSecond, cfg.Vendor.Burst, m)
	ing := ingest.New(vendor, b, m, cfg.Scanner.ScanInterval)
	srv := httpserv.New(cfg.HTTP.Addr, b, nil, m)

	log.Info().Dur("interval", cfg.Scanner.ScanInterval).Msg("Snapshot ingestor starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ing.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		log.Info().Msg("Snapshot ingestor stopped")
		return nil
	}
	return err
}
