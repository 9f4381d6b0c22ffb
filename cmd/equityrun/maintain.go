package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/httpserv"
	"github.com/sawpanic/equityrun/internal/maintain"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/polygon"
	"github.com/sawpanic/equityrun/internal/warehouse"
)

var (
	maintainDate   string
	maintainDaemon bool
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the nightly maintenance graph",
	Long:  "Runs the nightly maintenance graph once for a date, or as a daemon that recovers missed runs and follows the weekday schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateCore(); err != nil {
			return err
		}
		if err := cfg.ValidateWarehouse(); err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runMaintain(ctx)
	},
}

func init() {
	maintainCmd.Flags().StringVar(&maintainDate, "date", "", "run once for this trading date (YYYY-MM-DD, default today)")
	maintainCmd.Flags().BoolVar(&maintainDaemon, "daemon", false, "recover missed runs and stay on the weekday schedule")
	rootCmd.AddCommand(maintainCmd)
}

func runMaintain(ctx context.Context) error {
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

	orch, err := maintain.New(b, store, vendor, m, cfg)
	if err != nil {
		return err
	}

	if !maintainDaemon {
		day := time.Now()
		if maintainDate != "" {
			day, err = time.Parse("2006-01-02", maintainDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
		}
		if ok := orch.RunForDate(ctx, day); !ok {
			return fmt.Errorf("maintenance run finished with failed tasks")
		}
		return nil
	}

	srv := httpserv.New(cfg.HTTP.Addr, b, store, m)
	log.Info().Int("hour", cfg.Maintain.Hour).Int("minute", cfg.Maintain.Minute).
		Msg("Maintenance daemon starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orch.Recover(gctx)
		return orch.Schedule(gctx)
	})
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		log.Info().Msg("Maintenance daemon stopped")
		return nil
	}
	return err
}
