package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/httpserv"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/stream"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Run the WebSocket ingestor feeding the realtime streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateCore(); err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runStream(ctx)
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)
}

func runStream(ctx context.Context) error {
	m := metrics.NewRegistry()

	b, err := bus.New(ctx, cfg.Bus.URL, cfg.Bus.DB)
	if err != nil {
		return err
	}
	defer b.Close()

	ws := stream.New(cfg.Vendor.WebSocketURL, cfg.Vendor.APIKey, b, m)
	srv := httpserv.New(cfg.HTTP.Addr, b, nil, m)

	log.Info().Str("url", cfg.Vendor.WebSocketURL).Msg("Stream ingestor starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ws.Run(gctx) })
	g.Go(func() error { return ws.RunCommandConsumer(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		log.Info().Msg("Stream ingestor stopped")
		return nil
	}
	return err
}
