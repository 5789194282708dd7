package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/goldex/pkg/api"
	"github.com/uhyunpark/goldex/pkg/app/loadgen"
)

func newServeCmd(envPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(*envPath, nodeOptions{withMetrics: true, withPublisher: true})
			if err != nil {
				return err
			}
			defer n.close()
			sugar := n.logger.Sugar()

			if addr == "" {
				addr = n.cfg.API.Addr
			}

			server := api.NewServer(n.exchange, api.Options{
				CORSOrigins:    n.cfg.API.CORSOrigins,
				MetricsHandler: promhttp.Handler(),
				Logger:         sugar,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(ctx, addr)
			})

			// Enable with: LOADGEN_ENABLED=true LOADGEN_BATCH=10 LOADGEN_INTERVAL_MS=100
			if n.cfg.LoadGen.Enabled {
				feeder := loadgen.NewFeeder(n.exchange, loadgen.Config{
					BatchSize: n.cfg.LoadGen.BatchSize,
					Interval:  n.cfg.LoadGen.Interval,
					Traders:   n.cfg.LoadGen.Traders,
				}, time.Now().UnixNano(), sugar)
				g.Go(func() error {
					return feeder.Run(ctx)
				})
			}

			sugar.Infow("node_started",
				"api_addr", addr,
				"db_path", n.cfg.Storage.Path,
				"match_page_size", n.cfg.Exchange.MatchPageSize,
				"max_commit_retries", n.cfg.Exchange.MaxCommitRetries,
			)
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorw("node_stopped", "err", err)
				return err
			}
			sugar.Info("node_stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides API_ADDR)")
	return cmd
}
