package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/internal/cli"
	httpAdapter "github.com/aretw0/orderflow/pkg/adapters/http"
	"github.com/aretw0/orderflow/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the engine in server mode, exposing sessions as a JSON API over HTTP
with SSE and WebSocket streams and Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		if cfg.OTLP.Endpoint != "" {
			shutdownTracer, err := observability.InitTracer(ctx, "orderflow", orderflow.Version, cfg.OTLP.Endpoint)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTracer(sctx); err != nil {
					logger.Warn("Tracer shutdown failed", "err", err)
				}
			}()
			logger.Info("Tracing enabled", "endpoint", cfg.OTLP.Endpoint)
		}

		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
		rt, err := cli.BuildEngine(ctx, cfg, logger,
			orderflow.WithLifecycleHooks(metrics.Hooks()),
			orderflow.WithLifecycleHooks(observability.LogHooks(logger)),
		)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: httpAdapter.NewHandler(rt.Engine,
				httpAdapter.WithLogger(logger),
				httpAdapter.WithMetricsHandler(promhttp.Handler()),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting orderflow server", "addr", srv.Addr, "entry", rt.Engine.Graph().Entry())
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return err
		case <-ctx.Done():
			logger.Info("Start shutdown", "signal", ctx.Signal())

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}
			logger.Info("Orderflow server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on (overrides http.addr)")
}
