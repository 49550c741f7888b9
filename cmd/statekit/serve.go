package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/statekit/internal/config"
	"github.com/vango-dev/statekit/pkg/server"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/telemetry"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the state store over HTTP and WebSocket",
		Long: `Serve the state store configured by statekit.yaml.

Routes:
  GET  /healthz       liveness probe
  GET  /state         shared state and classes
  POST /state         validated batch update
  GET  /state/{key}   one value
  GET  /ws            per-tab session synchronised with the URL fragment
  GET  /metrics       Prometheus metrics (server.metrics: true)

The config file is watched and reloaded on change unless --watch=false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Address()
			}
			return runServe(cmd.Context(), cfg, addr, watch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./statekit.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.host:server.port)")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the config file on change")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, addr string, watch bool) error {
	logger := cfg.Logger(os.Stderr)

	observers := []state.Observer{telemetry.NewTracer()}
	var metrics *telemetry.Metrics
	if cfg.Server.Metrics {
		metrics = telemetry.NewMetrics()
		observers = append(observers, metrics)
	}

	srv := server.New(&server.ServerConfig{
		Address:         addr,
		NewStore:        storeFactory(cfg, logger, observers...),
		Codec:           cfg.Codec(),
		Metrics:         metrics,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		Logger:          logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watch && cfg.Path() != "" {
		go func() {
			err := config.Watch(ctx, cfg.Path(), logger, func(next *config.Config) {
				srv.Reload(storeFactory(next, logger, observers...))
			})
			if err != nil {
				logger.Error("config watch stopped", "error", err)
			}
		}()
	}

	return srv.Run(ctx)
}
