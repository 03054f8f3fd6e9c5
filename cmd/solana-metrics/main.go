package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asymmetric-research/solana-metrics/pkg/collector"
	"github.com/asymmetric-research/solana-metrics/pkg/rpc"
	"github.com/asymmetric-research/solana-metrics/pkg/sink"
	"github.com/asymmetric-research/solana-metrics/pkg/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configFile string
	flagged    *Config
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{flagged: DefaultConfig()}
	cmd := &cobra.Command{
		Use:   "solana-metrics",
		Short: "Solana network metrics collector",
		Long: `solana-metrics periodically samples the Solana network over JSON-RPC,
derives throughput, block time, fee, compute unit and reward figures,
and hands each record to the configured sinks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts.configFile, opts.flagged)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to a YAML config file.")
	bindFlags(cmd.PersistentFlags(), opts.flagged)

	cmd.AddCommand(versionCmd(), migrateCmd(opts))
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "solana-metrics %s\n", version)
		},
	}
}

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Manage the ClickHouse schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts.configFile, opts.flagged)
			if err != nil {
				return err
			}
			if cfg.Sinks.ClickHouse.Endpoint == "" {
				return fmt.Errorf("sinks.clickhouse.endpoint is required to migrate")
			}
			slog.Init(cfg.LogLevel)
			//goland:noinspection GoUnhandledErrorResult
			defer slog.Sync()

			migrator := sink.NewMigrator(cfg.Sinks.ClickHouse.DSN())
			switch args[0] {
			case "up":
				return migrator.Up()
			case "down":
				return migrator.Down()
			default:
				current, dirty, err := migrator.Status()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", current, dirty)
				return nil
			}
		},
	}
}

func run(ctx context.Context, cfg *Config) error {
	slog.Init(cfg.LogLevel)
	//goland:noinspection GoUnhandledErrorResult
	defer slog.Sync()
	logger := slog.Get()
	logger.Infow(
		"Starting solana-metrics",
		"version", version,
		"rpcUrl", cfg.RpcUrl,
		"commitment", cfg.Commitment,
		"interval", cfg.Interval,
		"sampleDuration", cfg.SampleDuration,
		"batchSize", cfg.BatchSize,
		"listenAddress", cfg.ListenAddress,
	)

	client := rpc.NewRPCClient(cfg.RpcUrl, cfg.HttpTimeout)
	preflight(ctx, client)

	sinks, stop, err := buildSinks(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer stop()

	metrics := collector.NewMetrics(prometheus.DefaultRegisterer)
	c := collector.NewCollector(client, sinks, cfg.CollectorConfig(), metrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.ListenAddress, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("metrics server failed: %v", err)
		}
	}()

	c.Run(ctx, cfg.Interval)

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// preflight logs what the node reports about itself. Failures are not fatal, the node may come up later.
func preflight(ctx context.Context, client *rpc.Client) {
	logger := slog.Get()
	nodeVersion, err := client.GetVersion(ctx)
	if err != nil {
		logger.Warnf("Failed to get node version: %v", err)
	} else {
		logger.Infof("Connected to node running solana-core %s", nodeVersion)
	}
	if health, err := client.GetHealth(ctx); err != nil {
		logger.Warnf("Node is not healthy: %v", err)
	} else {
		logger.Infof("Node health: %s", health)
	}
}

// buildSinks creates the enabled sinks. stop releases whatever they hold.
func buildSinks(ctx context.Context, cfg *Config, registerer prometheus.Registerer) (sink.Multi, func() error, error) {
	var sinks sink.Multi
	stop := func() error { return nil }
	if cfg.Sinks.Log {
		sinks = append(sinks, sink.NewLog())
	}
	if cfg.Sinks.Prometheus {
		sinks = append(sinks, sink.NewPrometheus(registerer))
	}
	if cfg.Sinks.ClickHouse.Enabled {
		if cfg.Sinks.ClickHouse.Migrate {
			if err := sink.NewMigrator(cfg.Sinks.ClickHouse.DSN()).Up(); err != nil {
				return nil, nil, fmt.Errorf("migrating ClickHouse: %w", err)
			}
		}
		clickHouse := sink.NewClickHouse(cfg.Sinks.ClickHouse)
		if err := clickHouse.Start(ctx); err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, clickHouse)
		stop = clickHouse.Stop
	}
	return sinks, stop, nil
}
