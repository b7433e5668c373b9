package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/pulse/pkg/cli"
	"mercator-hq/pulse/pkg/collector"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/schedule"
	"mercator-hq/pulse/pkg/telemetry/metrics"
	"mercator-hq/pulse/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	mode          string
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collector with its metrics and health endpoints",
	Long: `Run the metrics collector with the specified configuration.

The collector registers this replica in the shared store, schedules the
writer, sampler and failover jobs and serves Prometheus self-metrics,
liveness, readiness and status endpoints. On SIGINT or SIGTERM buffered
records are flushed before the process exits.

Examples:
  # Start with defaults (distributed mode against a local Redis)
  pulse run

  # Start with custom config
  pulse run --config /etc/pulse/config.yaml

  # Collect locally only
  pulse run --mode local

  # Validate config without starting
  pulse run --dry-run`,
	RunE: runCollector,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.mode, "mode", "", "override collector mode (local, distributed)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload the normal sample rate when the config file changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runCollector(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.mode != "" {
		cfg.Collector.Mode = runFlags.mode
	}
	if err := config.Validate(cfg); err != nil {
		return cli.WrapConfigError("invalid configuration", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}

	m := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	m.RegisterRuntime()

	c, err := collector.New(cfg,
		collector.WithLogger(logger),
		collector.WithMetrics(m),
		collector.WithTracer(tracer),
	)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	var instanceID string
	if d, ok := c.(*collector.Distributed); ok {
		instanceID = d.Failover().InstanceID()
	}
	printBanner(cfg, instanceID)

	if err := c.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	sched := schedule.New(logger)
	for _, job := range c.Jobs() {
		if err := sched.Add(job); err != nil {
			return cli.NewCommandError("run", err)
		}
	}
	sched.Start(ctx)
	fmt.Printf("✓ Scheduler started (%d jobs)\n", len(sched.Jobs()))

	if runFlags.watch && cfgFile != "" {
		go watchConfig(ctx, c, logger)
	}

	srv := newServer(cfg, c, m, logger)
	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(srvCtx) }()

	fmt.Printf("✓ Listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.IsEnabled() {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Printf("✓ Health endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Health.LivenessPath)
	fmt.Println("\nPress Ctrl+C to stop")

	var runErr error
	select {
	case err := <-errChan:
		if err != nil {
			runErr = cli.NewCommandError("run", err)
		}
	case <-ctx.Done():
		fmt.Println("\nShutting down gracefully...")
		stopServer()
		if err := <-errChan; err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := c.Stop(shutdownCtx); err != nil {
		slog.Error("collector shutdown failed", "error", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		slog.Error("tracer shutdown failed", "error", err)
	}

	fmt.Println("✓ Shutdown complete")
	return runErr
}

// watchConfig applies the normal sample rate of every reloaded config. Other
// settings take effect on restart.
func watchConfig(ctx context.Context, c collector.MetricsCollector, logger *slog.Logger) {
	w := config.NewWatcher(cfgFile, func(next *config.Config) {
		config.SetConfig(next)
		if d, ok := c.(*collector.Distributed); ok {
			d.Failover().SetNormalSampleRate(next.Failover.NormalSampleRate)
		}
		logger.Info("Configuration reloaded", "normal_sample_rate", next.Failover.NormalSampleRate)
	}, logger)

	if err := w.Watch(ctx); err != nil {
		logger.Warn("Configuration watcher stopped", "error", err)
	}
}
