package main

import (
	"fmt"
	"log/slog"
	"net/url"

	"mercator-hq/pulse/pkg/cli"
	"mercator-hq/pulse/pkg/collector"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/server"
	"mercator-hq/pulse/pkg/telemetry/health"
	"mercator-hq/pulse/pkg/telemetry/logging"
	"mercator-hq/pulse/pkg/telemetry/metrics"
)

// loadConfig initializes the global configuration from --config and the
// PULSE_* environment.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.WrapConfigError("failed to load config", err)
	}
	return config.GetConfig(), nil
}

// newLogger builds the process logger and installs it as the slog default.
// --verbose forces debug level.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	if verbose {
		lc.Level = "debug"
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	logger.SetDefault()
	return logger.Slog(), nil
}

// checkerFor returns the readiness checker of c. A distributed collector
// reports the store probe, a local one has no dependencies.
func checkerFor(cfg *config.Config, c collector.MetricsCollector) *health.Checker {
	if d, ok := c.(*collector.Distributed); ok {
		return d.Failover().Checker()
	}
	return health.New(cfg.Telemetry.Health.CheckTimeout)
}

// newServer builds the self-metrics and health endpoint of c.
func newServer(cfg *config.Config, c collector.MetricsCollector, m *metrics.Collector, logger *slog.Logger) *server.Server {
	routes := server.Routes{
		Health:  cfg.Telemetry.Health,
		Checker: checkerFor(cfg, c),
		Status:  func() any { return c.Status() },
		Version: versionInfo(),
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		routes.MetricsPath = cfg.Telemetry.Metrics.Path
		routes.Metrics = m.Handler()
	}
	return server.New(cfg.Server, routes.Handler(), logger)
}

func printBanner(cfg *config.Config, instanceID string) {
	fmt.Println("Pulse", Version)
	fmt.Printf("  Mode:      %s\n", cfg.Collector.Mode)
	if instanceID != "" {
		fmt.Printf("  Instance:  %s\n", instanceID)
	}
	if cfg.Collector.Mode == config.ModeDistributed {
		fmt.Printf("  Store:     %s (prefix %q)\n", redactAddress(cfg.Store.Address), cfg.Store.KeyPrefix)
	}
	fmt.Println()
}

// redactAddress hides the password of a store URL.
func redactAddress(addr string) string {
	u, err := url.Parse(addr)
	if err != nil {
		return "<invalid address>"
	}
	return u.Redacted()
}
