// Package telemetry groups the observability of Pulse itself.
//
// # Components
//
//   - logging: structured logging with caller redaction and context fields
//   - metrics: Prometheus self-metrics of the pipeline (flushes, probes,
//     sampling decisions, backlog)
//   - tracing: OpenTelemetry spans around store round trips
//   - health: liveness, readiness, status and version endpoints
//
// These describe the collector, not the services it measures. The
// per-endpoint statistics live in the aggregator and the shared store.
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	m := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//
//	c, err := collector.New(cfg,
//	    collector.WithLogger(logger.Slog()),
//	    collector.WithMetrics(m),
//	    collector.WithTracer(tracer),
//	)
//
// Every component accepts nil metrics and tracers, so tests and embedders
// can leave them out.
package telemetry
