// Package server runs the HTTP endpoint of a Pulse replica.
//
// The endpoint exposes Prometheus self-metrics, liveness, readiness,
// collector status and version information:
//
//	routes := server.Routes{
//	    Health:      cfg.Telemetry.Health,
//	    Checker:     checker,
//	    Status:      func() any { return c.Status() },
//	    Version:     info,
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	    Metrics:     m.Handler(),
//	}
//	srv := server.New(cfg.Server, routes.Handler(), logger)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully within
// ServerConfig.ShutdownTimeout. Requests pass through panic recovery, trace
// context extraction and request logging.
package server
