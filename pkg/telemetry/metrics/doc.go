// Package metrics exposes the self-metrics of the Pulse pipeline to
// Prometheus.
//
// These metrics describe the pipeline itself (flushes, probe results,
// backlog size, sampling decisions), not the application telemetry it
// collects, which lives in the shared store.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	w := writer.New(client, manager, cfg.Writer, writer.WithMetrics(collector))
//	http.Handle("/metrics", collector.Handler())
//
// A nil *Collector records nothing.
package metrics
