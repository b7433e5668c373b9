package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/pulse/pkg/config"
)

// Collector records the self-metrics of the pipeline.
//
// A nil *Collector is valid and records nothing, so components can take
// an optional collector without guarding every call.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	pipeline *PipelineMetrics
	writer   *WriterMetrics
	failover *FailoverMetrics
	sampler  *SamplerMetrics
}

// NewCollector creates a collector registering its metrics with registry.
// A nil registry gets a fresh one.
//
// Example:
//
//	cfg := config.NewDefault().Telemetry.Metrics
//	collector := metrics.NewCollector(&cfg, nil)
//	http.Handle(cfg.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = config.DefaultDurationBuckets()
	}

	return &Collector{
		enabled:  cfg.IsEnabled(),
		registry: registry,
		pipeline: newPipelineMetrics(namespace, registry),
		writer:   newWriterMetrics(namespace, buckets, registry),
		failover: newFailoverMetrics(namespace, buckets, registry),
		sampler:  newSamplerMetrics(namespace, registry),
	}
}

func (c *Collector) active() bool {
	return c != nil && c.enabled
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RegisterGauge exposes fn as a gauge. It is used for values owned by
// other components, such as the in-flight call count.
func (c *Collector) RegisterGauge(name, help string, fn func() float64) {
	if !c.active() {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.pipeline.namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// RecordCall counts one instrumented call.
func (c *Collector) RecordCall(success bool) {
	if !c.active() {
		return
	}
	c.pipeline.RecordCall(success)
}

// RecordSampleDecision counts one sampling decision.
// reason is one of "cached", "disabled", "degraded", "slow", "tier", "default".
func (c *Collector) RecordSampleDecision(sampled bool, reason string) {
	if !c.active() {
		return
	}
	c.sampler.RecordDecision(sampled, reason)
}

// SetLastSampleRate records the rate of the most recent decision. The gauge
// is shared by all endpoints, so it reflects whichever endpoint decided last.
func (c *Collector) SetLastSampleRate(rate float64) {
	if !c.active() {
		return
	}
	c.sampler.lastRate.Set(rate)
}

// RecordPublish counts one publication cycle of kind ("p99" or "qps").
func (c *Collector) RecordPublish(kind string, ok bool, entries int) {
	if !c.active() {
		return
	}
	c.sampler.RecordPublish(kind, ok, entries)
}

// RecordFlush records one flush of the distributed writer.
// result is one of "ok", "failed", "queued".
func (c *Collector) RecordFlush(result string, records int, duration time.Duration) {
	if !c.active() {
		return
	}
	c.writer.RecordFlush(result, records, duration)
}

// RecordProbe records one health probe of the shared store.
func (c *Collector) RecordProbe(ok bool, duration time.Duration) {
	if !c.active() {
		return
	}
	c.failover.RecordProbe(ok, duration)
}

// SetDegraded records the failover state.
func (c *Collector) SetDegraded(degraded bool) {
	if !c.active() {
		return
	}
	c.failover.SetDegraded(degraded)
}

// SetBacklog records the backlog size.
func (c *Collector) SetBacklog(size int) {
	if !c.active() {
		return
	}
	c.failover.backlog.Set(float64(size))
}

// RecordBacklogDrop counts records dropped from the backlog.
// reason is "evicted" or "expired".
func (c *Collector) RecordBacklogDrop(reason string, n int) {
	if !c.active() || n <= 0 {
		return
	}
	c.failover.dropped.WithLabelValues(reason).Add(float64(n))
}

// RecordReplay counts backlog records handed back to the writer.
func (c *Collector) RecordReplay(ok bool, n int) {
	if !c.active() || n <= 0 {
		return
	}
	c.failover.replayed.WithLabelValues(result(ok)).Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
