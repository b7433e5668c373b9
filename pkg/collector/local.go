package collector

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"mercator-hq/pulse/pkg/aggregator"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/sampler"
	"mercator-hq/pulse/pkg/schedule"
	"mercator-hq/pulse/pkg/telemetry/metrics"
)

// LocalOnly keeps statistics in process memory. Global reads return this
// replica's view.
type LocalOnly struct {
	agg     *aggregator.Aggregator
	tiers   []config.SampleTier
	metrics *metrics.Collector
	logger  *slog.Logger
	rand    func() float64
	started time.Time
	now     func() time.Time
}

var _ MetricsCollector = (*LocalOnly)(nil)

// NewLocal creates a LocalOnly collector.
func NewLocal(cfg *config.Config, opts ...Option) *LocalOnly {
	o := buildOptions(opts)
	if o.rand == nil {
		o.rand = rand.Float64
	}
	c := &LocalOnly{
		agg:     newAggregator(cfg, o),
		tiers:   cfg.Sampler.Tiers,
		metrics: o.metrics,
		logger:  o.logger.With("component", "collector", "mode", config.ModeLocal),
		rand:    o.rand,
		now:     o.now,
	}
	registerGauges(o.metrics, c.agg)
	return c
}

// Aggregator returns the underlying aggregator.
func (c *LocalOnly) Aggregator() *aggregator.Aggregator { return c.agg }

func (c *LocalOnly) RequestStarted() { c.agg.RequestStarted() }
func (c *LocalOnly) RequestEnded()   { c.agg.RequestEnded() }

func (c *LocalOnly) Record(endpoint string, latencyMs int64, success bool, callerID string) {
	c.agg.Record(endpoint, latencyMs, success)
	if callerID != "" {
		c.agg.ObserveCaller(endpoint, callerID)
	}
	c.metrics.RecordCall(success)
}

func (c *LocalOnly) RecordError(endpoint string) {
	c.agg.RecordError(endpoint)
	c.metrics.RecordCall(false)
}

// ShouldSample maps this replica's QPS through the tier table.
func (c *LocalOnly) ShouldSample(endpoint string) bool {
	rate := sampler.RateForQPS(c.tiers, float64(c.agg.CurrentQPS()))
	sampled := rate >= 1 || c.rand() < rate
	c.metrics.RecordSampleDecision(sampled, sampler.ReasonTier)
	return sampled
}

func (c *LocalOnly) Snapshot(endpoint string) aggregator.PercentileSnapshot {
	return c.agg.Snapshot(endpoint)
}

func (c *LocalOnly) DistributionBuckets(endpoint string) []aggregator.Bucket {
	return c.agg.DistributionBuckets(endpoint)
}

func (c *LocalOnly) GlobalMetrics(_ context.Context, endpoint string) (EndpointMetrics, bool) {
	return localMetrics(c.agg, endpoint)
}

func (c *LocalOnly) AllEndpointMetrics(context.Context) map[string]EndpointMetrics {
	return allLocal(c.agg)
}

func (c *LocalOnly) SlowestEndpoints(_ context.Context, limit int) []aggregator.EndpointSummary {
	return c.agg.Slowest(limit)
}

func (c *LocalOnly) ErrorEndpoints(_ context.Context, limit int) []aggregator.EndpointSummary {
	return c.agg.ErrorEndpoints(limit)
}

func (c *LocalOnly) GlobalErrorRate(context.Context) float64 {
	return c.agg.GlobalErrorRate()
}

func (c *LocalOnly) Status() Status {
	s := localStatus(config.ModeLocal, c.agg)
	s.StartedAt = c.started
	return s
}

// Jobs returns nothing; a local collector has no background work.
func (c *LocalOnly) Jobs() []schedule.Job { return nil }

func (c *LocalOnly) Start(context.Context) error {
	c.started = c.now()
	c.logger.Info("Collector started")
	return nil
}

func (c *LocalOnly) Stop(context.Context) error {
	c.logger.Info("Collector stopped", "total_requests", c.agg.TotalRequests())
	return nil
}

func (c *LocalOnly) Reset() { c.agg.Reset() }
