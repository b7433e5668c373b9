package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/pulse/pkg/aggregator"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/failover"
	"mercator-hq/pulse/pkg/sampler"
	"mercator-hq/pulse/pkg/schedule"
	"mercator-hq/pulse/pkg/store"
	"mercator-hq/pulse/pkg/telemetry/metrics"
	"mercator-hq/pulse/pkg/writer"
)

// Distributed aggregates locally and publishes sampled calls to the shared
// store through the writer, guarded by the failover manager. Reads prefer
// the shared store and fall back to local data while it is unavailable.
type Distributed struct {
	agg      *aggregator.Aggregator
	client   store.Client
	owned    bool
	failover *failover.Manager
	writer   *writer.Writer
	sampler  *sampler.Sampler

	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
	started time.Time
}

var _ MetricsCollector = (*Distributed)(nil)

// NewDistributed wires the aggregator, failover manager, writer and sampler
// of one replica. Without WithClient it creates a store client from
// cfg.Store and closes it on Stop.
func NewDistributed(cfg *config.Config, opts ...Option) (*Distributed, error) {
	o := buildOptions(opts)

	client, owned := o.client, false
	if client == nil {
		c, err := store.NewClient(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to create store client: %w", err)
		}
		client, owned = c, true
	}

	instanceID := cfg.Collector.InstanceID
	if instanceID == "" {
		instanceID = failover.NewInstanceID()
	}
	logger := o.logger.With("instance", instanceID)
	keys := store.NewKeys(cfg.Store.KeyPrefix)

	fm := failover.New(cfg.Failover, store.Ping(client),
		failover.WithLogger(logger),
		failover.WithMetrics(o.metrics),
		failover.WithTracer(o.tracer),
		failover.WithClock(o.now),
		failover.WithHeartbeat(store.NewHeartbeat(client, keys, cfg.Store.TTL.Heartbeat)),
		failover.WithInstanceID(instanceID),
	)
	w := writer.New(client, keys, fm, cfg.Writer, cfg.Store.TTL,
		writer.WithLogger(logger),
		writer.WithMetrics(o.metrics),
		writer.WithTracer(o.tracer),
		writer.WithClock(o.now),
	)
	samplerOpts := []sampler.Option{
		sampler.WithLogger(logger),
		sampler.WithMetrics(o.metrics),
		sampler.WithTracer(o.tracer),
		sampler.WithClock(o.now),
	}
	if o.rand != nil {
		samplerOpts = append(samplerOpts, sampler.WithRand(o.rand))
	}
	s := sampler.New(client, keys, fm, cfg.Sampler, cfg.Store.TTL, samplerOpts...)

	d := &Distributed{
		agg:      newAggregator(cfg, o),
		client:   client,
		owned:    owned,
		failover: fm,
		writer:   w,
		sampler:  s,
		metrics:  o.metrics,
		logger:   logger.With("component", "collector", "mode", config.ModeDistributed),
		now:      o.now,
	}
	registerGauges(o.metrics, d.agg)
	return d, nil
}

// Aggregator returns the local aggregator.
func (d *Distributed) Aggregator() *aggregator.Aggregator { return d.agg }

// Failover returns the failover manager.
func (d *Distributed) Failover() *failover.Manager { return d.failover }

// Writer returns the distributed writer.
func (d *Distributed) Writer() *writer.Writer { return d.writer }

// Sampler returns the adaptive sampler.
func (d *Distributed) Sampler() *sampler.Sampler { return d.sampler }

func (d *Distributed) RequestStarted() { d.agg.RequestStarted() }
func (d *Distributed) RequestEnded()   { d.agg.RequestEnded() }

// Record aggregates the call locally and writes it to the shared store when
// the sampler selects it.
func (d *Distributed) Record(endpoint string, latencyMs int64, success bool, callerID string) {
	d.agg.Record(endpoint, latencyMs, success)
	if callerID != "" {
		d.agg.ObserveCaller(endpoint, callerID)
	}
	d.metrics.RecordCall(success)

	d.sampler.ObserveCall(endpoint)
	d.sampler.RecordLatency(endpoint, latencyMs)
	if d.sampler.ShouldSample(endpoint) {
		d.writer.Record(endpoint, latencyMs, success, callerID)
	}
}

// RecordError aggregates the error locally and always writes it; errors
// are rare and every one counts toward the error ranking.
func (d *Distributed) RecordError(endpoint string) {
	d.agg.RecordError(endpoint)
	d.metrics.RecordCall(false)
	d.sampler.ObserveCall(endpoint)
	d.writer.RecordError(endpoint)
}

func (d *Distributed) ShouldSample(endpoint string) bool {
	return d.sampler.ShouldSample(endpoint)
}

func (d *Distributed) Snapshot(endpoint string) aggregator.PercentileSnapshot {
	return d.agg.Snapshot(endpoint)
}

func (d *Distributed) DistributionBuckets(endpoint string) []aggregator.Bucket {
	return d.agg.DistributionBuckets(endpoint)
}

// GlobalMetrics returns the shared view of endpoint, or the local view when
// the store is degraded or holds nothing for it yet.
func (d *Distributed) GlobalMetrics(ctx context.Context, endpoint string) (EndpointMetrics, bool) {
	if !d.failover.IsDegraded() {
		if m, ok := d.writer.GlobalMetrics(ctx, endpoint); ok {
			return EndpointMetrics{EndpointSummary: m.EndpointSummary, Day: m.Day, Source: SourceGlobal}, true
		}
	}
	return localMetrics(d.agg, endpoint)
}

// AllEndpointMetrics returns the shared view of every endpoint, or the
// local view when the store is degraded or empty.
func (d *Distributed) AllEndpointMetrics(ctx context.Context) map[string]EndpointMetrics {
	if !d.failover.IsDegraded() {
		if all := d.writer.AllEndpointMetrics(ctx); len(all) > 0 {
			out := make(map[string]EndpointMetrics, len(all))
			for name, m := range all {
				out[name] = EndpointMetrics{EndpointSummary: m.EndpointSummary, Day: m.Day, Source: SourceGlobal}
			}
			return out
		}
	}
	return allLocal(d.agg)
}

func (d *Distributed) SlowestEndpoints(ctx context.Context, limit int) []aggregator.EndpointSummary {
	return aggregator.SortSlowest(summaries(d.AllEndpointMetrics(ctx)), limit)
}

func (d *Distributed) ErrorEndpoints(ctx context.Context, limit int) []aggregator.EndpointSummary {
	return aggregator.SortErrors(summaries(d.AllEndpointMetrics(ctx)), limit)
}

func (d *Distributed) GlobalErrorRate(ctx context.Context) float64 {
	var total, errs int64
	for _, m := range d.AllEndpointMetrics(ctx) {
		total += m.TotalCount
		errs += m.ErrorCount
	}
	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total)
}

func (d *Distributed) Status() Status {
	fs := d.failover.Status()
	s := localStatus(config.ModeDistributed, d.agg)
	s.InstanceID = fs.InstanceID
	s.FallbackActive = fs.FallbackActive
	s.Failover = &fs
	s.Pending = d.writer.Pending()
	s.StartedAt = d.started
	return s
}

// Jobs returns the failover, writer and sampler jobs.
func (d *Distributed) Jobs() []schedule.Job {
	var jobs []schedule.Job
	jobs = append(jobs, d.failover.Jobs()...)
	jobs = append(jobs, d.writer.Jobs()...)
	jobs = append(jobs, d.sampler.Jobs()...)
	return jobs
}

// Start probes the store once and registers the replica.
func (d *Distributed) Start(ctx context.Context) error {
	d.started = d.now()
	if err := d.failover.Probe(ctx); err != nil {
		d.logger.Warn("Shared store unreachable at start", "error", err)
	}
	d.failover.Start(ctx)
	d.logger.Info("Collector started")
	return nil
}

// Stop flushes buffered records, publishes pending counters, drains the
// backlog and closes an owned store client.
func (d *Distributed) Stop(ctx context.Context) error {
	d.writer.Flush(ctx)
	if err := d.sampler.PublishQPS(ctx); err != nil && !errors.Is(err, failover.ErrDegraded) {
		d.logger.Debug("Final QPS publication failed", "error", err)
	}
	d.failover.Stop(ctx)

	if d.owned {
		if err := d.client.Close(); err != nil {
			return fmt.Errorf("failed to close store client: %w", err)
		}
	}
	d.logger.Info("Collector stopped", "total_requests", d.agg.TotalRequests())
	return nil
}

func (d *Distributed) Reset() { d.agg.Reset() }

func summaries(all map[string]EndpointMetrics) map[string]aggregator.EndpointSummary {
	out := make(map[string]aggregator.EndpointSummary, len(all))
	for name, m := range all {
		out[name] = m.EndpointSummary
	}
	return out
}
