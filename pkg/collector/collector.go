package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/pulse/pkg/aggregator"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/failover"
	"mercator-hq/pulse/pkg/schedule"
	"mercator-hq/pulse/pkg/store"
	"mercator-hq/pulse/pkg/telemetry/metrics"
	"mercator-hq/pulse/pkg/telemetry/tracing"
)

// Metric sources.
const (
	SourceLocal  = "local"
	SourceGlobal = "global"
)

// MetricsCollector is the entry point of the instrumentation layer.
type MetricsCollector interface {
	// RequestStarted and RequestEnded track in-flight calls.
	RequestStarted()
	RequestEnded()

	// Record observes one completed call. callerID may be empty.
	Record(endpoint string, latencyMs int64, success bool, callerID string)

	// RecordError observes a failed call without a latency.
	RecordError(endpoint string)

	// ShouldSample reports whether the full observation of a call to
	// endpoint is worth taking.
	ShouldSample(endpoint string) bool

	Snapshot(endpoint string) aggregator.PercentileSnapshot
	DistributionBuckets(endpoint string) []aggregator.Bucket
	GlobalMetrics(ctx context.Context, endpoint string) (EndpointMetrics, bool)
	AllEndpointMetrics(ctx context.Context) map[string]EndpointMetrics
	SlowestEndpoints(ctx context.Context, limit int) []aggregator.EndpointSummary
	ErrorEndpoints(ctx context.Context, limit int) []aggregator.EndpointSummary
	GlobalErrorRate(ctx context.Context) float64
	Status() Status

	// Jobs returns the background jobs the collector needs scheduled.
	Jobs() []schedule.Job
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Reset clears local statistics.
	Reset()
}

// EndpointMetrics is the view of one endpoint returned by the read
// accessors. Source tells whether it comes from the shared store or from
// this replica only.
type EndpointMetrics struct {
	aggregator.EndpointSummary
	Day    string `json:"day,omitempty"`
	Source string `json:"source"`
}

// Status is served on the status endpoint.
type Status struct {
	Mode           string           `json:"mode"`
	InstanceID     string           `json:"instanceId"`
	FallbackActive bool             `json:"fallbackActive"`
	Failover       *failover.Status `json:"failover,omitempty"`
	Concurrent     int64            `json:"concurrent"`
	Peak           int64            `json:"peak"`
	CurrentQPS     int64            `json:"currentQps"`
	AvgQPS         float64          `json:"avgQps"`
	TotalRequests  int64            `json:"totalRequests"`
	Endpoints      int              `json:"endpoints"`
	Pending        int              `json:"pending,omitempty"`
	StartedAt      time.Time        `json:"startedAt,omitzero"`
}

// Option configures a collector.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	client  store.Client
	now     func() time.Time
	rand    func() float64
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the self-metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithClient uses client instead of dialing the configured store. The
// caller keeps ownership of client.
func WithClient(client store.Client) Option {
	return func(o *options) { o.client = client }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand replaces the uniform [0,1) source used for sampling.
func WithRand(fn func() float64) Option {
	return func(o *options) { o.rand = fn }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds the collector variant selected by cfg.Collector.Mode.
func New(cfg *config.Config, opts ...Option) (MetricsCollector, error) {
	switch cfg.Collector.Mode {
	case config.ModeLocal:
		return NewLocal(cfg, opts...), nil
	case config.ModeDistributed:
		return NewDistributed(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown collector mode %q", cfg.Collector.Mode)
	}
}

func newAggregator(cfg *config.Config, o options) *aggregator.Aggregator {
	return aggregator.New(cfg.Collector.WindowSize, cfg.Collector.QPSWindow,
		aggregator.WithClock(o.now),
		aggregator.WithMaxEndpoints(cfg.Collector.MaxEndpoints),
	)
}

func registerGauges(m *metrics.Collector, agg *aggregator.Aggregator) {
	m.RegisterGauge("concurrent_calls", "Calls currently in flight.", func() float64 {
		return float64(agg.Concurrent())
	})
	m.RegisterGauge("peak_concurrent_calls", "Highest number of calls in flight since start.", func() float64 {
		return float64(agg.Peak())
	})
	m.RegisterGauge("current_qps", "Calls in the last completed second.", func() float64 {
		return float64(agg.CurrentQPS())
	})
}

func localMetrics(agg *aggregator.Aggregator, endpoint string) (EndpointMetrics, bool) {
	s, ok := agg.Summary(endpoint)
	if !ok {
		return EndpointMetrics{}, false
	}
	return EndpointMetrics{EndpointSummary: s, Source: SourceLocal}, true
}

func allLocal(agg *aggregator.Aggregator) map[string]EndpointMetrics {
	all := agg.All()
	out := make(map[string]EndpointMetrics, len(all))
	for name, s := range all {
		out[name] = EndpointMetrics{EndpointSummary: s, Source: SourceLocal}
	}
	return out
}

func localStatus(mode string, agg *aggregator.Aggregator) Status {
	return Status{
		Mode:          mode,
		Concurrent:    agg.Concurrent(),
		Peak:          agg.Peak(),
		CurrentQPS:    agg.CurrentQPS(),
		AvgQPS:        agg.AvgQPS(),
		TotalRequests: agg.TotalRequests(),
		Endpoints:     len(agg.Endpoints()),
	}
}
