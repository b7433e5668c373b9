package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/pulse/pkg/aggregator"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/failover"
	"mercator-hq/pulse/pkg/schedule"
	"mercator-hq/pulse/pkg/store"
	"mercator-hq/pulse/pkg/telemetry/metrics"
	"mercator-hq/pulse/pkg/telemetry/tracing"
)

// Decision reasons.
const (
	ReasonCached   = "cached"
	ReasonDisabled = "disabled"
	ReasonDegraded = "degraded"
	ReasonSlow     = "slow"
	ReasonTier     = "tier"
	ReasonDefault  = "default"
)

// maxCached bounds the decision and slow-flag caches. A full cache is
// cleared rather than evicted entry by entry.
const maxCached = 10000

var errStoreUnavailable = errors.New("store unavailable")

// Decision is a cached sampling decision.
type Decision struct {
	Sampled bool      `json:"sampled"`
	Rate    float64   `json:"rate"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

type slowFlag struct {
	slow bool
	at   time.Time
}

// Sampler decides per call whether the full observation is written to the
// shared store.
type Sampler struct {
	client   store.Client
	keys     store.Keys
	failover *failover.Manager
	cfg      config.SamplerConfig
	ttl      config.TTLConfig

	mu        sync.RWMutex
	decisions map[string]Decision
	slow      map[string]slowFlag

	bufMu   sync.Mutex
	buffers map[string]*P99Buffer
	calls   map[string]*atomic.Int64

	metrics *metrics.Collector
	tracer  *tracing.Tracer
	logger  *slog.Logger
	now     func() time.Time
	rand    func() float64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// WithMetrics sets the self-metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Sampler) { s.metrics = c }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Sampler) { s.tracer = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithRand replaces the uniform [0,1) source.
func WithRand(fn func() float64) Option {
	return func(s *Sampler) { s.rand = fn }
}

// New creates a Sampler.
func New(client store.Client, keys store.Keys, fm *failover.Manager, cfg config.SamplerConfig, ttl config.TTLConfig, opts ...Option) *Sampler {
	s := &Sampler{
		client:    client,
		keys:      keys,
		failover:  fm,
		cfg:       cfg,
		ttl:       ttl,
		decisions: make(map[string]Decision),
		slow:      make(map[string]slowFlag),
		buffers:   make(map[string]*P99Buffer),
		calls:     make(map[string]*atomic.Int64),
		logger:    slog.Default(),
		now:       time.Now,
		rand:      rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sampler")
	return s
}

// RateForQPS maps a QPS estimate through the tier step function. A tier
// with MaxQPS 0 matches any QPS. Without a matching tier the rate is 1.
func RateForQPS(tiers []config.SampleTier, qps float64) float64 {
	for _, t := range tiers {
		if t.MaxQPS <= 0 || qps < t.MaxQPS {
			return t.Rate
		}
	}
	return 1
}

// ShouldSample decides whether the call to endpoint is written to the
// shared store. It never panics and never returns an error; failures in
// the decision path fall back to the default rate.
func (s *Sampler) ShouldSample(endpoint string) (sampled bool) {
	endpoint = aggregator.NormalizeEndpoint(endpoint)
	now := s.now()

	if d, ok := s.cached(endpoint, now); ok {
		s.metrics.RecordSampleDecision(d.Sampled, ReasonCached)
		return d.Sampled
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sampling decision panicked", "endpoint", endpoint, "panic", r)
			sampled = s.cfg.DefaultRate >= 1 || s.safeDraw() < s.cfg.DefaultRate
			s.remember(endpoint, Decision{Sampled: sampled, Rate: s.cfg.DefaultRate, Reason: ReasonDefault, At: now})
			s.metrics.RecordSampleDecision(sampled, ReasonDefault)
		}
	}()

	rate, reason := s.decide(context.Background(), endpoint, now)
	sampled = rate >= 1 || s.rand() < rate
	s.remember(endpoint, Decision{Sampled: sampled, Rate: rate, Reason: reason, At: now})
	s.metrics.RecordSampleDecision(sampled, reason)
	s.metrics.SetLastSampleRate(rate)
	return sampled
}

// decide returns the sample rate for endpoint and the reason it was chosen.
func (s *Sampler) decide(ctx context.Context, endpoint string, now time.Time) (float64, string) {
	if !s.cfg.IsEnabled() {
		return s.failover.SampleRate(), ReasonDisabled
	}
	if s.failover.IsDegraded() {
		return s.failover.SampleRate(), ReasonDegraded
	}

	slow, err := s.isSlow(ctx, endpoint, now)
	if err != nil {
		return s.cfg.DefaultRate, ReasonDefault
	}
	if slow {
		return 1, ReasonSlow
	}

	qps, err := s.globalQPS(ctx, endpoint, now)
	if err != nil {
		return s.cfg.DefaultRate, ReasonDefault
	}
	return min(RateForQPS(s.cfg.Tiers, qps), s.failover.NormalSampleRate()), ReasonTier
}

func (s *Sampler) cached(endpoint string, now time.Time) (Decision, bool) {
	if s.cfg.DecisionTTL <= 0 {
		return Decision{}, false
	}
	s.mu.RLock()
	d, ok := s.decisions[endpoint]
	s.mu.RUnlock()
	if !ok || now.Sub(d.At) >= s.cfg.DecisionTTL {
		return Decision{}, false
	}
	return d, true
}

func (s *Sampler) remember(endpoint string, d Decision) {
	s.mu.Lock()
	if len(s.decisions) >= maxCached {
		clear(s.decisions)
	}
	s.decisions[endpoint] = d
	s.mu.Unlock()
}

// CurrentRate returns the rate of the last decision for endpoint, or the
// failover rate when no decision was made yet.
func (s *Sampler) CurrentRate(endpoint string) float64 {
	s.mu.RLock()
	d, ok := s.decisions[aggregator.NormalizeEndpoint(endpoint)]
	s.mu.RUnlock()
	if !ok {
		return s.failover.SampleRate()
	}
	return d.Rate
}

// IsGlobalSlow reports whether the published P99 of endpoint exceeds the
// slow threshold. The flag is cached for SlowFlagTTL. Store failures read
// as not slow.
func (s *Sampler) IsGlobalSlow(endpoint string) bool {
	if s.failover.IsDegraded() {
		return false
	}
	slow, err := s.isSlow(context.Background(), aggregator.NormalizeEndpoint(endpoint), s.now())
	return err == nil && slow
}

func (s *Sampler) isSlow(ctx context.Context, endpoint string, now time.Time) (bool, error) {
	if s.cfg.SlowFlagTTL > 0 {
		s.mu.RLock()
		f, ok := s.slow[endpoint]
		s.mu.RUnlock()
		if ok && now.Sub(f.at) < s.cfg.SlowFlagTTL {
			return f.slow, nil
		}
	}

	var p99 float64
	ok := s.failover.Run(func() error {
		v, err := s.client.ZScore(ctx, s.keys.P99(now), store.Sanitize(endpoint)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		p99 = v
		return err
	})
	if !ok {
		return false, errStoreUnavailable
	}

	slow := p99 > float64(s.cfg.SlowThreshold.Milliseconds())
	s.mu.Lock()
	if len(s.slow) >= maxCached {
		clear(s.slow)
	}
	s.slow[endpoint] = slowFlag{slow: slow, at: now}
	s.mu.Unlock()
	return slow, nil
}

// globalQPS estimates the fleet-wide QPS of endpoint from the per-minute
// counters. Until the current minute has seen a full publish interval the
// previous minute is included, since the current counter is still missing
// or partial. Today's total is used only when neither counter exists.
func (s *Sampler) globalQPS(ctx context.Context, endpoint string, now time.Time) (float64, error) {
	elapsed := float64(now.Second()) + float64(now.Nanosecond())/1e9
	young := elapsed < s.cfg.QPSPublishInterval.Seconds()

	var qps float64
	ok := s.failover.Run(func() error {
		vals, err := s.client.MGet(ctx,
			s.keys.QPS(endpoint, now),
			s.keys.QPS(endpoint, now.Add(-time.Minute)),
		).Result()
		if err != nil {
			return err
		}
		cur, curOK := counterValue(vals, 0)
		prev, prevOK := counterValue(vals, 1)

		switch {
		case curOK && !young:
			qps = float64(cur) / max(elapsed, 1)
			return nil
		case prevOK:
			qps = float64(prev+cur) / (60 + elapsed)
			return nil
		case curOK:
			qps = float64(cur) / max(elapsed, 1)
			return nil
		}

		total, err := s.client.HGet(ctx, s.keys.Stat(endpoint, now), store.FieldTotalCount).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		u := now.UTC()
		midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		qps = float64(total) / max(u.Sub(midnight).Seconds(), 1)
		return nil
	})
	if !ok {
		return 0, errStoreUnavailable
	}
	return qps, nil
}

// ObserveCall counts a call toward the shared per-minute QPS counter.
func (s *Sampler) ObserveCall(endpoint string) {
	endpoint = aggregator.NormalizeEndpoint(endpoint)
	s.bufMu.Lock()
	c, ok := s.calls[endpoint]
	if !ok {
		c = &atomic.Int64{}
		s.calls[endpoint] = c
	}
	s.bufMu.Unlock()
	c.Add(1)
}

// RecordLatency adds a sample to the local P99 buffer of endpoint.
func (s *Sampler) RecordLatency(endpoint string, latencyMs int64) {
	s.buffer(aggregator.NormalizeEndpoint(endpoint)).Add(latencyMs)
}

func (s *Sampler) buffer(endpoint string) *P99Buffer {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	b, ok := s.buffers[endpoint]
	if !ok {
		b = NewP99Buffer(s.cfg.P99WindowSize)
		s.buffers[endpoint] = b
	}
	return b
}

// LocalP99 returns this replica's unpublished P99 of endpoint.
func (s *Sampler) LocalP99(endpoint string) (int64, bool) {
	s.bufMu.Lock()
	b, ok := s.buffers[aggregator.NormalizeEndpoint(endpoint)]
	s.bufMu.Unlock()
	if !ok {
		return 0, false
	}
	return b.P99()
}

// PublishP99 writes the local P99 of every endpoint with samples into the
// shared P99 set and clears the published buffers. The last replica to
// publish an endpoint wins.
func (s *Sampler) PublishP99(ctx context.Context) (err error) {
	s.bufMu.Lock()
	buffers := make(map[string]*P99Buffer, len(s.buffers))
	for name, b := range s.buffers {
		buffers[name] = b
	}
	s.bufMu.Unlock()

	members := make([]redis.Z, 0, len(buffers))
	published := make([]*P99Buffer, 0, len(buffers))
	for name, b := range buffers {
		if p99, ok := b.P99(); ok {
			members = append(members, redis.Z{Score: float64(p99), Member: store.Sanitize(name)})
			published = append(published, b)
		}
	}
	if len(members) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "sampler.publish_p99")
	defer func() {
		tracing.SetPublishAttributes(span, "p99", len(members))
		tracing.End(span, err)
	}()

	now := s.now()
	key := s.keys.P99(now)
	var writeErr error
	ok := s.failover.Run(func() error {
		_, writeErr = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, key, members...)
			pipe.Expire(ctx, key, s.ttl.P99)
			return nil
		})
		return writeErr
	})
	s.metrics.RecordPublish("p99", ok, len(members))
	if !ok {
		if writeErr != nil {
			return fmt.Errorf("publish p99: %w", writeErr)
		}
		return failover.ErrDegraded
	}

	for _, b := range published {
		b.Reset()
	}
	s.logger.Debug("Published local P99", "endpoints", len(members))
	return nil
}

// PublishQPS adds the calls observed since the last publication to the
// shared per-minute counters. Counts are dropped when the store cannot be
// written.
func (s *Sampler) PublishQPS(ctx context.Context) (err error) {
	counts := make(map[string]int64)
	s.bufMu.Lock()
	for name, c := range s.calls {
		if n := c.Swap(0); n > 0 {
			counts[name] = n
		}
	}
	s.bufMu.Unlock()
	if len(counts) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "sampler.publish_qps")
	defer func() {
		tracing.SetPublishAttributes(span, "qps", len(counts))
		tracing.End(span, err)
	}()

	now := s.now()
	var writeErr error
	ok := s.failover.Run(func() error {
		_, writeErr = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for name, n := range counts {
				key := s.keys.QPS(name, now)
				pipe.IncrBy(ctx, key, n)
				pipe.Expire(ctx, key, s.ttl.QPS)
			}
			return nil
		})
		return writeErr
	})
	s.metrics.RecordPublish("qps", ok, len(counts))
	if !ok {
		if writeErr != nil {
			return fmt.Errorf("publish qps: %w", writeErr)
		}
		return failover.ErrDegraded
	}
	return nil
}

// GlobalSlowEndpoints lists the endpoints whose published P99 exceeds the
// slow threshold today. Names are in their sanitized key form.
func (s *Sampler) GlobalSlowEndpoints(ctx context.Context) []string {
	return failover.ExecuteWithFallback(s.failover, func() ([]string, error) {
		return s.client.ZRangeByScore(ctx, s.keys.P99(s.now()), &redis.ZRangeBy{
			Min: "(" + strconv.FormatInt(s.cfg.SlowThreshold.Milliseconds(), 10),
			Max: "+inf",
		}).Result()
	}, nil)
}

// Jobs returns the publication jobs.
func (s *Sampler) Jobs() []schedule.Job {
	return []schedule.Job{
		{Name: "sampler.publish_p99", Every: s.cfg.PublishInterval, Run: s.PublishP99},
		{Name: "sampler.publish_qps", Every: s.cfg.QPSPublishInterval, Run: s.PublishQPS},
	}
}

// counterValue parses the i-th MGET reply. Missing keys and non-integer
// values report false.
func counterValue(vals []interface{}, i int) (int64, bool) {
	if i >= len(vals) {
		return 0, false
	}
	str, ok := vals[i].(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// safeDraw returns a draw from the configured source, or from the global
// source when the configured one panics.
func (s *Sampler) safeDraw() (v float64) {
	defer func() {
		if recover() != nil {
			v = rand.Float64()
		}
	}()
	return s.rand()
}
