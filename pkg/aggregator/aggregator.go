package aggregator

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// UnknownEndpoint replaces empty endpoint names.
	UnknownEndpoint = "unknown"

	// OtherEndpoint collects endpoints beyond the configured cap.
	OtherEndpoint = "other"
)

// Aggregator tracks per-endpoint counters and latency windows for one process.
type Aggregator struct {
	endpoints    sync.Map // string -> *endpointStats
	count        atomic.Int64
	windowSize   int
	maxEndpoints int

	qps        *qpsWindow
	concurrent atomic.Int64
	peak       atomic.Int64

	now func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for throughput slots.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithMaxEndpoints caps the number of distinct endpoints. Endpoints beyond
// the cap are folded into OtherEndpoint. A value <= 0 disables the cap.
func WithMaxEndpoints(n int) Option {
	return func(a *Aggregator) {
		a.maxEndpoints = n
	}
}

// New creates an Aggregator keeping windowSize latency samples per endpoint
// and qpsSeconds one-second throughput slots.
func New(windowSize, qpsSeconds int, opts ...Option) *Aggregator {
	a := &Aggregator{
		windowSize: windowSize,
		qps:        newQPSWindow(qpsSeconds),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NormalizeEndpoint maps an empty or blank endpoint name to UnknownEndpoint.
func NormalizeEndpoint(endpoint string) string {
	if strings.TrimSpace(endpoint) == "" {
		return UnknownEndpoint
	}
	return endpoint
}

func (a *Aggregator) stats(endpoint string) *endpointStats {
	endpoint = NormalizeEndpoint(endpoint)
	if s, ok := a.endpoints.Load(endpoint); ok {
		return s.(*endpointStats)
	}
	if a.maxEndpoints > 0 && a.count.Load() >= int64(a.maxEndpoints) {
		endpoint = OtherEndpoint
		if s, ok := a.endpoints.Load(endpoint); ok {
			return s.(*endpointStats)
		}
	}
	s, loaded := a.endpoints.LoadOrStore(endpoint, newEndpointStats(endpoint, a.windowSize))
	if !loaded {
		a.count.Add(1)
	}
	return s.(*endpointStats)
}

func (a *Aggregator) lookup(endpoint string) (*endpointStats, bool) {
	s, ok := a.endpoints.Load(NormalizeEndpoint(endpoint))
	if !ok {
		return nil, false
	}
	return s.(*endpointStats), true
}

// RequestStarted increments the in-flight gauge and raises the peak.
func (a *Aggregator) RequestStarted() {
	storeMax(&a.peak, a.concurrent.Add(1))
}

// RequestEnded decrements the in-flight gauge.
func (a *Aggregator) RequestEnded() {
	if v := a.concurrent.Add(-1); v < 0 {
		a.concurrent.CompareAndSwap(v, 0)
	}
}

// Record counts one completed call. Negative latencies are recorded as 0.
func (a *Aggregator) Record(endpoint string, latencyMs int64, success bool) {
	if latencyMs < 0 {
		latencyMs = 0
	}
	a.stats(endpoint).record(latencyMs, success)
	a.qps.tick(a.now())
}

// RecordError counts a failed call for which no latency is available.
// It increments both the total and the error count.
func (a *Aggregator) RecordError(endpoint string) {
	a.stats(endpoint).recordError()
	a.qps.tick(a.now())
}

// ObserveCaller adds callerID to the endpoint's unique-caller estimate.
// Empty caller ids are ignored.
func (a *Aggregator) ObserveCaller(endpoint, callerID string) {
	if callerID == "" {
		return
	}
	a.stats(endpoint).observeCaller(callerID)
}

// Snapshot returns the percentile snapshot of endpoint. Unknown endpoints
// return a zero snapshot.
func (a *Aggregator) Snapshot(endpoint string) PercentileSnapshot {
	s, ok := a.lookup(endpoint)
	if !ok {
		return PercentileSnapshot{}
	}
	return s.snapshot()
}

// DistributionBuckets returns the latency distribution of the endpoint's
// window over the fixed bands.
func (a *Aggregator) DistributionBuckets(endpoint string) []Bucket {
	s, ok := a.lookup(endpoint)
	if !ok {
		return newBuckets()
	}
	return s.distribution()
}

// Summary returns the counters and percentiles of endpoint.
func (a *Aggregator) Summary(endpoint string) (EndpointSummary, bool) {
	s, ok := a.lookup(endpoint)
	if !ok {
		return EndpointSummary{}, false
	}
	return s.summary(), true
}

// Endpoints returns the tracked endpoint names in ascending order.
func (a *Aggregator) Endpoints() []string {
	var names []string
	a.endpoints.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	slices.Sort(names)
	return names
}

// All returns the summaries of every tracked endpoint.
func (a *Aggregator) All() map[string]EndpointSummary {
	out := make(map[string]EndpointSummary)
	a.endpoints.Range(func(key, value any) bool {
		out[key.(string)] = value.(*endpointStats).summary()
		return true
	})
	return out
}

// Slowest returns up to limit endpoints ordered by average latency, slowest first.
func (a *Aggregator) Slowest(limit int) []EndpointSummary {
	return SortSlowest(a.All(), limit)
}

// ErrorEndpoints returns up to limit endpoints with at least one error,
// ordered by error rate, highest first.
func (a *Aggregator) ErrorEndpoints(limit int) []EndpointSummary {
	return SortErrors(a.All(), limit)
}

// GlobalErrorRate returns errors over calls across all endpoints.
func (a *Aggregator) GlobalErrorRate() float64 {
	var total, errs int64
	a.endpoints.Range(func(_, value any) bool {
		s := value.(*endpointStats)
		errs += s.errors.Load()
		total += s.total.Load()
		return true
	})
	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total)
}

// TotalRequests returns the number of calls counted across all endpoints.
func (a *Aggregator) TotalRequests() int64 {
	var total int64
	a.endpoints.Range(func(_, value any) bool {
		total += value.(*endpointStats).total.Load()
		return true
	})
	return total
}

// CurrentQPS returns the number of calls counted in the last completed second.
func (a *Aggregator) CurrentQPS() int64 {
	return a.qps.current(a.now())
}

// AvgQPS returns the mean calls per second over the seconds of the window
// that saw traffic.
func (a *Aggregator) AvgQPS() float64 {
	return a.qps.average(a.now())
}

// Concurrent returns the number of in-flight calls.
func (a *Aggregator) Concurrent() int64 {
	return a.concurrent.Load()
}

// Peak returns the highest in-flight count observed since the last reset.
func (a *Aggregator) Peak() int64 {
	return a.peak.Load()
}

// Reset discards every endpoint, the throughput window and the peak.
func (a *Aggregator) Reset() {
	a.endpoints.Range(func(key, _ any) bool {
		a.endpoints.Delete(key)
		return true
	})
	a.count.Store(0)
	a.qps.reset()
	a.peak.Store(a.concurrent.Load())
}

// SortSlowest orders summaries by average latency, slowest first, and
// truncates to limit when limit > 0.
func SortSlowest(all map[string]EndpointSummary, limit int) []EndpointSummary {
	out := make([]EndpointSummary, 0, len(all))
	for _, s := range all {
		out = append(out, s)
	}
	slices.SortFunc(out, func(x, y EndpointSummary) int {
		if c := cmp.Compare(y.AvgLatency, x.AvgLatency); c != 0 {
			return c
		}
		return cmp.Compare(x.Endpoint, y.Endpoint)
	})
	return truncate(out, limit)
}

// SortErrors keeps summaries with errors, orders them by error rate,
// highest first, and truncates to limit when limit > 0.
func SortErrors(all map[string]EndpointSummary, limit int) []EndpointSummary {
	out := make([]EndpointSummary, 0, len(all))
	for _, s := range all {
		if s.ErrorCount > 0 {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(x, y EndpointSummary) int {
		if c := cmp.Compare(y.ErrorRate, x.ErrorRate); c != 0 {
			return c
		}
		return cmp.Compare(x.Endpoint, y.Endpoint)
	})
	return truncate(out, limit)
}

func truncate(s []EndpointSummary, limit int) []EndpointSummary {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
