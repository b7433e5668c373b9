package aggregator

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/axiomhq/hyperloglog"
)

// minSentinel marks a minimum that has not seen a sample yet.
const minSentinel = math.MaxInt64

// endpointStats holds the counters of one endpoint.
type endpointStats struct {
	name string

	total     atomic.Int64
	errors    atomic.Int64
	latencies atomic.Int64
	sum       atomic.Int64
	max       atomic.Int64
	min       atomic.Int64

	window *latencyWindow

	uniqueMu sync.Mutex
	unique   *hyperloglog.Sketch
}

func newEndpointStats(name string, windowSize int) *endpointStats {
	s := &endpointStats{
		name:   name,
		window: newLatencyWindow(windowSize),
	}
	s.min.Store(minSentinel)
	return s
}

func (s *endpointStats) record(latencyMs int64, success bool) {
	s.total.Add(1)
	if !success {
		s.errors.Add(1)
	}
	s.latencies.Add(1)
	s.sum.Add(latencyMs)
	storeMax(&s.max, latencyMs)
	storeMin(&s.min, latencyMs)
	// The window is written last so that any sample a reader copies is
	// already covered by max and min.
	s.window.add(latencyMs)
}

func (s *endpointStats) recordError() {
	s.total.Add(1)
	s.errors.Add(1)
}

func (s *endpointStats) observeCaller(callerID string) {
	s.uniqueMu.Lock()
	if s.unique == nil {
		s.unique = hyperloglog.New()
	}
	s.unique.Insert([]byte(callerID))
	s.uniqueMu.Unlock()
}

func (s *endpointStats) uniqueCallers() uint64 {
	s.uniqueMu.Lock()
	defer s.uniqueMu.Unlock()
	if s.unique == nil {
		return 0
	}
	return s.unique.Estimate()
}

func (s *endpointStats) snapshot() PercentileSnapshot {
	sorted := s.window.sorted()
	if len(sorted) == 0 {
		return PercentileSnapshot{}
	}

	snap := PercentileSnapshot{
		Count: len(sorted),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
		Max:   s.max.Load(),
		Min:   s.min.Load(),
	}
	if snap.Min == minSentinel {
		snap.Min = 0
	}
	if n := s.latencies.Load(); n > 0 {
		snap.Avg = float64(s.sum.Load()) / float64(n)
	}
	return snap
}

func (s *endpointStats) summary() EndpointSummary {
	// errors is loaded before total so that errors <= total holds for the
	// returned pair.
	errs := s.errors.Load()
	total := s.total.Load()
	snap := s.snapshot()

	out := EndpointSummary{
		Endpoint:      s.name,
		TotalCount:    total,
		ErrorCount:    errs,
		TotalLatency:  s.sum.Load(),
		AvgLatency:    snap.Avg,
		MaxLatency:    snap.Max,
		MinLatency:    snap.Min,
		P50:           snap.P50,
		P95:           snap.P95,
		P99:           snap.P99,
		UniqueCallers: s.uniqueCallers(),
	}
	if total > 0 {
		out.ErrorRate = float64(errs) / float64(total)
	}
	return out
}

func (s *endpointStats) distribution() []Bucket {
	buckets := newBuckets()
	for _, v := range s.window.sorted() {
		for i := range buckets {
			if buckets[i].contains(v) {
				buckets[i].Count++
				break
			}
		}
	}
	return buckets
}

// storeMax raises dst to v with a compare-and-swap loop.
func storeMax(dst *atomic.Int64, v int64) {
	for {
		cur := dst.Load()
		if v <= cur || dst.CompareAndSwap(cur, v) {
			return
		}
	}
}

// storeMin lowers dst to v with a compare-and-swap loop.
func storeMin(dst *atomic.Int64, v int64) {
	for {
		cur := dst.Load()
		if v >= cur || dst.CompareAndSwap(cur, v) {
			return
		}
	}
}
