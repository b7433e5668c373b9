// Package aggregator provides the per-process latency, error and throughput
// aggregation for instrumented endpoints.
//
// An Aggregator keeps one set of counters per endpoint. Counters (total,
// errors, latency sum, max and min) are lock-free atomics updated with
// compare-and-swap loops; the latency window is a fixed-capacity ring of the
// most recent samples guarded by a narrow per-endpoint RWMutex. Percentiles
// are computed on demand from a sorted copy of the window, so a snapshot
// reflects the last WindowSize samples rather than the endpoint lifetime.
//
// # Usage
//
//	agg := aggregator.New(10000, 60)
//
//	agg.RequestStarted()
//	start := time.Now()
//	err := handle()
//	agg.Record("OrderService.list", time.Since(start).Milliseconds(), err == nil)
//	agg.RequestEnded()
//
//	snap := agg.Snapshot("OrderService.list")
//	fmt.Println(snap.P50, snap.P95, snap.P99)
//
// # Percentiles
//
// For a window of n samples sorted ascending, the p-th percentile is the
// sample at index floor(n*p), clamped to n-1. An endpoint with no samples
// reports a zero snapshot. The reported minimum is 0 until the first sample.
//
// # Throughput
//
// Throughput is counted in a ring of per-second slots indexed by
// epochSecond mod slots. A slot is reset the first time a new second
// writes to it, which makes the counters approximate under contention.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reset is intended for
// administrative use; records racing with it may survive the reset.
package aggregator
