// Package sampler gates the distributed write path with a per-call
// sampling decision.
//
// ShouldSample reuses a fresh cached decision when one exists. Otherwise an
// endpoint whose published P99 exceeds SlowThreshold is always sampled, and
// any other endpoint is sampled with the probability its global QPS maps to
// in the tier table, capped by the failover manager's normal rate. While
// the store is degraded the failover fallback rate applies and the store is
// not read. Any failure in the decision path yields DefaultRate.
//
// Each replica publishes the P99 of its own recent samples per endpoint on
// a schedule (PublishP99) and its call counts into shared per-minute
// counters (PublishQPS). The published P99 is last-write-wins across
// replicas, which is enough for a sampling gate.
package sampler
