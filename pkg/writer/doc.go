// Package writer publishes observations to the shared store so that every
// replica contributes to one fleet-wide view.
//
// Records are buffered and flushed as a batch when BatchSize records are
// pending or FlushInterval has elapsed, whichever comes first. A flush
// groups records by endpoint and day and sends one pipeline of counter
// increments, latency samples and unique-caller updates. Batches that
// cannot be written, or that arrive while the failover manager is degraded,
// are handed to its backlog and replayed later through ReplayBatch.
//
// The read side (GlobalMetrics, AllEndpointMetrics and friends) returns
// empty results while the store is unavailable; callers fall back to local
// data.
package writer
