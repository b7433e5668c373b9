// Package failover decides whether the shared store is usable and keeps
// observations safe while it is not.
//
// The Manager is a two-state machine. It starts HEALTHY and moves to
// DEGRADED after FailureThreshold consecutive failures, counted from both
// periodic probes and failed store operations. A single successful probe
// moves it back to HEALTHY and schedules an immediate backlog drain. Each
// transition is logged once.
//
// While degraded, operations wrapped with Run or ExecuteWithFallback are
// skipped and callers queue their records with QueueForLater. The backlog is
// bounded and evicts its oldest record on overflow. Drain replays queued
// records in batches through the Replayer, dropping records older than
// RecordTTL.
//
//	m := failover.New(cfg.Failover, store.Ping(client), failover.WithMetrics(collector))
//	m.SetReplayer(w)
//	for _, job := range m.Jobs() {
//	    scheduler.Add(job)
//	}
package failover
