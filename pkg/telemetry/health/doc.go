// Package health provides health checks and probe endpoints for Pulse.
//
// # Endpoints
//
//   - /health: liveness, the process is running
//   - /ready: readiness, component checks
//   - /status: collector status, including whether fallback is active
//   - /version: build information
//
// # Required and optional checks
//
// Checks registered with RegisterCheck are required: if one fails the
// readiness endpoint answers 503. Checks registered with
// RegisterOptionalCheck only downgrade the status to "degraded" and the
// endpoint keeps answering 200. The shared store is optional because the
// collector keeps working on local data while it is unreachable.
//
// # Probing
//
// The failover manager uses Run to execute the store check with the
// checker's timeout:
//
//	checker := health.New(cfg.Failover.ProbeTimeout)
//	checker.RegisterOptionalCheck("store", store.Ping(client))
//	result, err := checker.Run(ctx, "store")
package health
