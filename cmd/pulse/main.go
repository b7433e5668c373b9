// Pulse is an adaptive metrics collector for RPC services.
//
// Each replica aggregates call latencies, errors and throughput in process.
// In distributed mode the replicas batch their observations into a shared
// Redis store so fleet-wide percentiles, error rates and unique callers can
// be read from any instance. When the store is unhealthy writes are queued
// locally and replayed once it recovers.
//
// Usage:
//
//	# Run the collector with its metrics and health endpoints
//	pulse run --config /etc/pulse/config.yaml
//
//	# Generate synthetic load against the configured collector
//	pulse bench --calls 100000 --concurrency 32
//
//	# Show the slowest and most failing endpoints across the fleet
//	pulse top --limit 10 --output table
//
//	# Validate a configuration file
//	pulse validate --config config.yaml
//
//	# Show version information
//	pulse version
package main

func main() {
	Execute()
}
