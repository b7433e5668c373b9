package store

import (
	"strings"
	"time"
)

// Stat hash fields.
const (
	FieldTotalCount   = "totalCount"
	FieldErrorCount   = "errorCount"
	FieldTotalLatency = "totalResponseTime"
	FieldLatencyCount = "latencyCount"
	FieldMaxLatency   = "maxResponseTime"
	FieldMinLatency   = "minResponseTime"
	FieldEndpoint     = "endpoint"
)

const (
	dayLayout    = "20060102"
	minuteLayout = "1504"
)

var sanitizer = strings.NewReplacer(":", "_", "/", "_", " ", "_")

// Sanitize makes an endpoint name safe for use inside a key. Separators
// and spaces become underscores; an empty name becomes "unknown".
func Sanitize(endpoint string) string {
	if strings.TrimSpace(endpoint) == "" {
		return "unknown"
	}
	return sanitizer.Replace(endpoint)
}

// Day returns the day bucket of t. Buckets are UTC so that replicas in
// different zones share keys.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Keys builds the store keys under a common prefix.
//
//	<prefix>stat:<day>:<endpoint>          hash of counters
//	<prefix>latency:<day>:<endpoint>       ranked latency samples
//	<prefix>uv:<day>:<endpoint>            unique-caller HyperLogLog
//	<prefix>qps:<day>:<endpoint>:<HHmm>    per-minute request counter
//	<prefix>error:<day>:rank               endpoints ranked by errors
//	<prefix>p99:<day>:global               published P99 per endpoint
//	<prefix>instances:heartbeat            live replicas
type Keys struct {
	prefix string
}

// NewKeys returns a key builder for prefix.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Prefix returns the key prefix.
func (k Keys) Prefix() string {
	return k.prefix
}

// Stat returns the counter hash key of endpoint for the day of t.
func (k Keys) Stat(endpoint string, t time.Time) string {
	return k.prefix + "stat:" + Day(t) + ":" + Sanitize(endpoint)
}

// StatPattern matches every counter hash of the day of t.
func (k Keys) StatPattern(t time.Time) string {
	return k.prefix + "stat:" + Day(t) + ":*"
}

// Latency returns the ranked latency set key of endpoint for the day of t.
func (k Keys) Latency(endpoint string, t time.Time) string {
	return k.prefix + "latency:" + Day(t) + ":" + Sanitize(endpoint)
}

// Unique returns the unique-caller key of endpoint for the day of t.
func (k Keys) Unique(endpoint string, t time.Time) string {
	return k.prefix + "uv:" + Day(t) + ":" + Sanitize(endpoint)
}

// QPS returns the request counter key of endpoint for the minute of t.
func (k Keys) QPS(endpoint string, t time.Time) string {
	return k.prefix + "qps:" + Day(t) + ":" + Sanitize(endpoint) + ":" + t.UTC().Format(minuteLayout)
}

// ErrorRank returns the error ranking key for the day of t.
func (k Keys) ErrorRank(t time.Time) string {
	return k.prefix + "error:" + Day(t) + ":rank"
}

// P99 returns the published P99 key for the day of t.
func (k Keys) P99(t time.Time) string {
	return k.prefix + "p99:" + Day(t) + ":global"
}

// Heartbeat returns the instance heartbeat key.
func (k Keys) Heartbeat() string {
	return k.prefix + "instances:heartbeat"
}

// EndpointFromStat extracts the sanitized endpoint from a counter hash key.
func (k Keys) EndpointFromStat(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, k.prefix+"stat:")
	if !ok {
		return "", false
	}
	_, endpoint, ok := strings.Cut(rest, ":")
	if !ok || endpoint == "" {
		return "", false
	}
	return endpoint, true
}
