package config

import "time"

// Config is the root configuration structure for Pulse.
type Config struct {
	// Collector selects the collector variant and its local aggregation settings.
	Collector CollectorConfig `yaml:"collector"`

	// Store contains the shared metrics store connection and key space settings.
	Store StoreConfig `yaml:"store"`

	// Writer contains the batching settings of the distributed writer.
	Writer WriterConfig `yaml:"writer"`

	// Failover contains the health probe, backlog and replay settings.
	Failover FailoverConfig `yaml:"failover"`

	// Sampler contains the adaptive sampling settings.
	Sampler SamplerConfig `yaml:"sampler"`

	// Server contains the HTTP server settings used by "pulse run".
	Server ServerConfig `yaml:"server"`

	// Telemetry contains logging, self-metrics, tracing and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CollectorConfig contains configuration for the collector facade.
type CollectorConfig struct {
	// Mode selects the collector variant.
	// Options: "local" (in-process aggregation only),
	// "distributed" (shared store with failover)
	// Default: "distributed"
	Mode string `yaml:"mode"`

	// InstanceID identifies this replica in the shared store.
	// Default: "<hostname>-<8 hex chars>"
	InstanceID string `yaml:"instance_id"`

	// WindowSize is the capacity of the per-endpoint latency window.
	// Default: 10000
	WindowSize int `yaml:"window_size"`

	// QPSWindow is the number of one-second slots in the throughput window.
	// Default: 60
	QPSWindow int `yaml:"qps_window"`

	// MaxEndpoints caps the number of distinct endpoints tracked locally.
	// Further endpoints are folded into the "other" endpoint. A negative value
	// disables the cap.
	// Default: 5000
	MaxEndpoints int `yaml:"max_endpoints"`
}

// StoreConfig contains configuration for the shared metrics store.
type StoreConfig struct {
	// Address is the Redis connection URL.
	// Format: "redis://[:password@]host:port/db" or "rediss://..." for TLS.
	// Default: "redis://127.0.0.1:6379/0"
	Address string `yaml:"address"`

	// Password overrides the password embedded in Address.
	Password string `yaml:"password"`

	// KeyPrefix is prepended to every key written by Pulse.
	// Default: "log:"
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout bounds establishing a new connection.
	// Default: 2s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout bounds a single socket read.
	// Default: 1s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds a single socket write.
	// Default: 1s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int `yaml:"pool_size"`

	// TTL contains the expiry of each key family.
	TTL TTLConfig `yaml:"ttl"`
}

// TTLConfig contains the retention tiers of the store key families.
type TTLConfig struct {
	// Stat is the expiry of the per-endpoint counter hash.
	// Default: 168h (7 days)
	Stat time.Duration `yaml:"stat"`

	// Latency is the expiry of the ranked latency set.
	// Default: 24h
	Latency time.Duration `yaml:"latency"`

	// Unique is the expiry of the unique-caller HyperLogLog.
	// Default: 168h (7 days)
	Unique time.Duration `yaml:"unique"`

	// QPS is the expiry of the per-minute request counter. It must outlive
	// the following minute, which reads it until its own counter appears.
	// Default: 120s
	QPS time.Duration `yaml:"qps"`

	// ErrorRank is the expiry of the error ranking set.
	// Default: 24h
	ErrorRank time.Duration `yaml:"error_rank"`

	// P99 is the expiry of the published P99 set.
	// Default: 24h
	P99 time.Duration `yaml:"p99"`

	// Heartbeat is the expiry of the instance heartbeat hash.
	// Default: 5m
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// WriterConfig contains configuration for the distributed writer.
type WriterConfig struct {
	// BatchSize is the buffer size that triggers a flush.
	// Default: 100
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the maximum age of the buffer before a flush.
	// Default: 5s
	FlushInterval time.Duration `yaml:"flush_interval"`

	// LatencySetSize bounds the ranked latency set per replica and endpoint.
	// Default: 10000
	LatencySetSize int `yaml:"latency_set_size"`

	// ReadConcurrency bounds the concurrent endpoint reads of AllEndpointMetrics.
	// Default: 8
	ReadConcurrency int `yaml:"read_concurrency"`

	// Timeout bounds a single pipelined flush or read.
	// Default: 3s
	Timeout time.Duration `yaml:"timeout"`
}

// FailoverConfig contains configuration for the failover manager.
type FailoverConfig struct {
	// ProbeInterval is the period of the store health probe.
	// Default: 5s
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// ProbeTimeout bounds a single probe.
	// Default: 3s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// FailureThreshold is the number of consecutive failures that
	// switches the manager to degraded mode.
	// Default: 3
	FailureThreshold int `yaml:"failure_threshold"`

	// QueueCapacity bounds the local backlog. The oldest record is evicted
	// when the backlog is full.
	// Default: 10000
	QueueCapacity int `yaml:"queue_capacity"`

	// DrainInterval is the period of the backlog drainer.
	// Default: 10s
	DrainInterval time.Duration `yaml:"drain_interval"`

	// DrainBatchSize is the maximum number of records replayed per drain.
	// Default: 500
	DrainBatchSize int `yaml:"drain_batch_size"`

	// DrainFollowup is the delay before the next drain while records remain.
	// Default: 1s
	DrainFollowup time.Duration `yaml:"drain_followup"`

	// RecordTTL is the age after which a queued record is discarded.
	// Default: 24h
	RecordTTL time.Duration `yaml:"record_ttl"`

	// NormalSampleRate is the sample rate cap while the store is healthy.
	// Clamped to [0.01, 1.0].
	// Default: 1.0
	NormalSampleRate float64 `yaml:"normal_sample_rate"`

	// FallbackSampleRate is the fixed sample rate while degraded.
	// Default: 0.1
	FallbackSampleRate float64 `yaml:"fallback_sample_rate"`

	// HeartbeatInterval is the period of the instance heartbeat refresh.
	// Default: 30s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// SamplerConfig contains configuration for the adaptive sampler.
type SamplerConfig struct {
	// Enabled turns adaptive sampling on. When disabled every call is sampled
	// at the failover manager's current rate.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// DecisionTTL is how long a per-endpoint decision is reused.
	// Default: 1s
	DecisionTTL time.Duration `yaml:"decision_ttl"`

	// SlowFlagTTL is how long the cross-replica slow flag is cached.
	// Default: 10s
	SlowFlagTTL time.Duration `yaml:"slow_flag_ttl"`

	// SlowThreshold is the published P99 above which an endpoint is
	// always sampled.
	// Default: 1s
	SlowThreshold time.Duration `yaml:"slow_threshold"`

	// DefaultRate replaces the computed rate when the decision path fails.
	// Default: 1.0
	DefaultRate float64 `yaml:"default_rate"`

	// Tiers maps global QPS to a sample rate. Tiers are evaluated in order;
	// a tier with MaxQPS 0 matches everything.
	// Default: <1000: 1.0, <10000: 0.5, <100000: 0.1, otherwise 0.01
	Tiers []SampleTier `yaml:"tiers"`

	// P99WindowSize is the capacity of the local P99 buffer per endpoint.
	// Default: 1000
	P99WindowSize int `yaml:"p99_window_size"`

	// PublishInterval is the period of the local P99 publication.
	// Default: 1m
	PublishInterval time.Duration `yaml:"publish_interval"`

	// QPSPublishInterval is the period of the shared QPS counter update.
	// Default: 5s
	QPSPublishInterval time.Duration `yaml:"qps_publish_interval"`
}

// SampleTier is one step of the QPS-to-rate function.
type SampleTier struct {
	// MaxQPS is the exclusive upper bound of the tier. Zero means unbounded.
	MaxQPS float64 `yaml:"max_qps"`

	// Rate is the sampling probability within the tier.
	Rate float64 `yaml:"rate"`
}

// ServerConfig contains configuration for the HTTP server of "pulse run".
type ServerConfig struct {
	// ListenAddress is the address for /metrics, /health, /ready and /status.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds the graceful shutdown, including the final
	// flush of buffered records.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig contains configuration for observability of Pulse itself.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains self-metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactCallers masks caller identifiers in log attributes.
	// Default: false
	RedactCallers bool `yaml:"redact_callers"`

	// RedactPatterns contains additional redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains self-metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether self-metrics are recorded and exposed.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "pulse"
	Namespace string `yaml:"namespace"`

	// DurationBuckets defines histogram buckets for store round-trips (seconds).
	// Default: [0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3]
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "pulse"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// StatusPath is the path for the collector status endpoint.
	// Default: "/status"
	StatusPath string `yaml:"status_path"`

	// VersionPath is the path for the version information endpoint.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// IsEnabled reports whether adaptive sampling is enabled.
func (c *SamplerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsEnabled reports whether self-metrics are enabled.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
