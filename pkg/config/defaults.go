package config

import "time"

// Default values for configuration fields.
const (
	// Collector defaults
	DefaultCollectorMode = ModeDistributed
	DefaultWindowSize    = 10000
	DefaultQPSWindow     = 60
	DefaultMaxEndpoints  = 5000

	// Store defaults
	DefaultStoreAddress      = "redis://127.0.0.1:6379/0"
	DefaultStoreKeyPrefix    = "log:"
	DefaultStoreDialTimeout  = 2 * time.Second
	DefaultStoreReadTimeout  = time.Second
	DefaultStoreWriteTimeout = time.Second
	DefaultStorePoolSize     = 10
	DefaultStatTTL           = 7 * 24 * time.Hour
	DefaultLatencyTTL        = 24 * time.Hour
	DefaultUniqueTTL         = 7 * 24 * time.Hour
	DefaultQPSTTL            = 120 * time.Second
	DefaultErrorRankTTL      = 24 * time.Hour
	DefaultP99TTL            = 24 * time.Hour
	DefaultHeartbeatTTL      = 5 * time.Minute

	// Writer defaults
	DefaultWriterBatchSize       = 100
	DefaultWriterFlushInterval   = 5 * time.Second
	DefaultWriterLatencySetSize  = 10000
	DefaultWriterReadConcurrency = 8
	DefaultWriterTimeout         = 3 * time.Second

	// Failover defaults
	DefaultProbeInterval      = 5 * time.Second
	DefaultProbeTimeout       = 3 * time.Second
	DefaultFailureThreshold   = 3
	DefaultQueueCapacity      = 10000
	DefaultDrainInterval      = 10 * time.Second
	DefaultDrainBatchSize     = 500
	DefaultDrainFollowup      = time.Second
	DefaultRecordTTL          = 24 * time.Hour
	DefaultNormalSampleRate   = 1.0
	DefaultFallbackSampleRate = 0.1
	DefaultHeartbeatInterval  = 30 * time.Second

	// Sampler defaults
	DefaultSamplerEnabled            = true
	DefaultDecisionTTL               = time.Second
	DefaultSlowFlagTTL               = 10 * time.Second
	DefaultSlowThreshold             = time.Second
	DefaultSamplerRate               = 1.0
	DefaultP99WindowSize             = 1000
	DefaultSamplerPublishInterval    = time.Minute
	DefaultSamplerQPSPublishInterval = 5 * time.Second

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:9464"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultPrometheusPath   = "/metrics"
	DefaultMetricsNamespace = "pulse"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingService   = "pulse"
	DefaultOTLPTimeout      = 10 * time.Second
	DefaultLivenessPath     = "/health"
	DefaultReadinessPath    = "/ready"
	DefaultStatusPath       = "/status"
	DefaultVersionPath      = "/version"
	DefaultCheckTimeout     = 5 * time.Second
)

// Collector modes.
const (
	ModeLocal       = "local"
	ModeDistributed = "distributed"
)

// DefaultSampleTiers returns the default QPS-to-rate step function.
func DefaultSampleTiers() []SampleTier {
	return []SampleTier{
		{MaxQPS: 1000, Rate: 1.0},
		{MaxQPS: 10000, Rate: 0.5},
		{MaxQPS: 100000, Rate: 0.1},
		{MaxQPS: 0, Rate: 0.01},
	}
}

// DefaultDurationBuckets returns the default store round-trip histogram buckets.
func DefaultDurationBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3}
}

// NewDefault returns a configuration with every default applied.
func NewDefault() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Collector defaults
	if cfg.Collector.Mode == "" {
		cfg.Collector.Mode = DefaultCollectorMode
	}
	if cfg.Collector.WindowSize == 0 {
		cfg.Collector.WindowSize = DefaultWindowSize
	}
	if cfg.Collector.QPSWindow == 0 {
		cfg.Collector.QPSWindow = DefaultQPSWindow
	}
	if cfg.Collector.MaxEndpoints == 0 {
		cfg.Collector.MaxEndpoints = DefaultMaxEndpoints
	}

	applyStoreDefaults(&cfg.Store)

	// Writer defaults
	if cfg.Writer.BatchSize == 0 {
		cfg.Writer.BatchSize = DefaultWriterBatchSize
	}
	if cfg.Writer.FlushInterval == 0 {
		cfg.Writer.FlushInterval = DefaultWriterFlushInterval
	}
	if cfg.Writer.LatencySetSize == 0 {
		cfg.Writer.LatencySetSize = DefaultWriterLatencySetSize
	}
	if cfg.Writer.ReadConcurrency == 0 {
		cfg.Writer.ReadConcurrency = DefaultWriterReadConcurrency
	}
	if cfg.Writer.Timeout == 0 {
		cfg.Writer.Timeout = DefaultWriterTimeout
	}

	applyFailoverDefaults(&cfg.Failover)
	applySamplerDefaults(&cfg.Sampler)

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Address == "" {
		cfg.Address = DefaultStoreAddress
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultStoreKeyPrefix
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultStoreDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultStoreReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultStoreWriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = DefaultStorePoolSize
	}
	if cfg.TTL.Stat == 0 {
		cfg.TTL.Stat = DefaultStatTTL
	}
	if cfg.TTL.Latency == 0 {
		cfg.TTL.Latency = DefaultLatencyTTL
	}
	if cfg.TTL.Unique == 0 {
		cfg.TTL.Unique = DefaultUniqueTTL
	}
	if cfg.TTL.QPS == 0 {
		cfg.TTL.QPS = DefaultQPSTTL
	}
	if cfg.TTL.ErrorRank == 0 {
		cfg.TTL.ErrorRank = DefaultErrorRankTTL
	}
	if cfg.TTL.P99 == 0 {
		cfg.TTL.P99 = DefaultP99TTL
	}
	if cfg.TTL.Heartbeat == 0 {
		cfg.TTL.Heartbeat = DefaultHeartbeatTTL
	}
}

func applyFailoverDefaults(cfg *FailoverConfig) {
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.DrainBatchSize == 0 {
		cfg.DrainBatchSize = DefaultDrainBatchSize
	}
	if cfg.DrainFollowup == 0 {
		cfg.DrainFollowup = DefaultDrainFollowup
	}
	if cfg.RecordTTL == 0 {
		cfg.RecordTTL = DefaultRecordTTL
	}
	if cfg.NormalSampleRate == 0 {
		cfg.NormalSampleRate = DefaultNormalSampleRate
	}
	if cfg.FallbackSampleRate == 0 {
		cfg.FallbackSampleRate = DefaultFallbackSampleRate
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

func applySamplerDefaults(cfg *SamplerConfig) {
	if cfg.Enabled == nil {
		enabled := DefaultSamplerEnabled
		cfg.Enabled = &enabled
	}
	if cfg.DecisionTTL == 0 {
		cfg.DecisionTTL = DefaultDecisionTTL
	}
	if cfg.SlowFlagTTL == 0 {
		cfg.SlowFlagTTL = DefaultSlowFlagTTL
	}
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}
	if cfg.DefaultRate == 0 {
		cfg.DefaultRate = DefaultSamplerRate
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultSampleTiers()
	}
	if cfg.P99WindowSize == 0 {
		cfg.P99WindowSize = DefaultP99WindowSize
	}
	if cfg.PublishInterval == 0 {
		cfg.PublishInterval = DefaultSamplerPublishInterval
	}
	if cfg.QPSPublishInterval == 0 {
		cfg.QPSPublishInterval = DefaultSamplerQPSPublishInterval
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Enabled == nil {
		enabled := DefaultMetricsEnabled
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.DurationBuckets) == 0 {
		cfg.Metrics.DurationBuckets = DefaultDurationBuckets()
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Tracing.OTLP.Timeout == 0 {
		cfg.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.StatusPath == "" {
		cfg.Health.StatusPath = DefaultStatusPath
	}
	if cfg.Health.VersionPath == "" {
		cfg.Health.VersionPath = DefaultVersionPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultCheckTimeout
	}
}
