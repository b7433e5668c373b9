package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "store.address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateCollector(&cfg.Collector)...)
	if cfg.Collector.Mode == ModeDistributed {
		errs = append(errs, validateStore(&cfg.Store)...)
		errs = append(errs, validateWriter(&cfg.Writer)...)
		errs = append(errs, validateFailover(&cfg.Failover)...)
	}
	errs = append(errs, validateSampler(&cfg.Sampler)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateCollector(cfg *CollectorConfig) []FieldError {
	var errs []FieldError

	if cfg.Mode != ModeLocal && cfg.Mode != ModeDistributed {
		errs = append(errs, FieldError{
			Field:   "collector.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'local' or 'distributed'", cfg.Mode),
		})
	}
	if cfg.WindowSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "collector.window_size",
			Message: "window size must be positive",
		})
	}
	if cfg.QPSWindow <= 0 {
		errs = append(errs, FieldError{
			Field:   "collector.qps_window",
			Message: "qps window must be positive",
		})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	if cfg.Address == "" {
		errs = append(errs, FieldError{
			Field:   "store.address",
			Message: "address is required in distributed mode",
		})
	} else if u, err := url.Parse(cfg.Address); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
		errs = append(errs, FieldError{
			Field:   "store.address",
			Message: fmt.Sprintf("invalid address %q: must be a redis:// or rediss:// URL", cfg.Address),
		})
	}
	if cfg.PoolSize < 0 {
		errs = append(errs, FieldError{
			Field:   "store.pool_size",
			Message: "pool size must be non-negative",
		})
	}

	ttls := map[string]time.Duration{
		"store.ttl.stat":       cfg.TTL.Stat,
		"store.ttl.latency":    cfg.TTL.Latency,
		"store.ttl.unique":     cfg.TTL.Unique,
		"store.ttl.qps":        cfg.TTL.QPS,
		"store.ttl.error_rank": cfg.TTL.ErrorRank,
		"store.ttl.p99":        cfg.TTL.P99,
		"store.ttl.heartbeat":  cfg.TTL.Heartbeat,
	}
	for field, ttl := range ttls {
		if ttl < time.Second {
			errs = append(errs, FieldError{
				Field:   field,
				Message: "ttl must be at least 1s",
			})
		}
	}

	return errs
}

func validateWriter(cfg *WriterConfig) []FieldError {
	var errs []FieldError

	if cfg.BatchSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "writer.batch_size",
			Message: "batch size must be positive",
		})
	}
	if cfg.FlushInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "writer.flush_interval",
			Message: "flush interval must be positive",
		})
	}
	if cfg.LatencySetSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "writer.latency_set_size",
			Message: "latency set size must be positive",
		})
	}
	if cfg.ReadConcurrency <= 0 {
		errs = append(errs, FieldError{
			Field:   "writer.read_concurrency",
			Message: "read concurrency must be positive",
		})
	}

	return errs
}

func validateFailover(cfg *FailoverConfig) []FieldError {
	var errs []FieldError

	if cfg.ProbeInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "failover.probe_interval",
			Message: "probe interval must be positive",
		})
	}
	if cfg.ProbeTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "failover.probe_timeout",
			Message: "probe timeout must be positive",
		})
	} else if cfg.ProbeInterval > 0 && cfg.ProbeTimeout > cfg.ProbeInterval {
		errs = append(errs, FieldError{
			Field:   "failover.probe_timeout",
			Message: "probe timeout must not exceed the probe interval",
		})
	}
	if cfg.FailureThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "failover.failure_threshold",
			Message: "failure threshold must be positive",
		})
	}
	if cfg.QueueCapacity <= 0 {
		errs = append(errs, FieldError{
			Field:   "failover.queue_capacity",
			Message: "queue capacity must be positive",
		})
	}
	if cfg.DrainBatchSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "failover.drain_batch_size",
			Message: "drain batch size must be positive",
		})
	}
	if cfg.DrainInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "failover.drain_interval",
			Message: "drain interval must be positive",
		})
	}
	if cfg.RecordTTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "failover.record_ttl",
			Message: "record ttl must be positive",
		})
	}
	errs = append(errs, validateRate("failover.normal_sample_rate", cfg.NormalSampleRate)...)
	errs = append(errs, validateRate("failover.fallback_sample_rate", cfg.FallbackSampleRate)...)

	return errs
}

func validateSampler(cfg *SamplerConfig) []FieldError {
	var errs []FieldError

	if cfg.DecisionTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "sampler.decision_ttl",
			Message: "decision ttl must be non-negative",
		})
	}
	if cfg.SlowThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "sampler.slow_threshold",
			Message: "slow threshold must be positive",
		})
	}
	errs = append(errs, validateRate("sampler.default_rate", cfg.DefaultRate)...)

	for i, tier := range cfg.Tiers {
		field := fmt.Sprintf("sampler.tiers[%d]", i)
		errs = append(errs, validateRate(field+".rate", tier.Rate)...)
		if tier.MaxQPS < 0 {
			errs = append(errs, FieldError{
				Field:   field + ".max_qps",
				Message: "max qps must be non-negative",
			})
		}
		if i > 0 && tier.MaxQPS != 0 && cfg.Tiers[i-1].MaxQPS != 0 && tier.MaxQPS <= cfg.Tiers[i-1].MaxQPS {
			errs = append(errs, FieldError{
				Field:   field + ".max_qps",
				Message: "tiers must be ordered by increasing max qps",
			})
		}
		if tier.MaxQPS == 0 && i != len(cfg.Tiers)-1 {
			errs = append(errs, FieldError{
				Field:   field + ".max_qps",
				Message: "only the last tier may be unbounded",
			})
		}
	}

	if cfg.P99WindowSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "sampler.p99_window_size",
			Message: "p99 window size must be positive",
		})
	}

	return errs
}

func validateRate(field string, rate float64) []FieldError {
	if rate <= 0 || rate > 1.0 {
		return []FieldError{{
			Field:   field,
			Message: fmt.Sprintf("rate %v must be in (0.0, 1.0]", rate),
		}}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if !strings.Contains(cfg.ListenAddress, ":") {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: must be host:port", cfg.ListenAddress),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if cfg.Metrics.IsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	paths := []struct {
		field string
		path  string
	}{
		{"telemetry.health.liveness_path", cfg.Health.LivenessPath},
		{"telemetry.health.readiness_path", cfg.Health.ReadinessPath},
		{"telemetry.health.status_path", cfg.Health.StatusPath},
		{"telemetry.health.version_path", cfg.Health.VersionPath},
	}
	for _, p := range paths {
		if !strings.HasPrefix(p.path, "/") {
			errs = append(errs, FieldError{
				Field:   p.field,
				Message: "path must start with /",
			})
		}
	}
	if cfg.Health.CheckTimeout > 60*time.Second {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.check_timeout",
			Message: "check timeout exceeds reasonable limit (60s)",
		})
	}

	return errs
}
