package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention PULSE_SECTION_FIELD (e.g., PULSE_STORE_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path loads the defaults only.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Collector overrides
	envString("PULSE_COLLECTOR_MODE", &cfg.Collector.Mode)
	envString("PULSE_COLLECTOR_INSTANCE_ID", &cfg.Collector.InstanceID)
	envInt("PULSE_COLLECTOR_WINDOW_SIZE", &cfg.Collector.WindowSize)

	// Store overrides
	envString("PULSE_STORE_ADDRESS", &cfg.Store.Address)
	envString("PULSE_STORE_PASSWORD", &cfg.Store.Password)
	envString("PULSE_STORE_KEY_PREFIX", &cfg.Store.KeyPrefix)
	envInt("PULSE_STORE_POOL_SIZE", &cfg.Store.PoolSize)
	envDuration("PULSE_STORE_DIAL_TIMEOUT", &cfg.Store.DialTimeout)

	// Writer overrides
	envInt("PULSE_WRITER_BATCH_SIZE", &cfg.Writer.BatchSize)
	envDuration("PULSE_WRITER_FLUSH_INTERVAL", &cfg.Writer.FlushInterval)

	// Failover overrides
	envDuration("PULSE_FAILOVER_PROBE_INTERVAL", &cfg.Failover.ProbeInterval)
	envDuration("PULSE_FAILOVER_PROBE_TIMEOUT", &cfg.Failover.ProbeTimeout)
	envInt("PULSE_FAILOVER_FAILURE_THRESHOLD", &cfg.Failover.FailureThreshold)
	envInt("PULSE_FAILOVER_QUEUE_CAPACITY", &cfg.Failover.QueueCapacity)
	envFloat("PULSE_FAILOVER_NORMAL_SAMPLE_RATE", &cfg.Failover.NormalSampleRate)
	envFloat("PULSE_FAILOVER_FALLBACK_SAMPLE_RATE", &cfg.Failover.FallbackSampleRate)

	// Sampler overrides
	if val := os.Getenv("PULSE_SAMPLER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Sampler.Enabled = &b
		}
	}
	envFloat("PULSE_SAMPLER_DEFAULT_RATE", &cfg.Sampler.DefaultRate)
	envDuration("PULSE_SAMPLER_SLOW_THRESHOLD", &cfg.Sampler.SlowThreshold)

	// Server overrides
	envString("PULSE_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)

	// Telemetry overrides
	envString("PULSE_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("PULSE_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	if val := os.Getenv("PULSE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	if val := os.Getenv("PULSE_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	envString("PULSE_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
