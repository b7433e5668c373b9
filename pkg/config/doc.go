// Package config provides configuration management for Pulse.
//
// Configuration is read from a YAML file, completed with defaults, optionally
// overridden by environment variables and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("pulse.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("pulse.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention PULSE_SECTION_FIELD:
//
//   - PULSE_COLLECTOR_MODE overrides collector.mode
//   - PULSE_STORE_ADDRESS overrides store.address
//   - PULSE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watch observes the configuration file with fsnotify and invokes a callback
// with the freshly loaded configuration. Only the sampling rates of a running
// collector are reloadable; structural changes require a restart.
package config
