package config

import (
	"strings"

	"github.com/marmos91/yeep/pkg/apiclient"
	"github.com/marmos91/yeep/pkg/session"
)

// DefaultMetricsPort is the port keepalive serves /metrics on when no port
// is configured.
const DefaultMetricsPort = 9464

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (empty strings, 0 durations) are replaced with sensible
// defaults. Explicitly set values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyClientDefaults(&cfg.Client)
}

// applyLoggingDefaults sets logging defaults.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "WARN"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// SampleRate of 0 would drop every trace once enabled
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "inuse_space"}
	}
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyClientDefaults sets client runtime defaults.
func applyClientDefaults(cfg *ClientConfig) {
	if cfg.AuthType == "" {
		cfg.AuthType = string(session.AuthBearer)
	}
	cfg.AuthType = strings.ToLower(cfg.AuthType)

	if cfg.Timeout == 0 {
		cfg.Timeout = apiclient.DefaultTimeout
	}
	if cfg.SchemaPath == "" {
		cfg.SchemaPath = apiclient.DefaultSchemaPath
	}
	if cfg.CallableMethod == "" {
		cfg.CallableMethod = "POST"
	}
	cfg.CallableMethod = strings.ToUpper(cfg.CallableMethod)

	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = session.DefaultRefreshMargin
	}

	if cfg.Retry.Floor == 0 {
		cfg.Retry.Floor = session.DefaultRetryFloor
	}
	if cfg.Retry.MaxInterval == 0 {
		cfg.Retry.MaxInterval = session.DefaultRetryMaxInterval
	}
	// Jitter of 0 is a valid explicit choice, so it is never overridden
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is used when no configuration file is found, and by "config init"
// to generate a starting file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Client: ClientConfig{
			Retry: RetryConfig{
				Jitter: session.DefaultRetryJitter,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
