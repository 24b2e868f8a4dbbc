package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/internal/telemetry"
	"github.com/marmos91/yeep/pkg/session"
	"github.com/marmos91/yeep/pkg/yeep"
)

// Config represents the yeepctl configuration.
//
// This structure captures the static settings of the command line client:
//   - Logging configuration
//   - Telemetry/tracing and profiling configuration
//   - Metrics endpoint served by long-running commands
//   - Client runtime settings (timeouts, schema discovery, refresh policy)
//
// The server URL and credentials are not part of this file: they live in
// the credential store, one entry per named context.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (YEEP_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Client contains the settings handed to the client runtime
	Client ClientConfig `mapstructure:"client" yaml:"client" json:"client"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level" json:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format" json:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output" json:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, a span is exported for every dispatched operation and
// session transition.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint" json:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure" json:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate" json:"sample_rate"`

	// Propagate injects W3C trace context headers into outgoing calls
	Propagate bool `mapstructure:"propagate" yaml:"propagate" json:"propagate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling" json:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling of long-running
// commands such as keepalive.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint" json:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines
	// Default: ["cpu", "inuse_space"]
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines" yaml:"profile_types" json:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server of keepalive.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9464
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port" json:"port"`
}

// ClientConfig holds the client runtime settings shared by every context.
type ClientConfig struct {
	// AuthType is the session strategy used by login when none is given
	// Valid values: bearer, cookie
	// Default: bearer
	AuthType string `mapstructure:"auth_type" validate:"required,oneof=bearer cookie" yaml:"auth_type" json:"auth_type"`

	// Timeout bounds a single request
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout" json:"timeout"`

	// SchemaPath is where the service publishes its operation schema
	// Default: /api/docs
	SchemaPath string `mapstructure:"schema_path" validate:"required,startswith=/" yaml:"schema_path" json:"schema_path"`

	// CallableMethod selects which schema entries become operations
	// Default: POST
	CallableMethod string `mapstructure:"callable_method" validate:"required,oneof=GET POST PUT PATCH DELETE" yaml:"callable_method" json:"callable_method"`

	// UserAgent overrides the User-Agent header
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent,omitempty" json:"user_agent,omitempty"`

	// RefreshMargin is how long before expiry a token is refreshed
	// Default: 10s
	RefreshMargin time.Duration `mapstructure:"refresh_margin" validate:"gte=0" yaml:"refresh_margin" json:"refresh_margin"`

	// Retry shapes the backoff between failed automatic refreshes
	Retry RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`
}

// RetryConfig shapes refresh retries.
type RetryConfig struct {
	// Floor replaces a zero previous delay when computing the first retry
	// Default: 300ms
	Floor time.Duration `mapstructure:"floor" validate:"gt=0" yaml:"floor" json:"floor"`

	// MaxInterval caps every retry delay
	// Default: 10m
	MaxInterval time.Duration `mapstructure:"max_interval" validate:"gtefield=Floor" yaml:"max_interval" json:"max_interval"`

	// Jitter is the randomization factor applied to each delay (0.0 to 0.5)
	// Default: 0.2
	Jitter float64 `mapstructure:"jitter" validate:"gte=0,lte=0.5" yaml:"jitter" json:"jitter"`
}

// LoggerConfig converts the logging section for logger.Init.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// TracingConfig converts the telemetry section for telemetry.Init.
func (c *Config) TracingConfig(version string) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = c.Telemetry.Enabled
	cfg.Endpoint = c.Telemetry.Endpoint
	cfg.Insecure = c.Telemetry.Insecure
	cfg.SampleRate = c.Telemetry.SampleRate
	cfg.Propagate = c.Telemetry.Propagate
	cfg.ServiceVersion = version
	return cfg
}

// ProfilingConfig converts the profiling section for telemetry.InitProfiling.
func (c *Config) ProfilingConfig(version string) telemetry.ProfilingConfig {
	cfg := telemetry.DefaultProfilingConfig()
	cfg.Enabled = c.Telemetry.Profiling.Enabled
	cfg.Endpoint = c.Telemetry.Profiling.Endpoint
	cfg.ProfileTypes = c.Telemetry.Profiling.ProfileTypes
	cfg.ServiceVersion = version
	return cfg
}

// ClientConfigFor returns the runtime configuration for a server. An empty
// authType uses the configured default.
func (c *Config) ClientConfigFor(baseURL, authType string) (yeep.Config, error) {
	if authType == "" {
		authType = c.Client.AuthType
	}
	at, err := session.ParseAuthType(authType)
	if err != nil {
		return yeep.Config{}, err
	}

	cfg := yeep.Config{
		BaseURL:        baseURL,
		AuthType:       at,
		Timeout:        c.Client.Timeout,
		SchemaPath:     c.Client.SchemaPath,
		CallableMethod: c.Client.CallableMethod,
		UserAgent:      c.Client.UserAgent,
		RefreshMargin:  c.Client.RefreshMargin,
		Retry: session.RetryPolicy{
			Floor:       c.Client.Retry.Floor,
			MaxInterval: c.Client.Retry.MaxInterval,
			Jitter:      c.Client.Retry.Jitter,
		},
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (YEEP_*)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error: defaults are returned.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: YEEP_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("YEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "yeep")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "yeep")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
