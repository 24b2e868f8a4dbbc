package telemetry

// Config holds OpenTelemetry configuration
type Config struct {
	// Enabled indicates whether tracing is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// ServiceName is the name reported to the trace backend
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`

	// ServiceVersion is the version of the reporting binary
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version" json:"service_version"`

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint" validate:"required_if=Enabled true"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure" json:"insecure"`

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate" validate:"gte=0,lte=1"`

	// Propagate injects W3C trace context headers into dispatched calls
	Propagate bool `mapstructure:"propagate" yaml:"propagate" json:"propagate"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "yeepctl",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
		Propagate:      true,
	}
}
