package observability

// ObservabilityConfig contains configuration for all observability components
type ObservabilityConfig struct {
	// Logger contains configuration for the logger
	Logger LoggerConfig `json:"logger" yaml:"logger" toml:"logger"`

	// Metrics contains configuration for metrics collection
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`

	// Tracing contains configuration for tracing
	Tracing TracingConfig `json:"tracing" yaml:"tracing" toml:"tracing"`
}

// DefaultObservabilityConfig returns the default observability configuration
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Logger:  DefaultLoggerConfig(),
		Metrics: DefaultMetricsConfig(),
		Tracing: DefaultTracingConfig(),
	}
}
