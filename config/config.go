package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/observability"
)

// Encoding policies for parameters whose type tag is unknown
const (
	// PolicyLenient sends the value as raw bytes and logs a warning
	PolicyLenient = "lenient"

	// PolicyStrict rejects the parameter with an encoding error
	PolicyStrict = "strict"
)

// Config is the bridge configuration
type Config struct {
	// Driver selects the collaborator used to reach the database
	Driver string `json:"driver" yaml:"driver" toml:"driver" validate:"required,oneof=pgx postgres mysql sqlite3"`

	// DSN is the connection string handed to the driver.
	// When empty, Postgres drivers build it from the PG* environment variables.
	DSN string `json:"dsn" yaml:"dsn" toml:"dsn"`

	// ConnectTimeout bounds session establishment; zero means no bound
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout" validate:"min=0"`

	// StatementTimeout bounds every statement execution; zero means no bound
	StatementTimeout time.Duration `json:"statement_timeout" yaml:"statement_timeout" toml:"statement_timeout" validate:"min=0"`

	Encoding EncodingConfig `json:"encoding" yaml:"encoding" toml:"encoding"`

	Logger  observability.LoggerConfig  `json:"logger" yaml:"logger" toml:"logger"`
	Metrics observability.MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`
	Tracing observability.TracingConfig `json:"tracing" yaml:"tracing" toml:"tracing"`
}

// EncodingConfig controls parameter encoding
type EncodingConfig struct {
	// Policy is lenient or strict
	Policy string `json:"policy" yaml:"policy" toml:"policy" validate:"required,oneof=lenient strict"`
}

// Default returns the default configuration
func Default() *Config {
	obs := observability.DefaultObservabilityConfig()
	return &Config{
		Driver:         data.DriverPgx,
		ConnectTimeout: 10 * time.Second,
		Encoding:       EncodingConfig{Policy: PolicyLenient},
		Logger:         obs.Logger,
		Metrics:        obs.Metrics,
		Tracing:        obs.Tracing,
	}
}

// ResolveDSN returns the configured DSN, falling back to the libpq environment for Postgres drivers
func (c *Config) ResolveDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case data.DriverPgx, data.DriverLibPQ:
		return data.PostgresConfigFromEnv().DSN()
	}
	return ""
}

// Observability returns the observability part of the configuration
func (c *Config) Observability() observability.ObservabilityConfig {
	return observability.ObservabilityConfig{
		Logger:  c.Logger,
		Metrics: c.Metrics,
		Tracing: c.Tracing,
	}
}

// Reloadable is an interface for components that can apply a new configuration while running
type Reloadable interface {
	// Reload applies the settings of cfg that can change at runtime
	Reload(cfg *Config) error
}

// Live is a thread-safe holder for the current configuration.
// Updates are pushed to every subscribed Reloadable.
type Live struct {
	mu          sync.RWMutex
	current     Config
	subscribers []Reloadable
}

// NewLive creates a holder with an initial configuration
func NewLive(cfg *Config) (*Live, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	return &Live{current: *cfg}, nil
}

// Get returns a copy of the current configuration
func (l *Live) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cfg := l.current
	return &cfg
}

// Subscribe registers r to receive future updates
func (l *Live) Subscribe(r Reloadable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, r)
}

// Update replaces the current configuration and reloads every subscriber.
// All subscribers are reloaded even if some fail; their errors are joined.
func (l *Live) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("new configuration cannot be nil")
	}

	l.mu.Lock()
	l.current = *cfg
	subscribers := make([]Reloadable, len(l.subscribers))
	copy(subscribers, l.subscribers)
	l.mu.Unlock()

	var errs []error
	for _, s := range subscribers {
		if err := s.Reload(cfg); err != nil {
			errs = append(errs, fmt.Errorf("reload failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
