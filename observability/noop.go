package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// NoOpLogger returns a no-op implementation of the Logger interface
func NoOpLogger() Logger {
	return &noopLogger{}
}

// noopLogger is a no-op implementation of the Logger interface
type noopLogger struct{}

func (l *noopLogger) Info(msg string, fields ...Field)             {}
func (l *noopLogger) Error(msg string, err error, fields ...Field) {}
func (l *noopLogger) Debug(msg string, fields ...Field)            {}
func (l *noopLogger) Warn(msg string, fields ...Field)             {}
func (l *noopLogger) With(fields ...Field) Logger                  { return l }
func (l *noopLogger) WithContext(ctx context.Context) Logger       { return l }
func (l *noopLogger) SetLevel(level LogLevel)                      {}

// NoOpMetrics returns a no-op implementation of the Metrics interface.
// Its registry is empty and private to the instance.
func NoOpMetrics() Metrics {
	return &noopMetrics{registry: prometheus.NewRegistry()}
}

// noopMetrics is a no-op implementation of the Metrics interface
type noopMetrics struct {
	registry *prometheus.Registry
}

func (m *noopMetrics) Counter(name string, help string, labels ...string) Counter {
	return &noopCounter{}
}

func (m *noopMetrics) Histogram(name string, help string, buckets []float64, labels ...string) Histogram {
	return &noopHistogram{}
}

func (m *noopMetrics) Gauge(name string, help string, labels ...string) Gauge {
	return &noopGauge{}
}

func (m *noopMetrics) Registry() *prometheus.Registry {
	return m.registry
}

type noopCounter struct{}

func (c *noopCounter) Inc()                                        {}
func (c *noopCounter) Add(value float64)                           {}
func (c *noopCounter) WithLabels(labels map[string]string) Counter { return c }

type noopHistogram struct{}

func (h *noopHistogram) Observe(value float64)                         {}
func (h *noopHistogram) WithLabels(labels map[string]string) Histogram { return h }

type noopGauge struct{}

func (g *noopGauge) Set(value float64)                         {}
func (g *noopGauge) Inc()                                      {}
func (g *noopGauge) Dec()                                      {}
func (g *noopGauge) Add(value float64)                         {}
func (g *noopGauge) Sub(value float64)                         {}
func (g *noopGauge) WithLabels(labels map[string]string) Gauge { return g }
