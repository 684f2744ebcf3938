package observability

import (
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Counter represents a monotonically increasing counter metric
type Counter interface {
	// Inc increments the counter by 1
	Inc()

	// Add adds the given value to the counter
	Add(value float64)

	// WithLabels returns a counter with the given labels
	WithLabels(labels map[string]string) Counter
}

// Histogram represents a histogram metric for measuring distributions
type Histogram interface {
	// Observe adds a single observation to the histogram
	Observe(value float64)

	// WithLabels returns a histogram with the given labels
	WithLabels(labels map[string]string) Histogram
}

// Gauge represents a gauge metric that can go up and down
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(value float64)
	Sub(value float64)

	// WithLabels returns a gauge with the given labels
	WithLabels(labels map[string]string) Gauge
}

// Metrics is the interface for metrics collection
type Metrics interface {
	// Counter creates or retrieves a counter metric.
	// Asking twice for the same name returns the same underlying vector.
	Counter(name string, help string, labels ...string) Counter

	// Histogram creates or retrieves a histogram metric
	Histogram(name string, help string, buckets []float64, labels ...string) Histogram

	// Gauge creates or retrieves a gauge metric
	Gauge(name string, help string, labels ...string) Gauge

	// Registry returns the underlying Prometheus registry
	Registry() *prometheus.Registry
}

// MetricsConfig contains configuration for metrics
type MetricsConfig struct {
	// Enabled determines if metrics collection is enabled
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Namespace is the namespace prefix for all metrics
	Namespace string `json:"namespace" yaml:"namespace" toml:"namespace" validate:"omitempty,alphanum"`

	// Subsystem is the subsystem prefix for all metrics
	Subsystem string `json:"subsystem" yaml:"subsystem" toml:"subsystem"`
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "pgbridge",
	}
}

// prometheusMetrics implements the Metrics interface using Prometheus
type prometheusMetrics struct {
	registry   *prometheus.Registry
	config     MetricsConfig
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance with the default configuration
func NewMetrics() Metrics {
	return NewMetricsWithConfig(DefaultMetricsConfig())
}

// NewMetricsWithConfig creates a new metrics instance with its own registry
func NewMetricsWithConfig(config MetricsConfig) Metrics {
	if !config.Enabled {
		return NoOpMetrics()
	}

	return &prometheusMetrics{
		registry:   prometheus.NewRegistry(),
		config:     config,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func (m *prometheusMetrics) Counter(name string, help string, labels ...string) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, exists := m.counters[name]
	if !exists {
		counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
		m.registry.MustRegister(counter)
		m.counters[name] = counter
	}

	return &prometheusCounter{counter: counter, labelNames: labels}
}

func (m *prometheusMetrics) Histogram(name string, help string, buckets []float64, labels ...string) Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	histogram, exists := m.histograms[name]
	if !exists {
		histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, labels)
		m.registry.MustRegister(histogram)
		m.histograms[name] = histogram
	}

	return &prometheusHistogram{histogram: histogram, labelNames: labels}
}

func (m *prometheusMetrics) Gauge(name string, help string, labels ...string) Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()

	gauge, exists := m.gauges[name]
	if !exists {
		gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
		m.registry.MustRegister(gauge)
		m.gauges[name] = gauge
	}

	return &prometheusGauge{gauge: gauge, labelNames: labels}
}

func (m *prometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText writes every metric gathered from m in the Prometheus text exposition format
func WriteText(w io.Writer, m Metrics) error {
	families, err := m.Registry().Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// labelValues orders the values of labels by names; missing labels are empty
func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}
	return values
}

// prometheusCounter implements the Counter interface using Prometheus
type prometheusCounter struct {
	counter    *prometheus.CounterVec
	labelNames []string
}

func (c *prometheusCounter) Inc() {
	c.counter.WithLabelValues(make([]string, len(c.labelNames))...).Inc()
}

func (c *prometheusCounter) Add(value float64) {
	c.counter.WithLabelValues(make([]string, len(c.labelNames))...).Add(value)
}

func (c *prometheusCounter) WithLabels(labels map[string]string) Counter {
	return &prometheusBoundCounter{counter: c.counter.WithLabelValues(labelValues(c.labelNames, labels)...)}
}

type prometheusBoundCounter struct {
	counter prometheus.Counter
}

func (c *prometheusBoundCounter) Inc() {
	c.counter.Inc()
}

func (c *prometheusBoundCounter) Add(value float64) {
	c.counter.Add(value)
}

func (c *prometheusBoundCounter) WithLabels(map[string]string) Counter {
	return c
}

// prometheusHistogram implements the Histogram interface using Prometheus
type prometheusHistogram struct {
	histogram  *prometheus.HistogramVec
	labelNames []string
}

func (h *prometheusHistogram) Observe(value float64) {
	h.histogram.WithLabelValues(make([]string, len(h.labelNames))...).Observe(value)
}

func (h *prometheusHistogram) WithLabels(labels map[string]string) Histogram {
	return &prometheusBoundHistogram{histogram: h.histogram.WithLabelValues(labelValues(h.labelNames, labels)...)}
}

type prometheusBoundHistogram struct {
	histogram prometheus.Observer
}

func (h *prometheusBoundHistogram) Observe(value float64) {
	h.histogram.Observe(value)
}

func (h *prometheusBoundHistogram) WithLabels(map[string]string) Histogram {
	return h
}

// prometheusGauge implements the Gauge interface using Prometheus
type prometheusGauge struct {
	gauge      *prometheus.GaugeVec
	labelNames []string
}

func (g *prometheusGauge) bound() prometheus.Gauge {
	return g.gauge.WithLabelValues(make([]string, len(g.labelNames))...)
}

func (g *prometheusGauge) Set(value float64) {
	g.bound().Set(value)
}

func (g *prometheusGauge) Inc() {
	g.bound().Inc()
}

func (g *prometheusGauge) Dec() {
	g.bound().Dec()
}

func (g *prometheusGauge) Add(value float64) {
	g.bound().Add(value)
}

func (g *prometheusGauge) Sub(value float64) {
	g.bound().Sub(value)
}

func (g *prometheusGauge) WithLabels(labels map[string]string) Gauge {
	return &prometheusBoundGauge{gauge: g.gauge.WithLabelValues(labelValues(g.labelNames, labels)...)}
}

type prometheusBoundGauge struct {
	gauge prometheus.Gauge
}

func (g *prometheusBoundGauge) Set(value float64) {
	g.gauge.Set(value)
}

func (g *prometheusBoundGauge) Inc() {
	g.gauge.Inc()
}

func (g *prometheusBoundGauge) Dec() {
	g.gauge.Dec()
}

func (g *prometheusBoundGauge) Add(value float64) {
	g.gauge.Add(value)
}

func (g *prometheusBoundGauge) Sub(value float64) {
	g.gauge.Sub(value)
}

func (g *prometheusBoundGauge) WithLabels(map[string]string) Gauge {
	return g
}
