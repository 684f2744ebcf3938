package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/santif/pgbridge"

// Tracer is the interface for tracing
type Tracer interface {
	// Start creates a new span and context
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// TracerProvider returns the underlying TracerProvider
	TracerProvider() trace.TracerProvider

	// Shutdown flushes pending spans and shuts down the tracer provider
	Shutdown(ctx context.Context) error
}

// TracingConfig contains configuration for tracing
type TracingConfig struct {
	// Enabled determines if tracing is enabled
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// ServiceName is the name reported in the trace resource
	ServiceName string `json:"service_name" yaml:"service_name" toml:"service_name" validate:"required_if=Enabled true"`

	// ServiceInstance is the instance ID reported in the trace resource
	ServiceInstance string `json:"service_instance" yaml:"service_instance" toml:"service_instance"`

	// Endpoint is the OTLP collector endpoint (host:port)
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint" validate:"required_if=Enabled true"`

	// Protocol is the OTLP protocol (grpc or http)
	Protocol string `json:"protocol" yaml:"protocol" toml:"protocol" validate:"omitempty,oneof=grpc http"`

	// Insecure disables TLS towards the collector
	Insecure bool `json:"insecure" yaml:"insecure" toml:"insecure"`

	// Headers are the headers to include in OTLP requests
	Headers map[string]string `json:"headers" yaml:"headers" toml:"headers"`

	// SamplingRate is the sampling rate (0.0 to 1.0)
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" toml:"sampling_rate" validate:"min=0,max=1"`

	// BatchTimeout is the maximum time to wait before exporting a batch
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout" toml:"batch_timeout" validate:"min=0"`

	// MaxExportBatchSize is the maximum number of spans to export in a batch
	MaxExportBatchSize int `json:"max_export_batch_size" yaml:"max_export_batch_size" toml:"max_export_batch_size" validate:"min=0"`

	// MaxQueueSize is the maximum queue size for spans waiting to be exported
	MaxQueueSize int `json:"max_queue_size" yaml:"max_queue_size" toml:"max_queue_size" validate:"min=0"`
}

// DefaultTracingConfig returns the default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:            false,
		ServiceName:        "pgbridge",
		Protocol:           "grpc",
		Endpoint:           "localhost:4317",
		SamplingRate:       1.0,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// otelTracer implements the Tracer interface using OpenTelemetry
type otelTracer struct {
	tracer   trace.Tracer
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracerWithConfig creates a tracer exporting over OTLP, or a no-op tracer when disabled.
// The created provider becomes the global OpenTelemetry provider.
func NewTracerWithConfig(config TracingConfig) (Tracer, error) {
	if !config.Enabled {
		return NoOpTracer(), nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceInstanceID(config.ServiceInstance),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createOTLPExporter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if config.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(config.BatchTimeout))
	}
	if config.MaxExportBatchSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(config.MaxExportBatchSize))
	}
	if config.MaxQueueSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxQueueSize(config.MaxQueueSize))
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, batchOpts...),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return NewTracerWithProvider(provider), nil
}

// NewTracerWithProvider wraps an existing provider.
// Shutdown is forwarded when the provider supports it.
func NewTracerWithProvider(provider trace.TracerProvider) Tracer {
	shutdown := func(context.Context) error { return nil }
	if s, ok := provider.(interface{ Shutdown(context.Context) error }); ok {
		shutdown = s.Shutdown
	}

	return &otelTracer{
		tracer:   provider.Tracer(instrumentationName),
		provider: provider,
		shutdown: shutdown,
	}
}

// createOTLPExporter creates an OTLP exporter based on the configuration
func createOTLPExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	switch config.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))

	default:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(config.Headers))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	}
}

func (t *otelTracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

func (t *otelTracer) TracerProvider() trace.TracerProvider {
	return t.provider
}

func (t *otelTracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// NoOpTracer returns a tracer whose spans are never recorded
func NoOpTracer() Tracer {
	return &noopTracer{provider: noop.NewTracerProvider()}
}

type noopTracer struct {
	provider trace.TracerProvider
}

func (t *noopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (t *noopTracer) TracerProvider() trace.TracerProvider {
	return t.provider
}

func (t *noopTracer) Shutdown(_ context.Context) error {
	return nil
}

// DBAttributes returns the span attributes describing a statement sent to a database system
func DBAttributes(system, statement string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("db.system", system)}
	if statement != "" {
		attrs = append(attrs, attribute.String("db.statement", statement))
	}
	return attrs
}

// EndSpan records err on span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
