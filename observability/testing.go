package observability

import (
	"io"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// NewNoOpLogger creates a logger that discards all output, useful for testing
func NewNoOpLogger() Logger {
	config := DefaultLoggerConfig()
	config.Level = LogLevelError
	return NewLoggerWithWriter(io.Discard, config)
}

// NewTestLogger creates a debug-level JSON logger for testing that writes to w
func NewTestLogger(w io.Writer) Logger {
	config := DefaultLoggerConfig()
	config.Level = LogLevelDebug
	config.Format = LogFormatJSON
	return NewLoggerWithWriter(w, config)
}

// NewRecordingTracer creates a tracer whose finished spans are kept in the returned recorder
func NewRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracerWithProvider(provider), recorder
}
