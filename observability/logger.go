package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// NewField creates a new log field
func NewField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for structured logging
type Logger interface {
	// Info logs an informational message
	Info(msg string, fields ...Field)

	// Error logs an error message
	Error(msg string, err error, fields ...Field)

	// Debug logs a debug message
	Debug(msg string, fields ...Field)

	// Warn logs a warning message
	Warn(msg string, fields ...Field)

	// With returns a logger that adds fields to every entry
	With(fields ...Field) Logger

	// WithContext returns a logger that carries the trace of ctx
	WithContext(ctx context.Context) Logger

	// SetLevel changes the minimum level of this logger and every logger derived from it
	SetLevel(level LogLevel)
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LoggerConfig contains configuration for the logger
type LoggerConfig struct {
	// Level is the minimum log level to output
	Level LogLevel `json:"level" yaml:"level" toml:"level" validate:"required,oneof=debug info warn error"`

	// Format is the log format (json or text)
	Format LogFormat `json:"format" yaml:"format" toml:"format" validate:"required,oneof=json text"`

	// Output is where log entries go: stderr, stdout or a file path
	Output string `json:"output" yaml:"output" toml:"output"`

	// ServiceName is attached to every entry when set
	ServiceName string `json:"service_name" yaml:"service_name" toml:"service_name"`

	// ServiceInstance is attached to every entry when set
	ServiceInstance string `json:"service_instance" yaml:"service_instance" toml:"service_instance"`
}

// DefaultLoggerConfig returns the default logger configuration.
// The bridge runs inside a host process, so logs go to stderr by default.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:       LogLevelInfo,
		Format:      LogFormatJSON,
		Output:      "stderr",
		ServiceName: "pgbridge",
	}
}

// slogLogger is the implementation of the Logger interface using slog
type slogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	config LoggerConfig
}

// NewLogger creates a new logger with the default configuration
func NewLogger() Logger {
	return NewLoggerWithConfig(DefaultLoggerConfig())
}

// NewLoggerWithConfig creates a new logger with the provided configuration.
// An output file that can't be opened falls back to stderr.
func NewLoggerWithConfig(config LoggerConfig) Logger {
	var w io.Writer = os.Stderr
	switch config.Output {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	default:
		if f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}
	return NewLoggerWithWriter(w, config)
}

// NewLoggerWithWriter creates a new logger with a custom writer
func NewLoggerWithWriter(w io.Writer, config LoggerConfig) Logger {
	level := new(slog.LevelVar)
	level.Set(getLogLevel(config.Level))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if config.Format == LogFormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	var attrs []slog.Attr
	if config.ServiceName != "" {
		attrs = append(attrs, slog.String("service", config.ServiceName))
	}
	if config.ServiceInstance != "" {
		attrs = append(attrs, slog.String("instance", config.ServiceInstance))
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}

	return &slogLogger{
		logger: slog.New(handler),
		level:  level,
		config: config,
	}
}

// getLogLevel converts a LogLevel to a slog.Level
func getLogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fieldsToAttrs converts a slice of Fields to a slice of slog.Attr
func fieldsToAttrs(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, field := range fields {
		attrs = append(attrs, slog.Any(field.Key, field.Value))
	}
	return attrs
}

func (l *slogLogger) Info(msg string, fields ...Field) {
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, fieldsToAttrs(fields)...)
}

func (l *slogLogger) Error(msg string, err error, fields ...Field) {
	attrs := fieldsToAttrs(fields)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func (l *slogLogger) Debug(msg string, fields ...Field) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, fieldsToAttrs(fields)...)
}

func (l *slogLogger) Warn(msg string, fields ...Field) {
	l.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, fieldsToAttrs(fields)...)
}

func (l *slogLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}

	args := make([]any, 0, len(fields))
	for _, attr := range fieldsToAttrs(fields) {
		args = append(args, attr)
	}

	return &slogLogger{
		logger: l.logger.With(args...),
		level:  l.level,
		config: l.config,
	}
}

// WithContext returns a logger annotated with the trace and span ids of the span in ctx
func (l *slogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}

	return &slogLogger{
		logger: l.logger.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		),
		level:  l.level,
		config: l.config,
	}
}

func (l *slogLogger) SetLevel(level LogLevel) {
	l.level.Set(getLogLevel(level))
}
