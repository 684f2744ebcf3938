package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger()
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	slogLogger, ok := logger.(*slogLogger)
	if !ok {
		t.Fatal("Logger is not a slogLogger")
	}

	if slogLogger.config.Level != LogLevelInfo {
		t.Errorf("Expected default log level %s, got %s", LogLevelInfo, slogLogger.config.Level)
	}

	if slogLogger.config.Format != LogFormatJSON {
		t.Errorf("Expected default log format %s, got %s", LogFormatJSON, slogLogger.config.Format)
	}
}

func TestLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, LoggerConfig{
		Level:           LogLevelInfo,
		Format:          LogFormatJSON,
		ServiceName:     "pgbridge",
		ServiceInstance: "test-1",
	})

	logger.Info("connection opened", NewField("driver", "pgx"))

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "connection opened" {
		t.Errorf("Expected message 'connection opened', got %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("Expected level 'INFO', got %v", entry["level"])
	}
	if entry["driver"] != "pgx" {
		t.Errorf("Expected field 'driver' with value 'pgx', got %v", entry["driver"])
	}
	if entry["service"] != "pgbridge" || entry["instance"] != "test-1" {
		t.Errorf("Expected service metadata, got %v", entry)
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, LoggerConfig{Level: LogLevelInfo, Format: LogFormatText})
	logger.Warn("fallback", NewField("tag", "uuid"))

	output := buf.String()
	if !strings.Contains(output, "level=WARN") || !strings.Contains(output, "tag=uuid") {
		t.Errorf("Unexpected text output: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, LoggerConfig{Level: LogLevelInfo, Format: LogFormatJSON})

	buf.Reset()
	logger.Error("exec failed", errors.New("relation does not exist"))
	entry := decodeEntry(t, &buf)
	if entry["error"] != "relation does not exist" {
		t.Errorf("Expected error to be included in log, got %v", entry["error"])
	}

	buf.Reset()
	logger.Debug("debug message")
	if buf.Len() != 0 {
		t.Errorf("Debug message should not be logged at INFO level")
	}

	buf.Reset()
	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("Expected warn message to be logged")
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, LoggerConfig{Level: LogLevelError, Format: LogFormatJSON})
	child := logger.With(NewField("component", "bridge"))

	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Info should not be logged at ERROR level")
	}

	logger.SetLevel(LogLevelDebug)
	child.Debug("visible")

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "visible" || entry["component"] != "bridge" {
		t.Errorf("Expected derived logger to follow the new level, got %v", entry)
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, LoggerConfig{Level: LogLevelInfo, Format: LogFormatJSON})

	tracer, _ := NewRecordingTracer()
	ctx, span := tracer.Start(context.Background(), "exec")
	defer span.End()

	logger.WithContext(ctx).Info("context message")

	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), entry["trace_id"])
	}
	if entry["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("Expected span_id %s, got %v", span.SpanContext().SpanID(), entry["span_id"])
	}

	if logger.WithContext(context.Background()) != logger {
		t.Error("Expected WithContext without a span to return the same logger")
	}
}

func TestGetLogLevel(t *testing.T) {
	testCases := []struct {
		level    LogLevel
		expected string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{"unknown", "INFO"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.level), func(t *testing.T) {
			level := getLogLevel(tc.level)
			if level.String() != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, level.String())
			}
		})
	}
}

func TestNoOpLoggers(t *testing.T) {
	for _, logger := range []Logger{NoOpLogger(), NewNoOpLogger()} {
		logger.Info("info")
		logger.Error("error", errors.New("boom"))
		logger.With(NewField("k", "v")).WithContext(context.Background()).Warn("warn")
		logger.SetLevel(LogLevelDebug)
	}
}
