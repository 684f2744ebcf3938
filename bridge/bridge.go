package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/santif/pgbridge/config"
	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/handle"
	"github.com/santif/pgbridge/observability"
)

// Operation names used in logs, spans and metric labels
const (
	opConnect        = "connect"
	opClose          = "close"
	opNewQuery       = "new_query"
	opAddParam       = "add_param"
	opExec           = "exec"
	opExecWithResult = "exec_with_result"
	opNextRow        = "next_row"
	opStreamClose    = "stream_close"
	opRowLen         = "row_len"
	opRowItem        = "row_item"
	opRowClose       = "row_close"
	opErrorMessage   = "error_message"
	opErrorCode      = "error_code"
	opErrorFree      = "error_free"
)

// Bridge owns every handle given out to a caller and the sessions behind them.
// Calls on different handles may run concurrently; calls on the same handle must be serialized by the caller.
// Work on one connection, its queries and its streams is serialized by the connection.
type Bridge struct {
	id         string
	handles    *handle.Table
	drivers    *data.Registry
	driverName string
	driver     data.Driver
	encoder    *Encoder

	logger  observability.Logger
	metrics *observability.BridgeMetrics
	tracer  observability.Tracer

	strict           atomic.Bool
	connectTimeout   atomic.Int64
	statementTimeout atomic.Int64
}

// Option configures a Bridge
type Option func(*Bridge)

// WithDriver registers d under name and uses it instead of the configured driver
func WithDriver(name string, d data.Driver) Option {
	return func(b *Bridge) {
		b.drivers.Register(name, d)
		b.driverName = name
	}
}

// WithLogger sets the logger
func WithLogger(logger observability.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithMetrics records bridge metrics on m
func WithMetrics(m observability.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = observability.NewBridgeMetrics(m)
	}
}

// WithTracer sets the tracer used for connect and exec spans
func WithTracer(tracer observability.Tracer) Option {
	return func(b *Bridge) {
		b.tracer = tracer
	}
}

// New creates a bridge from a validated configuration
func New(cfg *config.Config, opts ...Option) (*Bridge, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if err := config.NewManager().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid bridge configuration: %w", err)
	}

	b := &Bridge{
		id:         uuid.NewString(),
		handles:    handle.NewTable(),
		drivers:    data.NewRegistry(),
		driverName: cfg.Driver,
		encoder:    NewEncoder(),
		logger:     observability.NoOpLogger(),
		tracer:     observability.NoOpTracer(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.metrics == nil {
		b.metrics = observability.NewBridgeMetrics(nil)
	}

	driver, err := b.drivers.Lookup(b.driverName)
	if err != nil {
		return nil, err
	}
	b.driver = driver

	b.logger = b.logger.With(
		observability.NewField("bridge_id", b.id),
		observability.NewField("driver", b.driverName),
	)
	b.apply(cfg)

	return b, nil
}

// ID returns the bridge instance id
func (b *Bridge) ID() string {
	return b.id
}

// Driver returns the name of the driver sessions are opened with
func (b *Bridge) Driver() string {
	return b.driverName
}

func (b *Bridge) apply(cfg *config.Config) {
	b.strict.Store(cfg.Encoding.Policy == config.PolicyStrict)
	b.connectTimeout.Store(int64(cfg.ConnectTimeout))
	b.statementTimeout.Store(int64(cfg.StatementTimeout))
}

// Reload applies the encoding policy, timeouts and log level of cfg.
// The driver is fixed for the life of the bridge.
func (b *Bridge) Reload(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := config.NewManager().Validate(cfg); err != nil {
		return fmt.Errorf("invalid bridge configuration: %w", err)
	}

	b.apply(cfg)
	b.logger.SetLevel(cfg.Logger.Level)
	b.logger.Info("configuration reloaded",
		observability.NewField("encoding_policy", cfg.Encoding.Policy),
		observability.NewField("statement_timeout", cfg.StatementTimeout.String()),
	)
	return nil
}

// LiveHandles returns the number of live handles per kind
// (connection, query, stream, row, error).
func (b *Bridge) LiveHandles() map[string]int {
	kinds := b.handles.Kinds()
	out := make(map[string]int, len(kinds))
	for kind, n := range kinds {
		out[kindLabel(kind)] += n
	}
	return out
}

// Alive reports whether tok refers to a live handle of any kind
func (b *Bridge) Alive(tok handle.Token) bool {
	return b.handles.Kind(tok) != ""
}

// kindLabel shortens a Go type name such as "*bridge.connection" to "connection"
func kindLabel(kind string) string {
	if i := strings.LastIndex(kind, "."); i >= 0 {
		kind = kind[i+1:]
	}
	return strings.ToLower(strings.TrimPrefix(kind, "*"))
}

// Shutdown closes every live connection, and with them their open streams.
// Queries and errors the caller never consumed or freed are released too.
func (b *Bridge) Shutdown(ctx context.Context) error {
	var errs []error
	handle.Each(b.handles, func(tok handle.Token, _ *connection) {
		if err := b.closeConnection(ctx, tok); err != nil {
			errs = append(errs, err)
		}
	})
	handle.Each(b.handles, func(tok handle.Token, _ *query) {
		_, _ = handle.Release[*query](b.handles, tok)
	})
	handle.Each(b.handles, func(tok handle.Token, _ *Error) {
		_, _ = handle.Release[*Error](b.handles, tok)
	})

	b.metrics.SetLiveHandles(b.LiveHandles())
	if err := errors.Join(errs...); err != nil {
		b.logger.Error("shutdown incomplete", err)
		return err
	}
	b.logger.Debug("bridge shut down")
	return nil
}

func (b *Bridge) connectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := time.Duration(b.connectTimeout.Load()); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (b *Bridge) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := time.Duration(b.statementTimeout.Load()); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// dbSystem maps a driver name to the OpenTelemetry db.system value
func dbSystem(driver string) string {
	switch driver {
	case data.DriverPgx, data.DriverLibPQ:
		return "postgresql"
	case data.DriverSQLite:
		return "sqlite"
	default:
		return driver
	}
}
