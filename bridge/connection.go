package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/handle"
	"github.com/santif/pgbridge/observability"
)

// connection is one live session and the streams opened on it.
// mu serializes everything that touches the session: statements, stream
// advances and closes, and closing the connection itself.
type connection struct {
	session data.Session
	dsn     string

	mu      sync.Mutex
	closed  bool
	streams map[handle.Token]struct{}
}

// lock takes the connection lock, failing if the connection was closed meanwhile
func (c *connection) lock() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return boundaryError(handle.ErrStaleHandle, "connection is closed")
	}
	return nil
}

func (c *connection) unlock() {
	c.mu.Unlock()
}

// track and untrack run under the connection lock
func (c *connection) track(tok handle.Token) {
	c.streams[tok] = struct{}{}
}

func (c *connection) untrack(tok handle.Token) {
	delete(c.streams, tok)
}

// Connect opens a session described by dsn and returns its connection token
func (b *Bridge) Connect(ctx context.Context, dsn string) (env Envelope[handle.Token]) {
	defer guard(b, opConnect, &env)

	tok, err := b.connect(ctx, dsn)
	return complete(b, opConnect, tok, err)
}

func (b *Bridge) connect(ctx context.Context, dsn string) (handle.Token, error) {
	redacted := data.RedactDSN(b.driverName, dsn)

	ctx, cancel := b.connectContext(ctx)
	defer cancel()

	ctx, span := b.tracer.Start(ctx, "pgbridge.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(observability.DBAttributes(dbSystem(b.driverName), "")...),
	)

	start := time.Now()
	session, err := b.driver.Connect(ctx, dsn)
	observability.EndSpan(span, err)
	if err != nil {
		return handle.Nil, newError(StatusConnection, err, "connection to %s failed", redacted)
	}

	tok := handle.Wrap(b.handles, &connection{
		session: session,
		dsn:     redacted,
		streams: make(map[handle.Token]struct{}),
	})

	b.logger.WithContext(ctx).Info("connection opened",
		observability.NewField("connection", tok.String()),
		observability.NewField("dsn", redacted),
		observability.NewField("duration_ms", time.Since(start).Milliseconds()),
	)
	return tok, nil
}

// Close closes the connection's open streams, then its session, and releases the token.
// It waits for a statement running on the connection to finish.
// Closing an already closed connection is a boundary error.
func (b *Bridge) Close(ctx context.Context, conn handle.Token) (env Envelope[Void]) {
	defer guard(b, opClose, &env)

	err := b.closeConnection(ctx, conn)
	return complete(b, opClose, Void{}, err)
}

func (b *Bridge) closeConnection(ctx context.Context, tok handle.Token) error {
	c, err := handle.Release[*connection](b.handles, tok)
	if err != nil {
		return boundaryError(err, "close connection")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	var errs []error
	for st := range c.streams {
		s, err := handle.Release[*stream](b.handles, st)
		if err != nil {
			continue
		}
		if err := b.finishStream(st, s); err != nil {
			errs = append(errs, err)
		}
	}
	c.streams = nil
	if err := c.session.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return newError(StatusConnection, err, "close connection to %s", c.dsn)
	}

	b.logger.WithContext(ctx).Info("connection closed",
		observability.NewField("connection", tok.String()),
		observability.NewField("dsn", c.dsn),
	)
	return nil
}

// requireConn is the liveness check every query and stream operation performs
func (b *Bridge) requireConn(tok handle.Token) (*connection, error) {
	c, err := handle.Unwrap[*connection](b.handles, tok)
	if err != nil {
		return nil, boundaryError(err, "connection is closed")
	}
	return c, nil
}
