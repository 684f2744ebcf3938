package bridge

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/santif/pgbridge/handle"
	"github.com/santif/pgbridge/observability"
)

// Exec runs the query once and returns the number of rows affected.
// The query token is consumed even when the call fails.
func (b *Bridge) Exec(ctx context.Context, q handle.Token) (env Envelope[uint64]) {
	defer guard(b, opExec, &env)

	n, err := b.exec(ctx, q)
	return complete(b, opExec, n, err)
}

// ExecWithResult runs the query and returns a stream over its rows.
// The query token is consumed even when the call fails. The stream reads with ctx,
// so ctx must stay live until the stream is closed.
func (b *Bridge) ExecWithResult(ctx context.Context, q handle.Token) (env Envelope[handle.Token]) {
	defer guard(b, opExecWithResult, &env)

	tok, err := b.execWithResult(ctx, q)
	return complete(b, opExecWithResult, tok, err)
}

// takeQuery releases the query and checks that its connection is still open
func (b *Bridge) takeQuery(q handle.Token) (*query, *connection, error) {
	qry, err := handle.Release[*query](b.handles, q)
	if err != nil {
		return nil, nil, boundaryError(err, "execute query")
	}
	conn, err := b.requireConn(qry.conn)
	if err != nil {
		return nil, nil, err
	}
	return qry, conn, nil
}

func (b *Bridge) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "pgbridge."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(observability.DBAttributes(dbSystem(b.driverName), sql)...),
	)
}

func (b *Bridge) exec(ctx context.Context, q handle.Token) (uint64, error) {
	qry, conn, err := b.takeQuery(q)
	if err != nil {
		return 0, err
	}
	if err := conn.lock(); err != nil {
		return 0, err
	}
	defer conn.unlock()

	ctx, cancel := b.statementContext(ctx)
	defer cancel()
	ctx, span := b.startSpan(ctx, opExec, qry.sql)

	start := time.Now()
	n, err := conn.session.Exec(ctx, qry.sql, qry.params)
	b.metrics.ObserveExec(opExec, time.Since(start))
	observability.EndSpan(span, err)
	if err != nil {
		return 0, newError(StatusExecution, err, "exec failed")
	}

	b.logger.WithContext(ctx).Debug("statement executed",
		observability.NewField("rows_affected", n),
		observability.NewField("params", len(qry.params)),
	)
	return n, nil
}

func (b *Bridge) execWithResult(ctx context.Context, q handle.Token) (handle.Token, error) {
	qry, conn, err := b.takeQuery(q)
	if err != nil {
		return handle.Nil, err
	}
	if err := conn.lock(); err != nil {
		return handle.Nil, err
	}
	defer conn.unlock()

	ctx, cancel := b.statementContext(ctx)
	spanCtx, span := b.startSpan(ctx, opExecWithResult, qry.sql)

	start := time.Now()
	cursor, err := conn.session.Query(spanCtx, qry.sql, qry.params)
	b.metrics.ObserveExec(opExecWithResult, time.Since(start))
	observability.EndSpan(span, err)
	if err != nil {
		cancel()
		return handle.Nil, newError(StatusExecution, err, "query failed")
	}

	tok := handle.Wrap(b.handles, &stream{
		owner:  conn,
		cursor: cursor,
		cancel: cancel,
	})
	conn.track(tok)

	b.logger.WithContext(spanCtx).Debug("stream opened",
		observability.NewField("stream", tok.String()),
		observability.NewField("params", len(qry.params)),
	)
	return tok, nil
}
