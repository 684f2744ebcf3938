// Package bridge exposes a PostgreSQL client through opaque handles.
//
// Every value a caller holds (connections, queries, row streams, rows and errors)
// lives in a handle table and is referred to by a generation-tagged token, so a
// released or stale token is rejected instead of dereferenced. Every call returns
// an Envelope whose Status tells success from one of four failure kinds; on
// failure the Error token carries the message until it is freed.
//
// A typical session:
//
//	conn := b.Connect(ctx, dsn)
//	q := b.NewQuery(conn.Payload, "SELECT $1")
//	b.AddParam(q.Payload, bridge.QueryParam{TypeName: bridge.FromText("text"), Value: bridge.FromText("hello")})
//	st := b.ExecWithResult(ctx, q.Payload)
//	for r := b.NextRow(st.Payload); r.OK() && r.Payload != handle.Nil; r = b.NextRow(st.Payload) {
//		item := b.RowItem(r.Payload, 0)
//		...
//	}
//	b.StreamClose(st.Payload)
//	b.Close(ctx, conn.Payload)
//
// Row items are views into the stream's buffers and are only valid until the
// stream advances.
//
// Calls on different handles may run concurrently. Statements, stream advances
// and closes on one connection take that connection's lock, so closing a
// connection waits for a running statement and never races its streams.
// Reading a row item's buffers must not overlap with advancing its stream.
package bridge
