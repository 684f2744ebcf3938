package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santif/pgbridge/bridge"
	"github.com/santif/pgbridge/handle"
)

// useSQLite points the process-wide bridge at sqlite before its first use
func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("PGBRIDGE_DRIVER", "sqlite3")
	t.Setenv(configFileEnv, "")
	require.Equal(t, "sqlite3", instance().Driver())
}

func textParam(s string) bridge.QueryParam {
	return bridge.QueryParam{TypeName: bridge.FromText("text"), Value: bridge.FromText(s)}
}

func errorText(t *testing.T, err uint64) string {
	t.Helper()
	msg := callErrorMessage(err)
	require.False(t, msg.Buffer.IsNull(), "error %d has no message", err)
	s, e := msg.Buffer.Text()
	require.NoError(t, e)
	return s
}

// requireOK fails the test with the error's message if r failed
func requireOK(t *testing.T, r callResult) {
	t.Helper()
	if !r.OK() {
		t.Fatalf("status %s: %s", r.Status, errorText(t, r.Err))
	}
}

func openStream(t *testing.T, sql string, params ...bridge.QueryParam) (conn, stream uint64) {
	t.Helper()

	c := callConnect(":memory:")
	require.True(t, c.OK())
	q := callNewQuery(c.Payload, sql)
	require.True(t, q.OK())
	for _, p := range params {
		require.True(t, callQueryParam(q.Payload, p).OK())
	}
	st := callExecResult(q.Payload)
	requireOK(t, st)
	return c.Payload, st.Payload
}

func TestExportsRowItems(t *testing.T) {
	useSQLite(t)
	conn, st := openStream(t, "SELECT $1, NULL, ''", textParam("hello"))

	r := callNextRow(st)
	require.True(t, r.OK())
	require.NotZero(t, r.Payload)
	row := handle.Token(r.Payload)

	n := callRowLen(r.Payload)
	require.True(t, n.OK())
	assert.Equal(t, uint64(3), n.Payload)

	res, typeName, value := callRowItem(r.Payload, 0)
	require.True(t, res.OK())
	name, err := typeName.Buffer.Text()
	require.NoError(t, err)
	assert.Equal(t, "text", name)
	assert.Equal(t, []byte("hello"), value.Buffer.Bytes())

	res, typeName, value = callRowItem(r.Payload, 1)
	require.True(t, res.OK())
	assert.Nil(t, typeName.Ptr)
	assert.Nil(t, value.Ptr, "NULL is a null pointer")
	assert.True(t, value.Buffer.IsNull())

	res, _, value = callRowItem(r.Payload, 2)
	require.True(t, res.OK())
	assert.NotNil(t, value.Ptr, "empty text is a non-null pointer")
	assert.False(t, value.Buffer.IsNull())
	assert.Zero(t, value.Buffer.Len())

	copies, _ := trackedCopies(row, handle.Nil)
	assert.Equal(t, 4, copies, "type name and value of the two non-null items")

	res, _, _ = callRowItem(r.Payload, 3)
	assert.Equal(t, bridge.StatusBoundary, res.Status)
	assert.Contains(t, errorText(t, res.Err), "index 3 out of range")
	require.True(t, callErrorFree(res.Err).OK())

	end := callNextRow(st)
	require.True(t, end.OK())
	assert.Zero(t, end.Payload)
	copies, _ = trackedCopies(row, handle.Nil)
	assert.Zero(t, copies, "advancing frees the previous row's copies")

	again := callNextRow(st)
	require.True(t, again.OK())
	assert.Zero(t, again.Payload)

	require.True(t, callResultClose(st).OK())
	require.True(t, callClose(conn).OK())

	second := callClose(conn)
	assert.Equal(t, bridge.StatusBoundary, second.Status)
	require.True(t, callErrorFree(second.Err).OK())
}

func TestExportsRowCloseFreesCopies(t *testing.T) {
	useSQLite(t)
	conn, st := openStream(t, "SELECT 'a'")

	r := callNextRow(st)
	require.True(t, r.OK())
	res, _, _ := callRowItem(r.Payload, 0)
	require.True(t, res.OK())

	copies, _ := trackedCopies(handle.Token(r.Payload), handle.Nil)
	require.Equal(t, 2, copies)

	require.True(t, callRowClose(r.Payload).OK())
	copies, _ = trackedCopies(handle.Token(r.Payload), handle.Nil)
	assert.Zero(t, copies)

	require.True(t, callResultClose(st).OK())
	require.True(t, callClose(conn).OK())
}

func TestExportsErrorMessageLifetime(t *testing.T) {
	useSQLite(t)

	res := callConnect("file:/nonexistent/dir/db.sqlite?mode=ro")
	require.Equal(t, bridge.StatusConnection, res.Status)
	assert.Equal(t, bridge.StatusConnection, callErrorCode(res.Err))

	first := callErrorMessage(res.Err)
	second := callErrorMessage(res.Err)
	require.NotNil(t, first.Ptr)
	assert.Equal(t, first.Ptr, second.Ptr, "the message is copied once")
	assert.NotZero(t, first.Buffer.Len())

	_, held := trackedCopies(handle.Nil, handle.Token(res.Err))
	assert.True(t, held)

	require.True(t, callErrorFree(res.Err).OK())
	_, held = trackedCopies(handle.Nil, handle.Token(res.Err))
	assert.False(t, held, "freeing the error frees its message")

	assert.True(t, callErrorMessage(res.Err).Buffer.IsNull())
	assert.Equal(t, bridge.StatusBoundary, callErrorCode(res.Err))

	twice := callErrorFree(res.Err)
	assert.Equal(t, bridge.StatusBoundary, twice.Status)
	require.True(t, callErrorFree(twice.Err).OK())
}

func TestExportsRejectOversizedLengths(t *testing.T) {
	useSQLite(t)

	res := callConnectSized(":memory:", math.MaxUint64)
	assert.Equal(t, bridge.StatusBoundary, res.Status)
	assert.Contains(t, errorText(t, res.Err), "dsn length out of range")
	require.True(t, callErrorFree(res.Err).OK())
}

func TestExportsExec(t *testing.T) {
	useSQLite(t)

	c := callConnect(":memory:")
	require.True(t, c.OK())

	for _, sql := range []string{"CREATE TABLE t (v TEXT)", "INSERT INTO t VALUES ('a'), ('b')"} {
		q := callNewQuery(c.Payload, sql)
		require.True(t, q.OK())
		requireOK(t, callExec(q.Payload))
	}

	q := callNewQuery(c.Payload, "DELETE FROM t")
	require.True(t, q.OK())
	res := callExec(q.Payload)
	require.True(t, res.OK())
	assert.Equal(t, uint64(2), res.Payload)

	require.True(t, callClose(c.Payload).OK())
}

func TestExportsShutdown(t *testing.T) {
	useSQLite(t)
	conn, st := openStream(t, "SELECT 'a'")
	r := callNextRow(st)
	require.True(t, r.OK())
	res, _, _ := callRowItem(r.Payload, 0)
	require.True(t, res.OK())

	require.Equal(t, bridge.StatusOK, callShutdown())
	copies, _ := trackedCopies(handle.Token(r.Payload), handle.Nil)
	assert.Zero(t, copies)

	closed := callClose(conn)
	assert.Equal(t, bridge.StatusBoundary, closed.Status)
	require.True(t, callErrorFree(closed.Err).OK())
}
