package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santif/pgbridge/bridge"
	"github.com/santif/pgbridge/config"
	"github.com/santif/pgbridge/data"
	"github.com/santif/pgbridge/observability"
)

// lossyDriver serves one text row and fails when the cursor is closed
type lossyDriver struct{}

func (lossyDriver) Connect(context.Context, string) (data.Session, error) {
	return lossySession{}, nil
}

type lossySession struct{}

func (lossySession) Exec(context.Context, string, []data.Param) (uint64, error) {
	return 0, nil
}

func (lossySession) Query(context.Context, string, []data.Param) (data.Cursor, error) {
	return &lossyCursor{}, nil
}

func (lossySession) Close(context.Context) error {
	return nil
}

type lossyCursor struct {
	read bool
}

func (c *lossyCursor) Fields() []data.Field {
	return []data.Field{{Name: "v", TypeName: "text", TypeOID: 25}}
}

func (c *lossyCursor) Next() bool {
	if c.read {
		return false
	}
	c.read = true
	return true
}

func (c *lossyCursor) Values() [][]byte {
	return [][]byte{[]byte("a")}
}

func (c *lossyCursor) Err() error {
	return nil
}

func (c *lossyCursor) Close() error {
	return errors.New("connection reset by peer")
}

func TestPrintRowsLogsStreamCloseFailure(t *testing.T) {
	var logs, out bytes.Buffer
	a := &app{logger: observability.NewTestLogger(&logs)}

	b, err := bridge.New(config.Default(), bridge.WithDriver("lossy", lossyDriver{}))
	require.NoError(t, err)
	ctx := context.Background()

	conn := b.Connect(ctx, "lossy://db")
	require.True(t, conn.OK())
	q := b.NewQuery(conn.Payload, "SELECT 'a'")
	require.True(t, q.OK())

	require.NoError(t, a.printRows(ctx, &out, b, q.Payload))
	assert.Equal(t, "a\n(1 rows)\n", out.String())
	assert.Contains(t, logs.String(), "closing result stream failed")
	assert.Contains(t, logs.String(), "connection reset by peer")
	assert.Zero(t, b.LiveHandles()["error"], "the close failure's error handle is freed")
}

func TestDriverFlagListsRegisteredDrivers(t *testing.T) {
	stdout, _, err := run(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Database driver (mysql, pgx, postgres, sqlite3)")
}
