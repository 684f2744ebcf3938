package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver implements the Driver interface for testing
type stubDriver struct{}

func (stubDriver) Connect(ctx context.Context, dsn string) (Session, error) {
	return nil, nil
}

// TestDriverInterfaces ensures that the built-in drivers implement the interfaces
func TestDriverInterfaces(t *testing.T) {
	var _ Driver = &PostgresDriver{}
	var _ Driver = &SQLDriver{}
	var _ Session = &PostgresSession{}
	var _ Session = &SQLSession{}
	var _ Cursor = &postgresCursor{}
	var _ Cursor = &sqlCursor{}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"mysql", "pgx", "postgres", "sqlite3"}, r.Names())

	d, err := r.Lookup(DriverPgx)
	require.NoError(t, err)
	assert.IsType(t, &PostgresDriver{}, d)

	_, err = r.Lookup("oracle")
	assert.ErrorIs(t, err, ErrUnknownDriver)
	assert.ErrorContains(t, err, "known drivers: mysql, pgx, postgres, sqlite3")

	r.Register("stub", stubDriver{})
	d, err = r.Lookup("stub")
	require.NoError(t, err)
	assert.Equal(t, stubDriver{}, d)
}
