package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownDriver is returned when a driver name has no registered implementation
var ErrUnknownDriver = errors.New("data: unknown driver")

// Driver defines the interface for establishing database sessions
type Driver interface {
	// Connect opens a single session described by dsn
	Connect(ctx context.Context, dsn string) (Session, error)
}

// Session represents one live database session
type Session interface {
	// Exec runs a statement that doesn't return rows and reports the affected row count
	Exec(ctx context.Context, sql string, params []Param) (uint64, error)

	// Query runs a statement and returns a forward-only cursor over its rows
	Query(ctx context.Context, sql string, params []Param) (Cursor, error)

	// Close ends the session
	Close(ctx context.Context) error
}

// Cursor is a forward-only, single-pass view over a result set
type Cursor interface {
	// Fields describes the result columns
	Fields() []Field

	// Next advances to the next row. It returns false once the rows are exhausted or an error occurred.
	Next() bool

	// Values returns the current row in Postgres binary encoding, one entry per field.
	// A nil entry is SQL NULL. The slices are only valid until the next call to Next or Close.
	Values() [][]byte

	// Err returns the error that stopped iteration, if any
	Err() error

	// Close releases the cursor. It is safe to call more than once.
	Close() error
}

// Field describes one result column
type Field struct {
	Name     string
	TypeName string
	TypeOID  uint32
}

// Param is one bound parameter, already in the encoding the session sends on the wire
type Param struct {
	// Type is the declared parameter type name ("raw" for untyped values)
	Type string

	// OID is the Postgres type OID; 0 lets the server infer the type
	OID uint32

	// Format is the Postgres format code of Data (0 text, 1 binary)
	Format int16

	// Data holds the encoded value; nil binds SQL NULL
	Data []byte
}

// Registry maps driver names to drivers
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates a registry holding the built-in drivers:
// "pgx" (native Postgres protocol) and the database/sql backed "postgres", "mysql" and "sqlite3".
func NewRegistry() *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	r.Register(DriverPgx, NewPostgresDriver())
	for _, name := range []string{DriverLibPQ, DriverMySQL, DriverSQLite} {
		r.Register(name, NewSQLDriver(name))
	}
	return r
}

// Register adds or replaces the driver registered under name
func (r *Registry) Register(name string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = d
}

// Lookup returns the driver registered under name
func (r *Registry) Lookup(name string) (Driver, error) {
	r.mu.RLock()
	d, ok := r.drivers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (known drivers: %s)", ErrUnknownDriver, name, strings.Join(r.Names(), ", "))
	}
	return d, nil
}

// Names returns the registered driver names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
