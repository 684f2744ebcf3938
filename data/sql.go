package data

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// database/sql driver names served by SQLDriver
const (
	DriverLibPQ  = "postgres"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// SQLDriver opens sessions through a database/sql driver.
// Each session pins exactly one connection; the bridge does no pooling.
type SQLDriver struct {
	name string
}

// NewSQLDriver creates a driver backed by the database/sql driver registered as name
func NewSQLDriver(name string) *SQLDriver {
	return &SQLDriver{name: name}
}

// Connect opens the database handle, verifies it and pins a single connection
func (d *SQLDriver) Connect(ctx context.Context, dsn string) (Session, error) {
	db, err := sqlx.ConnectContext(ctx, d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.name, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Connx(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to acquire %s connection: %w", d.name, err)
	}

	return &SQLSession{db: db, conn: conn, types: pgtype.NewMap()}, nil
}

// SQLSession implements Session over one pinned database/sql connection
type SQLSession struct {
	db    *sqlx.DB
	conn  *sqlx.Conn
	types *pgtype.Map
}

func (s *SQLSession) args(params []Param) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		v, err := p.DriverValue(s.types)
		if err != nil {
			return nil, fmt.Errorf("parameter $%d: %w", i+1, err)
		}
		args[i] = v
	}
	return args, nil
}

// Exec runs a statement that doesn't return rows
func (s *SQLSession) Exec(ctx context.Context, query string, params []Param) (uint64, error) {
	args, err := s.args(params)
	if err != nil {
		return 0, err
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sql exec error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sql rows affected: %w", err)
	}
	if n < 0 {
		n = 0
	}
	return uint64(n), nil
}

// Query runs a statement and returns a cursor over its rows
func (s *SQLSession) Query(ctx context.Context, query string, params []Param) (Cursor, error) {
	args, err := s.args(params)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sql query error: %w", err)
	}

	cols, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("sql column types: %w", err)
	}

	c := &sqlCursor{
		rows:    rows,
		types:   s.types,
		dbTypes: make([]string, len(cols)),
		fields:  make([]Field, len(cols)),
	}
	for i, col := range cols {
		c.dbTypes[i] = col.DatabaseTypeName()
		c.fields[i] = Field{Name: col.Name(), TypeName: col.DatabaseTypeName()}
	}
	return c, nil
}

// Close releases the pinned connection and the database handle
func (s *SQLSession) Close(ctx context.Context) error {
	return errors.Join(s.conn.Close(), s.db.Close())
}

// sqlCursor re-encodes database/sql values into Postgres binary encoding.
// Encoded values share one buffer that is reset on every Next.
type sqlCursor struct {
	rows    *sqlx.Rows
	types   *pgtype.Map
	dbTypes []string
	fields  []Field
	buf     []byte
	values  [][]byte
	done    bool
	err     error
}

func (c *sqlCursor) Fields() []Field {
	return c.fields
}

func (c *sqlCursor) Next() bool {
	if c.done {
		return false
	}
	if !c.rows.Next() {
		c.finish(c.rows.Err())
		return false
	}

	raw, err := c.rows.SliceScan()
	if err != nil {
		c.finish(fmt.Errorf("sql scan: %w", err))
		return false
	}

	c.buf = c.buf[:0]
	c.values = make([][]byte, len(raw))
	for i, v := range raw {
		oid, encoded, buf, err := encodeNative(c.types, v, c.dbTypes[i], c.buf)
		if err != nil {
			c.finish(err)
			return false
		}
		c.buf = buf
		c.values[i] = encoded
		if v != nil {
			// Concrete value types decide the reported column type for this row.
			c.fields[i].TypeOID = oid
			c.fields[i].TypeName = TypeName(c.types, oid)
		}
	}
	return true
}

func (c *sqlCursor) finish(err error) {
	c.done = true
	c.values = nil
	if err != nil && c.err == nil {
		c.err = err
	}
	if cerr := c.rows.Close(); cerr != nil && c.err == nil {
		c.err = cerr
	}
}

func (c *sqlCursor) Values() [][]byte {
	return c.values
}

func (c *sqlCursor) Err() error {
	return c.err
}

func (c *sqlCursor) Close() error {
	if c.done {
		return nil
	}
	c.done = true
	c.values = nil
	return c.rows.Close()
}
