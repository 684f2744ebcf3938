package data

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DriverPgx is the name of the native Postgres driver
const DriverPgx = "pgx"

// PostgresConfig holds the parts of a PostgreSQL connection string
type PostgresConfig struct {
	Host        string        `yaml:"host" validate:"required"`
	Port        int           `yaml:"port" validate:"required,min=1,max=65535"`
	Username    string        `yaml:"username" validate:"required"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database" validate:"required"`
	SSLMode     string        `yaml:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Options     string        `yaml:"options"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

// PostgresConfigFromEnv builds a PostgresConfig from the standard libpq environment variables.
// PGOPTIONS is taken as a raw query string appended to the DSN.
func PostgresConfigFromEnv() PostgresConfig {
	cfg := PostgresConfig{
		Host:     getenv("PGHOST", "localhost"),
		Username: getenv("PGUSER", "postgres"),
		Password: getenv("PGPASSWORD", "postgres"),
		Database: getenv("PGDATABASE", "postgres"),
		Options:  os.Getenv("PGOPTIONS"),
		SSLMode:  os.Getenv("PGSSLMODE"),
	}

	cfg.Port = 5432
	if port, err := strconv.Atoi(os.Getenv("PGPORT")); err == nil {
		cfg.Port = port
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DSN renders the configuration as a postgresql:// URL
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}

	query, err := url.ParseQuery(c.Options)
	if err != nil {
		query = url.Values{}
	}
	if c.SSLMode != "" {
		query.Set("sslmode", c.SSLMode)
	}
	if c.ConnTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(c.ConnTimeout.Seconds())))
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// PostgresDriver opens sessions over the native Postgres protocol.
// Parameters are sent with explicit OIDs and formats and results are requested in binary format.
type PostgresDriver struct{}

// NewPostgresDriver creates the native Postgres driver
func NewPostgresDriver() *PostgresDriver {
	return &PostgresDriver{}
}

// Connect parses dsn and establishes a session
func (d *PostgresDriver) Connect(ctx context.Context, dsn string) (Session, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresSession{conn: conn, types: pgtype.NewMap()}, nil
}

// PostgresSession implements Session over a single pgconn connection
type PostgresSession struct {
	conn  *pgconn.PgConn
	types *pgtype.Map
}

var binaryResults = []int16{pgtype.BinaryFormatCode}

func splitParams(params []Param) ([][]byte, []uint32, []int16) {
	if len(params) == 0 {
		return nil, nil, nil
	}

	values := make([][]byte, len(params))
	oids := make([]uint32, len(params))
	formats := make([]int16, len(params))
	for i, p := range params {
		values[i] = p.Data
		oids[i] = p.OID
		formats[i] = p.Format
	}
	return values, oids, formats
}

// Exec runs a statement that doesn't return rows
func (s *PostgresSession) Exec(ctx context.Context, sql string, params []Param) (uint64, error) {
	values, oids, formats := splitParams(params)

	tag, err := s.conn.ExecParams(ctx, sql, values, oids, formats, binaryResults).Close()
	if err != nil {
		return 0, fmt.Errorf("postgres exec error: %w", err)
	}

	n := tag.RowsAffected()
	if n < 0 {
		n = 0
	}
	return uint64(n), nil
}

// Query runs a statement and returns a cursor over its rows.
// The first row is read eagerly so statement errors are reported here rather than on the first Next.
func (s *PostgresSession) Query(ctx context.Context, sql string, params []Param) (Cursor, error) {
	values, oids, formats := splitParams(params)

	rr := s.conn.ExecParams(ctx, sql, values, oids, formats, binaryResults)
	c := &postgresCursor{rr: rr}

	if !rr.NextRow() {
		if _, err := rr.Close(); err != nil {
			return nil, fmt.Errorf("postgres query error: %w", err)
		}
		c.closed = true
		c.done = true
	} else {
		c.pending = true
	}

	c.fields = describeFields(s.types, rr.FieldDescriptions())
	return c, nil
}

// Close terminates the connection
func (s *PostgresSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func describeFields(types *pgtype.Map, fds []pgconn.FieldDescription) []Field {
	fields := make([]Field, len(fds))
	for i, fd := range fds {
		fields[i] = Field{
			Name:     fd.Name,
			TypeName: TypeName(types, fd.DataTypeOID),
			TypeOID:  fd.DataTypeOID,
		}
	}
	return fields
}

// postgresCursor streams rows from a pgconn ResultReader
type postgresCursor struct {
	rr      *pgconn.ResultReader
	fields  []Field
	pending bool
	done    bool
	closed  bool
	err     error
}

func (c *postgresCursor) Fields() []Field {
	return c.fields
}

func (c *postgresCursor) Next() bool {
	if c.done {
		return false
	}
	if c.pending {
		c.pending = false
		return true
	}
	if c.rr.NextRow() {
		return true
	}

	c.done = true
	c.closed = true
	if _, err := c.rr.Close(); err != nil {
		c.err = fmt.Errorf("postgres row error: %w", err)
	}
	return false
}

func (c *postgresCursor) Values() [][]byte {
	if c.done {
		return nil
	}
	return c.rr.Values()
}

func (c *postgresCursor) Err() error {
	return c.err
}

func (c *postgresCursor) Close() error {
	c.done = true
	if c.closed {
		return nil
	}
	c.closed = true

	// Close drains any remaining rows so the connection is usable again.
	if _, err := c.rr.Close(); err != nil {
		return fmt.Errorf("postgres cursor close error: %w", err)
	}
	return nil
}
