package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func sqliteArgs(args ...string) []string {
	return append([]string{"--driver", "sqlite3", "--dsn", ":memory:", "--log-level", "error"}, args...)
}

func TestParseParam(t *testing.T) {
	types := pgtype.NewMap()

	tests := []struct {
		arg   string
		tag   string
		value []byte
		null  bool
	}{
		{arg: "text=hello", tag: "text", value: []byte("hello")},
		{arg: "text=", tag: "text", value: []byte{}},
		{arg: "text=a=b", tag: "text", value: []byte("a=b")},
		{arg: "int4=-2", tag: "int4", value: []byte{0xff, 0xff, 0xff, 0xfe}},
		{arg: "float8=1.5", tag: "float8", value: []byte{0x3f, 0xf8, 0, 0, 0, 0, 0, 0}},
		{arg: `raw=\xdead`, tag: "raw", value: []byte{0xde, 0xad}},
		{arg: "raw=abc", tag: "raw", value: []byte("abc")},
		{arg: "uuid=abc", tag: "uuid", value: []byte("abc")},
		{arg: `int4=\N`, tag: "int4", null: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			p, err := parseParam(types, tt.arg)
			require.NoError(t, err)

			tag, err := p.TypeName.Text()
			require.NoError(t, err)
			assert.Equal(t, tt.tag, tag)
			assert.Equal(t, tt.null, p.Value.IsNull())
			if !tt.null {
				assert.Equal(t, tt.value, p.Value.Bytes())
			}
		})
	}
}

func TestParseParamErrors(t *testing.T) {
	types := pgtype.NewMap()
	for _, arg := range []string{"hello", "=x", "int4=abc", "int4=4294967296", "float8=x", `raw=\xzz`} {
		_, err := parseParam(types, arg)
		assert.Error(t, err, arg)
	}
}

func TestQueryCommand(t *testing.T) {
	stdout, _, err := run(t, sqliteArgs("query", "SELECT $1 + 1, $2, $3", "--param", "int4=41", "-p", "text=hi", "-p", `text=\N`)...)
	require.NoError(t, err)
	assert.Equal(t, "42\thi\tNULL\n(1 rows)\n", stdout)
}

func TestQueryCommandReportsErrors(t *testing.T) {
	_, _, err := run(t, sqliteArgs("query", "SELEC 1")...)
	assert.ErrorContains(t, err, "query failed")

	_, _, err = run(t, sqliteArgs("query", "SELECT $1", "-p", "int4=x")...)
	assert.ErrorContains(t, err, "int4=x")

	_, _, err = run(t, sqliteArgs("--encoding-policy", "strict", "query", "SELECT $1", "-p", "uuid=abc")...)
	assert.ErrorContains(t, err, `unsupported parameter type "uuid"`)

	_, _, err = run(t, sqliteArgs("--encoding-policy", "sometimes", "query", "SELECT 1")...)
	assert.ErrorContains(t, err, "encoding.policy")
}

func TestExecCommand(t *testing.T) {
	stdout, _, err := run(t, sqliteArgs("exec", "CREATE TABLE t (v INTEGER)")...)
	require.NoError(t, err)
	assert.Equal(t, "0 rows affected\n", stdout)
}

func TestPrintMetrics(t *testing.T) {
	_, stderr, err := run(t, sqliteArgs("--print-metrics", "query", "SELECT 1")...)
	require.NoError(t, err)
	assert.Contains(t, stderr, `pgbridge_calls_total{op="exec_with_result",status="ok"} 1`)
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pgbridge.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("driver: sqlite3\nencoding:\n  policy: strict\n"), 0o644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PGBRIDGE_DSN=postgres://app:hunter2@db/app\n"), 0o644))
	t.Setenv("PGBRIDGE_DSN", "")
	require.NoError(t, os.Unsetenv("PGBRIDGE_DSN"))

	stdout, _, err := run(t, "--config", configPath, "--env-file", envPath, "--driver", "pgx", "config")
	require.NoError(t, err)

	assert.Contains(t, stdout, "driver: pgx", "flags override the file")
	assert.Contains(t, stdout, "policy: strict")
	assert.Contains(t, stdout, "postgres://app:xxxxx@db/app")
	assert.NotContains(t, stdout, "hunter2")
}

func TestConfigCommandFormats(t *testing.T) {
	stdout, _, err := run(t, sqliteArgs("config", "-o", "json")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"driver": "sqlite3"`)

	stdout, _, err = run(t, sqliteArgs("config", "-o", "toml")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "sqlite3")
	assert.Contains(t, stdout, "[encoding]")

	_, _, err = run(t, sqliteArgs("config", "-o", "xml")...)
	assert.ErrorContains(t, err, "unsupported output format")
}
