package data

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
)

// TypeName returns the Postgres type name for oid, or the decimal OID when the type is not known
func TypeName(types *pgtype.Map, oid uint32) string {
	if t, ok := types.TypeForOID(oid); ok {
		return t.Name
	}
	return strconv.FormatUint(uint64(oid), 10)
}

// DriverValue decodes the parameter into the Go value a database/sql driver accepts
func (p Param) DriverValue(types *pgtype.Map) (driver.Value, error) {
	if p.Data == nil {
		return nil, nil
	}

	switch p.OID {
	case pgtype.TextOID:
		return string(p.Data), nil
	case pgtype.Int4OID:
		var v int32
		if err := types.Scan(p.OID, p.Format, p.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s parameter: %w", p.Type, err)
		}
		return int64(v), nil
	case pgtype.Float8OID:
		var v float64
		if err := types.Scan(p.OID, p.Format, p.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s parameter: %w", p.Type, err)
		}
		return v, nil
	default:
		return p.Data, nil
	}
}

// nativeOID picks the Postgres type used to carry a value scanned by a database/sql driver.
// dbType is the driver's column type name; it decides whether raw bytes are text or binary.
func nativeOID(v any, dbType string) (uint32, any) {
	switch x := v.(type) {
	case int64:
		return pgtype.Int8OID, x
	case int32:
		return pgtype.Int4OID, x
	case float64:
		return pgtype.Float8OID, x
	case float32:
		return pgtype.Float4OID, x
	case bool:
		return pgtype.BoolOID, x
	case string:
		return pgtype.TextOID, x
	case time.Time:
		return pgtype.TimestamptzOID, x
	case []byte:
		upper := strings.ToUpper(dbType)
		binary := strings.Contains(upper, "BLOB") || strings.Contains(upper, "BYTEA") || strings.Contains(upper, "BINARY")
		if binary || !utf8.Valid(x) {
			return pgtype.ByteaOID, x
		}
		return pgtype.TextOID, string(x)
	default:
		return pgtype.TextOID, fmt.Sprint(x)
	}
}

// encodeNative appends v to buf in Postgres binary encoding.
// It returns the type OID, the encoded value (nil only for SQL NULL) and the grown buffer.
func encodeNative(types *pgtype.Map, v any, dbType string, buf []byte) (uint32, []byte, []byte, error) {
	if v == nil {
		return 0, nil, buf, nil
	}

	oid, value := nativeOID(v, dbType)
	start := len(buf)
	out, err := types.Encode(oid, pgtype.BinaryFormatCode, value, buf)
	if err != nil {
		return 0, nil, buf, fmt.Errorf("encode %T as %s: %w", v, TypeName(types, oid), err)
	}

	encoded := out[start:len(out):len(out)]
	if encoded == nil {
		encoded = []byte{}
	}
	return oid, encoded, out, nil
}
