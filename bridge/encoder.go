package bridge

import (
	"bytes"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/santif/pgbridge/data"
)

// ParamType is the closed set of parameter encodings the bridge understands
type ParamType uint8

const (
	// ParamRaw sends the bytes untouched and lets the server infer the type
	ParamRaw ParamType = iota
	// ParamText is UTF-8 text
	ParamText
	// ParamInt4 is a 4-byte big-endian two's complement integer
	ParamInt4
	// ParamFloat8 is an 8-byte big-endian IEEE 754 double
	ParamFloat8
)

var paramTypes = map[string]ParamType{
	"raw":    ParamRaw,
	"text":   ParamText,
	"str":    ParamText,
	"int4":   ParamInt4,
	"float8": ParamFloat8,
}

// ParseParamType maps a type tag to its ParamType. Tags are case sensitive.
func ParseParamType(tag string) (ParamType, bool) {
	t, ok := paramTypes[tag]
	return t, ok
}

func (t ParamType) String() string {
	switch t {
	case ParamText:
		return "text"
	case ParamInt4:
		return "int4"
	case ParamFloat8:
		return "float8"
	default:
		return "raw"
	}
}

// OID returns the Postgres type OID the parameter is declared with; 0 lets the server infer it
func (t ParamType) OID() uint32 {
	switch t {
	case ParamText:
		return pgtype.TextOID
	case ParamInt4:
		return pgtype.Int4OID
	case ParamFloat8:
		return pgtype.Float8OID
	default:
		return 0
	}
}

// Format returns the Postgres format code the value is sent in
func (t ParamType) Format() int16 {
	if t == ParamText {
		return pgtype.TextFormatCode
	}
	return pgtype.BinaryFormatCode
}

// Encoder validates typed parameters and turns them into wire parameters
type Encoder struct {
	mu    sync.Mutex
	types *pgtype.Map
}

// NewEncoder creates an encoder
func NewEncoder() *Encoder {
	return &Encoder{types: pgtype.NewMap()}
}

// Encode validates p and copies its value.
// An unknown tag is an encoding error when strict is set; otherwise the value is sent raw and fallback is true.
func (e *Encoder) Encode(p QueryParam, strict bool) (param data.Param, fallback bool, err error) {
	tag, err := p.TypeName.Text()
	if err != nil {
		return data.Param{}, false, newError(StatusEncoding, err, "parameter type tag")
	}

	t, ok := ParseParamType(tag)
	if !ok {
		if strict {
			return data.Param{}, false, newError(StatusEncoding, nil, "unsupported parameter type %q", tag)
		}
		fallback = true
	}

	param = data.Param{Type: t.String(), OID: t.OID(), Format: t.Format()}
	if p.Value.IsNull() {
		return param, fallback, nil
	}

	if err := e.validate(t, p.Value.Bytes()); err != nil {
		return data.Param{}, false, err
	}
	param.Data = bytes.Clone(p.Value.Bytes())
	return param, fallback, nil
}

func (e *Encoder) validate(t ParamType, value []byte) error {
	switch t {
	case ParamText:
		if !utf8.Valid(value) {
			return newError(StatusEncoding, nil, "text parameter is not valid UTF-8")
		}
	case ParamInt4:
		var v int32
		if err := e.scan(t, value, &v); err != nil {
			return newError(StatusEncoding, err, "malformed int4 parameter")
		}
	case ParamFloat8:
		var v float64
		if err := e.scan(t, value, &v); err != nil {
			return newError(StatusEncoding, err, "malformed float8 parameter")
		}
	}
	return nil
}

func (e *Encoder) scan(t ParamType, value []byte, dst any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.types.Scan(t.OID(), t.Format(), value, dst)
}
