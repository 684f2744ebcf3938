package bridge

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textParam(s string) QueryParam {
	return QueryParam{TypeName: FromText("text"), Value: FromText(s)}
}

func int4Param(v int32) QueryParam {
	return QueryParam{TypeName: FromText("int4"), Value: FromBytes(binary.BigEndian.AppendUint32(nil, uint32(v)))}
}

func float8Param(v float64) QueryParam {
	return QueryParam{TypeName: FromText("float8"), Value: FromBytes(binary.BigEndian.AppendUint64(nil, math.Float64bits(v)))}
}

func TestParseParamType(t *testing.T) {
	tests := map[string]ParamType{
		"text":   ParamText,
		"str":    ParamText,
		"int4":   ParamInt4,
		"float8": ParamFloat8,
		"raw":    ParamRaw,
	}
	for tag, want := range tests {
		got, ok := ParseParamType(tag)
		assert.True(t, ok, tag)
		assert.Equal(t, want, got, tag)
	}

	_, ok := ParseParamType("uuid")
	assert.False(t, ok)
	_, ok = ParseParamType("INT4")
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	enc := NewEncoder()

	tests := []struct {
		name   string
		param  QueryParam
		oid    uint32
		format int16
		data   []byte
	}{
		{"text", textParam("hello"), pgtype.TextOID, pgtype.TextFormatCode, []byte("hello")},
		{"empty text", textParam(""), pgtype.TextOID, pgtype.TextFormatCode, []byte{}},
		{"int4", int4Param(-2), pgtype.Int4OID, pgtype.BinaryFormatCode, []byte{0xff, 0xff, 0xff, 0xfe}},
		{"float8", float8Param(1.5), pgtype.Float8OID, pgtype.BinaryFormatCode, []byte{0x3f, 0xf8, 0, 0, 0, 0, 0, 0}},
		{"raw", QueryParam{TypeName: FromText("raw"), Value: FromBytes([]byte{1, 2})}, 0, pgtype.BinaryFormatCode, []byte{1, 2}},
		{"null", QueryParam{TypeName: FromText("int4"), Value: Null()}, pgtype.Int4OID, pgtype.BinaryFormatCode, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, fallback, err := enc.Encode(tt.param, true)
			require.NoError(t, err)
			assert.False(t, fallback)
			assert.Equal(t, tt.oid, p.OID)
			assert.Equal(t, tt.format, p.Format)
			assert.Equal(t, tt.data, p.Data)
			if tt.data != nil {
				assert.NotNil(t, p.Data, "empty values must not bind NULL")
			}
		})
	}
}

func TestEncodeCopiesValue(t *testing.T) {
	raw := []byte("abc")
	p, _, err := NewEncoder().Encode(QueryParam{TypeName: FromText("text"), Value: FromBytes(raw)}, false)
	require.NoError(t, err)

	raw[0] = 'x'
	assert.Equal(t, []byte("abc"), p.Data)
}

func TestEncodeMalformed(t *testing.T) {
	enc := NewEncoder()

	tests := map[string]QueryParam{
		"short int4":   {TypeName: FromText("int4"), Value: FromBytes([]byte{0, 0, 1})},
		"long float8":  {TypeName: FromText("float8"), Value: FromBytes(make([]byte, 9))},
		"invalid text": {TypeName: FromText("text"), Value: FromBytes([]byte{0xc3, 0x28})},
		"invalid tag":  {TypeName: FromBytes([]byte{0xff}), Value: FromText("x")},
	}

	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := enc.Encode(p, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEncoding))
		})
	}
}

func TestEncodeUnknownTag(t *testing.T) {
	enc := NewEncoder()
	p := QueryParam{TypeName: FromText("uuid"), Value: FromBytes(make([]byte, 16))}

	got, fallback, err := enc.Encode(p, false)
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, "raw", got.Type)
	assert.Zero(t, got.OID)
	assert.Equal(t, make([]byte, 16), got.Data)

	_, _, err = enc.Encode(p, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncoding))
	assert.Contains(t, err.Error(), `unsupported parameter type "uuid"`)
}
