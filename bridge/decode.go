package bridge

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// decodable lists the type names Decode turns into Go values
var decodable = map[string]bool{
	"bool":        true,
	"int2":        true,
	"int4":        true,
	"int8":        true,
	"float4":      true,
	"float8":      true,
	"text":        true,
	"varchar":     true,
	"bpchar":      true,
	"name":        true,
	"bytea":       true,
	"json":        true,
	"jsonb":       true,
	"uuid":        true,
	"date":        true,
	"timestamp":   true,
	"timestamptz": true,
}

var (
	decodeMu    sync.Mutex
	decodeTypes = pgtype.NewMap()
)

// Decode turns a binary encoded row item into a Go value.
// SQL NULL decodes to nil and types it doesn't know are returned as a copy of the raw bytes.
func Decode(item RowItem) (any, error) {
	if item.IsNull() {
		return nil, nil
	}

	name, err := item.TypeName.Text()
	if err != nil {
		return nil, err
	}
	raw := item.Value.Bytes()

	if name == "unknown" {
		return string(raw), nil
	}
	if !decodable[name] {
		return bytes.Clone(raw), nil
	}

	decodeMu.Lock()
	defer decodeMu.Unlock()

	t, ok := decodeTypes.TypeForName(name)
	if !ok {
		return bytes.Clone(raw), nil
	}

	v, err := t.Codec.DecodeValue(decodeTypes, t.OID, pgtype.BinaryFormatCode, raw)
	if err != nil {
		return nil, newError(StatusEncoding, err, "decode %s value", name)
	}

	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x), nil
	case []byte:
		return bytes.Clone(x), nil
	default:
		return v, nil
	}
}

// DecodeString renders a row item for display
func DecodeString(item RowItem) (string, error) {
	v, err := Decode(item)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case []byte:
		return fmt.Sprintf("\\x%x", x), nil
	default:
		return fmt.Sprint(x), nil
	}
}
