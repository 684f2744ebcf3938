package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/santif/pgbridge/bridge"
)

// nullLiteral spells SQL NULL in a --param value, as in COPY text format
const nullLiteral = `\N`

// parseParam turns "type=value" into a typed parameter.
// int4 and float8 values are parsed and sent in binary, raw values may be hex with a \x prefix,
// and any other tag is passed through as text bytes for the bridge's encoding policy to judge.
func parseParam(types *pgtype.Map, arg string) (bridge.QueryParam, error) {
	tag, value, ok := strings.Cut(arg, "=")
	if !ok || tag == "" {
		return bridge.QueryParam{}, fmt.Errorf("parameter %q is not of the form type=value", arg)
	}

	p := bridge.QueryParam{TypeName: bridge.FromText(tag)}
	if value == nullLiteral {
		p.Value = bridge.Null()
		return p, nil
	}

	t, known := bridge.ParseParamType(tag)
	if !known {
		p.Value = bridge.FromText(value)
		return p, nil
	}

	var (
		encoded []byte
		err     error
	)
	switch t {
	case bridge.ParamInt4:
		var n int64
		n, err = strconv.ParseInt(value, 10, 32)
		if err == nil {
			encoded, err = types.Encode(pgtype.Int4OID, pgtype.BinaryFormatCode, int32(n), nil)
		}
	case bridge.ParamFloat8:
		var f float64
		f, err = strconv.ParseFloat(value, 64)
		if err == nil {
			encoded, err = types.Encode(pgtype.Float8OID, pgtype.BinaryFormatCode, f, nil)
		}
	case bridge.ParamRaw:
		if rest, isHex := strings.CutPrefix(value, `\x`); isHex {
			encoded, err = hex.DecodeString(rest)
		} else {
			encoded = []byte(value)
		}
	default:
		encoded = []byte(value)
	}
	if err != nil {
		return bridge.QueryParam{}, fmt.Errorf("parameter %q: %w", arg, err)
	}

	p.Value = bridge.FromBytes(encoded)
	return p, nil
}

func parseParams(args []string) ([]bridge.QueryParam, error) {
	types := pgtype.NewMap()
	params := make([]bridge.QueryParam, 0, len(args))
	for _, arg := range args {
		p, err := parseParam(types, arg)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}
