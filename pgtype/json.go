package pgtype

import (
	"encoding/json"
	"fmt"
)

// jsonbVersion is the single version byte PostgreSQL prefixes onto every
// binary jsonb value; there has only ever been one version.
const jsonbVersion = 1

// jsonCodec implements both json and jsonb: json carries its text directly,
// jsonb prefixes a version byte ahead of the same text.
type jsonCodec struct {
	jsonb bool
}

func (c jsonCodec) Encode(dst []byte, v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("pgtype: json: %w", err)
		}
		raw = encoded
	}

	buf := dst
	if c.jsonb {
		buf = append(buf, jsonbVersion)
	}
	return append(buf, raw...), nil
}

func (c jsonCodec) Decode(src []byte) (any, error) {
	if c.jsonb {
		if len(src) < 1 {
			return nil, fmt.Errorf("pgtype: jsonb: missing version byte")
		}
		if src[0] != jsonbVersion {
			return nil, fmt.Errorf("pgtype: jsonb: unsupported version %d", src[0])
		}
		src = src[1:]
	}

	out := make(json.RawMessage, len(src))
	copy(out, src)
	return out, nil
}
