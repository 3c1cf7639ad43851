package pgtype

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/elbaro/pyros/protocol"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type int2Codec struct{}

func (int2Codec) Encode(dst []byte, v any) ([]byte, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(int16(n)))
	return append(dst, b[:]...), nil
}

func (int2Codec) Decode(src []byte) (any, error) {
	if len(src) != 2 {
		return nil, fmt.Errorf("pgtype: int2: expected 2 bytes, got %d", len(src))
	}
	return int16(binary.BigEndian.Uint16(src)), nil
}

type int4Codec struct{}

func (int4Codec) Encode(dst []byte, v any) ([]byte, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(int32(n)))
	return append(dst, b[:]...), nil
}

func (int4Codec) Decode(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("pgtype: int4: expected 4 bytes, got %d", len(src))
	}
	return int32(binary.BigEndian.Uint32(src)), nil
}

type int8Codec struct{}

func (int8Codec) Encode(dst []byte, v any) ([]byte, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return append(dst, b[:]...), nil
}

func (int8Codec) Decode(src []byte) (any, error) {
	if len(src) != 8 {
		return nil, fmt.Errorf("pgtype: int8: expected 8 bytes, got %d", len(src))
	}
	return int64(binary.BigEndian.Uint64(src)), nil
}

type oidCodec struct{}

func (oidCodec) Encode(dst []byte, v any) ([]byte, error) {
	n, err := toUint64(v)
	if err != nil {
		return nil, err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return append(dst, b[:]...), nil
}

func (oidCodec) Decode(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("pgtype: oid: expected 4 bytes, got %d", len(src))
	}
	return binary.BigEndian.Uint32(src), nil
}

type float4Codec struct{}

func (float4Codec) Encode(dst []byte, v any) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(f)))
	return append(dst, b[:]...), nil
}

func (float4Codec) Decode(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("pgtype: float4: expected 4 bytes, got %d", len(src))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(src)), nil
}

type float8Codec struct{}

func (float8Codec) Encode(dst []byte, v any) ([]byte, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	return append(dst, b[:]...), nil
}

func (float8Codec) Decode(src []byte) (any, error) {
	if len(src) != 8 {
		return nil, fmt.Errorf("pgtype: float8: expected 8 bytes, got %d", len(src))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(src)), nil
}

type boolCodec struct{}

func (boolCodec) Encode(dst []byte, v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("pgtype: bool: unsupported value type %T", v)
	}
	if b {
		return append(dst, 1), nil
	}
	return append(dst, 0), nil
}

func (boolCodec) Decode(src []byte) (any, error) {
	if len(src) != 1 {
		return nil, fmt.Errorf("pgtype: bool: expected 1 byte, got %d", len(src))
	}
	return src[0] != 0, nil
}

type textCodec struct{}

func (textCodec) Encode(dst []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return append(dst, t...), nil
	case []byte:
		return append(dst, t...), nil
	case fmt.Stringer:
		return append(dst, t.String()...), nil
	default:
		return append(dst, fmt.Sprint(t)...), nil
	}
}

func (textCodec) Decode(src []byte) (any, error) {
	return string(src), nil
}

type byteaCodec struct{}

func (byteaCodec) Encode(dst []byte, v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("pgtype: bytea: unsupported value type %T", v)
	}
	return append(dst, b...), nil
}

func (byteaCodec) Decode(src []byte) (any, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("pgtype: unsupported integer value type %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("pgtype: unsupported float value type %T", v)
		}
		return float64(n), nil
	}
}

func inferExtendedOID(v any) protocol.OID {
	switch v.(type) {
	case decimal.Decimal, *decimal.Decimal:
		return protocol.OIDNumeric
	case uuid.UUID, *uuid.UUID:
		return protocol.OIDUUID
	case json.RawMessage:
		return protocol.OIDJSONB
	case time.Time:
		return protocol.OIDTimestamp
	case time.Duration:
		return protocol.OIDInterval
	default:
		return protocol.OIDUnknown
	}
}
