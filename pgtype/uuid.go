package pgtype

import (
	"fmt"

	"github.com/google/uuid"
)

// uuidCodec encodes/decodes uuid as its 16 raw bytes, network byte order
// (which for a UUID's byte layout is also its natural textual order).
type uuidCodec struct{}

func (uuidCodec) Encode(dst []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return append(dst, t[:]...), nil
	case *uuid.UUID:
		return append(dst, t[:]...), nil
	case [16]byte:
		return append(dst, t[:]...), nil
	case string:
		id, err := uuid.Parse(t)
		if err != nil {
			return nil, fmt.Errorf("pgtype: uuid: %w", err)
		}
		return append(dst, id[:]...), nil
	default:
		return nil, fmt.Errorf("pgtype: uuid: unsupported value type %T", v)
	}
}

func (uuidCodec) Decode(src []byte) (any, error) {
	if len(src) != 16 {
		return nil, fmt.Errorf("pgtype: uuid: expected 16 bytes, got %d", len(src))
	}
	var id uuid.UUID
	copy(id[:], src)
	return id, nil
}
