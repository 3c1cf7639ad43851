// Package pgtype implements the binary encode/decode functions mapping Go
// host values onto PostgreSQL wire representations and back, dispatched by
// type OID through a native codec table.
package pgtype

import (
	"fmt"

	"github.com/elbaro/pyros/protocol"
)

// Codec encodes a host value to its binary wire representation and decodes
// the wire representation back into a host value, for one PostgreSQL type
// OID.
type Codec interface {
	// Encode appends the binary representation of v to dst and returns the
	// extended slice. A nil v (untyped nil) must be handled by the caller
	// before Encode is invoked (NULL is signalled by length = -1 on the
	// wire, not by any Codec).
	Encode(dst []byte, v any) ([]byte, error)
	// Decode parses src (the column's raw bytes, already stripped of its
	// length prefix) into a host value.
	Decode(src []byte) (any, error)
}

// registry maps a type OID to the Codec responsible for it.
var registry = map[protocol.OID]Codec{
	protocol.OIDBool:      boolCodec{},
	protocol.OIDBytea:     byteaCodec{},
	protocol.OIDInt8:      int8Codec{},
	protocol.OIDInt2:      int2Codec{},
	protocol.OIDInt4:      int4Codec{},
	protocol.OIDOID:       oidCodec{},
	protocol.OIDText:      textCodec{},
	protocol.OIDVarchar:   textCodec{},
	protocol.OIDJSON:      jsonCodec{jsonb: false},
	protocol.OIDJSONB:     jsonCodec{jsonb: true},
	protocol.OIDFloat4:    float4Codec{},
	protocol.OIDFloat8:    float8Codec{},
	protocol.OIDDate:      dateCodec{},
	protocol.OIDTime:      timeCodec{},
	protocol.OIDTimestamp: timestampCodec{},
	protocol.OIDInterval:  intervalCodec{},
	protocol.OIDNumeric:   numericCodec{},
	protocol.OIDUUID:      uuidCodec{},
}

// Lookup returns the Codec registered for oid, and whether one was found.
func Lookup(oid protocol.OID) (Codec, bool) {
	c, ok := registry[oid]
	return c, ok
}

// Encode encodes v as the binary representation of the PostgreSQL type
// identified by oid. A nil v encodes to a nil slice, which the caller must
// translate to a -1 length prefix (SQL NULL) rather than a 0 length.
func Encode(oid protocol.OID, v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	codec, ok := registry[oid]
	if !ok {
		return nil, fmt.Errorf("pgtype: no codec registered for oid %d (%s)", oid, oid)
	}

	return codec.Encode(nil, v)
}

// Decode decodes src (the raw column bytes) as the PostgreSQL type
// identified by oid. A nil src (NULL) always decodes to a nil interface
// regardless of oid.
func Decode(oid protocol.OID, src []byte) (any, error) {
	if src == nil {
		return nil, nil
	}

	codec, ok := registry[oid]
	if !ok {
		return nil, fmt.Errorf("pgtype: no codec registered for oid %d (%s)", oid, oid)
	}

	return codec.Decode(src)
}

// InferOID returns the PostgreSQL OID that should be used to bind a
// parameter of the given host value's Go type, following the host->pg
// mapping table. It returns OIDUnknown when v's type has no direct
// mapping, letting the server infer the type from context.
func InferOID(v any) protocol.OID {
	switch v.(type) {
	case bool:
		return protocol.OIDBool
	case []byte:
		return protocol.OIDBytea
	case int8, int16:
		return protocol.OIDInt2
	case int, int32:
		return protocol.OIDInt4
	case int64:
		return protocol.OIDInt8
	case uint32:
		return protocol.OIDOID
	case float32:
		return protocol.OIDFloat4
	case float64:
		return protocol.OIDFloat8
	case string:
		return protocol.OIDText
	default:
		return inferExtendedOID(v)
	}
}
