package protocol

// OID identifies a PostgreSQL data type as reported in RowDescription and
// ParameterDescription messages.
//
// Only the subset of built-in type OIDs the value codecs in pgtype know how
// to handle (plus OIDUnknown) are named here; this replaces pulling in
// lib/pq's oid subpackage for nineteen constants.
type OID uint32

const (
	OIDBool      OID = 16
	OIDBytea     OID = 17
	OIDInt8      OID = 20
	OIDInt2      OID = 21
	OIDInt4      OID = 23
	OIDText      OID = 25
	OIDOID       OID = 26
	OIDJSON      OID = 114
	OIDFloat4    OID = 700
	OIDFloat8    OID = 701
	OIDUnknown   OID = 705
	OIDVarchar   OID = 1043
	OIDDate      OID = 1082
	OIDTime      OID = 1083
	OIDTimestamp OID = 1114
	OIDInterval  OID = 1186
	OIDNumeric   OID = 1700
	OIDUUID      OID = 2950
	OIDJSONB     OID = 3802
)

func (o OID) String() string {
	switch o {
	case OIDBool:
		return "bool"
	case OIDBytea:
		return "bytea"
	case OIDInt8:
		return "int8"
	case OIDInt2:
		return "int2"
	case OIDInt4:
		return "int4"
	case OIDText:
		return "text"
	case OIDOID:
		return "oid"
	case OIDJSON:
		return "json"
	case OIDFloat4:
		return "float4"
	case OIDFloat8:
		return "float8"
	case OIDVarchar:
		return "varchar"
	case OIDDate:
		return "date"
	case OIDTime:
		return "time"
	case OIDTimestamp:
		return "timestamp"
	case OIDInterval:
		return "interval"
	case OIDNumeric:
		return "numeric"
	case OIDUUID:
		return "uuid"
	case OIDJSONB:
		return "jsonb"
	default:
		return "unknown"
	}
}
