package pyros

import "github.com/elbaro/pyros/protocol"

// Parameter is one bound value of an extended-query Bind message: its wire
// format (text or binary) and its already-encoded bytes.
type Parameter struct {
	format protocol.FormatCode
	oid    protocol.OID
	value  []byte
}

// NewParameter builds a Parameter with an explicit format and already
// binary-encoded value.
func NewParameter(format protocol.FormatCode, oid protocol.OID, value []byte) Parameter {
	return Parameter{format: format, oid: oid, value: value}
}

func (p Parameter) Format() protocol.FormatCode { return p.format }
func (p Parameter) OID() protocol.OID           { return p.oid }
func (p Parameter) Value() []byte               { return p.value }

// ParameterStatus is a metadata key reported by the server via a
// ParameterStatus message after authentication and on later GUC changes.
type ParameterStatus string

// https://www.postgresql.org/docs/current/protocol-flow.html#PROTOCOL-ASYNC
const (
	ParamServerEncoding       ParameterStatus = "server_encoding"
	ParamClientEncoding       ParameterStatus = "client_encoding"
	ParamIsSuperuser          ParameterStatus = "is_superuser"
	ParamSessionAuthorization ParameterStatus = "session_authorization"
	ParamApplicationName      ParameterStatus = "application_name"
	ParamDatabase             ParameterStatus = "database"
	ParamServerVersion        ParameterStatus = "server_version"
)

// Parameters is the table of server GUCs reported via ParameterStatus. A
// client connection has exactly one parameter table for its whole
// lifetime, so it hangs directly off the Conn.
type Parameters map[ParameterStatus]string
