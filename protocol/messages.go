// Package protocol defines the PostgreSQL frontend/backend wire protocol
// message tags, protocol version numbers and the handful of well-known
// request codes (SSL, cancel) needed to drive a connection from the
// frontend's side of the wire.
package protocol

// FrontendMessage identifies a message the client writes onto the wire.
type FrontendMessage byte

// Frontend message tags, protocol version 3.0.
// https://www.postgresql.org/docs/current/protocol-message-formats.html
const (
	Bind            FrontendMessage = 'B'
	Close           FrontendMessage = 'C'
	CopyData        FrontendMessage = 'd'
	CopyDone        FrontendMessage = 'c'
	CopyFail        FrontendMessage = 'f'
	Describe        FrontendMessage = 'D'
	Execute         FrontendMessage = 'E'
	Flush           FrontendMessage = 'H'
	Parse           FrontendMessage = 'P'
	PasswordMessage FrontendMessage = 'p'
	SimpleQuery     FrontendMessage = 'Q'
	Sync            FrontendMessage = 'S'
	Terminate       FrontendMessage = 'X'
)

func (m FrontendMessage) String() string {
	switch m {
	case Bind:
		return "Bind"
	case Close:
		return "Close"
	case CopyData:
		return "CopyData"
	case CopyDone:
		return "CopyDone"
	case CopyFail:
		return "CopyFail"
	case Describe:
		return "Describe"
	case Execute:
		return "Execute"
	case Flush:
		return "Flush"
	case Parse:
		return "Parse"
	case PasswordMessage:
		return "PasswordMessage"
	case SimpleQuery:
		return "Query"
	case Sync:
		return "Sync"
	case Terminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// BackendMessage identifies a message the server writes onto the wire and
// the client must decode.
type BackendMessage byte

const (
	Authentication        BackendMessage = 'R'
	BackendKeyData         BackendMessage = 'K'
	BindComplete           BackendMessage = '2'
	CommandComplete        BackendMessage = 'C'
	CloseComplete          BackendMessage = '3'
	CopyInResponse         BackendMessage = 'G'
	DataRow                BackendMessage = 'D'
	EmptyQueryResponse     BackendMessage = 'I'
	ErrorResponse          BackendMessage = 'E'
	NoticeResponse         BackendMessage = 'N'
	NotificationResponse   BackendMessage = 'A'
	NoData                 BackendMessage = 'n'
	ParameterDescription   BackendMessage = 't'
	ParameterStatus        BackendMessage = 'S'
	ParseComplete          BackendMessage = '1'
	PortalSuspended        BackendMessage = 's'
	ReadyForQuery          BackendMessage = 'Z'
	RowDescription         BackendMessage = 'T'
)

func (m BackendMessage) String() string {
	switch m {
	case Authentication:
		return "Authentication"
	case BackendKeyData:
		return "BackendKeyData"
	case BindComplete:
		return "BindComplete"
	case CommandComplete:
		return "CommandComplete"
	case CloseComplete:
		return "CloseComplete"
	case CopyInResponse:
		return "CopyInResponse"
	case DataRow:
		return "DataRow"
	case EmptyQueryResponse:
		return "EmptyQueryResponse"
	case ErrorResponse:
		return "ErrorResponse"
	case NoticeResponse:
		return "NoticeResponse"
	case NotificationResponse:
		return "NotificationResponse"
	case NoData:
		return "NoData"
	case ParameterDescription:
		return "ParameterDescription"
	case ParameterStatus:
		return "ParameterStatus"
	case ParseComplete:
		return "ParseComplete"
	case PortalSuspended:
		return "PortalSuspended"
	case ReadyForQuery:
		return "ReadyForQuery"
	case RowDescription:
		return "RowDescription"
	default:
		return "Unknown"
	}
}

// DescribeTarget identifies whether a Describe message targets a prepared
// statement or a portal.
type DescribeTarget byte

const (
	DescribePortal    DescribeTarget = 'P'
	DescribeStatement DescribeTarget = 'S'
)

// AuthType identifies the sub-message kind carried by an Authentication
// backend message (the int32 immediately following the tag+length).
type AuthType int32

const (
	AuthOK                AuthType = 0
	AuthCleartextPassword AuthType = 3
	AuthMD5Password       AuthType = 5
	AuthSASL              AuthType = 10
	AuthSASLContinue      AuthType = 11
	AuthSASLFinal         AuthType = 12
)

// FormatCode selects text (0) or binary (1) wire representation for a
// parameter or result column.
type FormatCode int16

const (
	TextFormat   FormatCode = 0
	BinaryFormat FormatCode = 1
)

// ReadyStatus is the transaction-block indicator carried on ReadyForQuery.
type ReadyStatus byte

const (
	ReadyIdle            ReadyStatus = 'I'
	ReadyInTransaction   ReadyStatus = 'T'
	ReadyInFailedTx      ReadyStatus = 'E'
)

// Well-known request codes sent in place of a protocol version during
// startup.
const (
	ProtocolVersion3 int32 = 3<<16 | 0
	SSLRequestCode   int32 = 80877103
	CancelRequestCode int32 = 80877102
)
