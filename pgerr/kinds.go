// Package pgerr defines the error taxonomy a caller of this library can
// see: DbError for anything the backend reports over the wire, plus the
// client-side kinds (connection failure, closed connection, unsupported
// type, API misuse, closed transaction, poisoned pipeline).
package pgerr

import (
	"errors"
	"fmt"

	"github.com/elbaro/pyros/codes"
)

// Severity mirrors the Postgres error/notice severity field.
type Severity string

const (
	LevelError   Severity = "ERROR"
	LevelFatal   Severity = "FATAL"
	LevelPanic   Severity = "PANIC"
	LevelWarning Severity = "WARNING"
	LevelNotice  Severity = "NOTICE"
	LevelDebug   Severity = "DEBUG"
	LevelInfo    Severity = "INFO"
	LevelLog     Severity = "LOG"
)

// DefaultSeverity returns severity, or LevelError if it is empty.
func DefaultSeverity(severity Severity) Severity {
	if severity == "" {
		return LevelError
	}
	return severity
}

// DbError represents a backend ErrorResponse: recoverable, the connection
// returns to Idle once the following ReadyForQuery has been consumed. All
// of the wire fields the client decodes live on this one struct; use
// errors.As (or the Get* helpers below) to reach them through a wrapped
// chain such as a PipelineAbortedError.
type DbError struct {
	Severity       Severity
	Code           codes.Code
	Message        string
	Detail         string
	Hint           string
	ConstraintName string
}

func (e *DbError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s): %s (%s)", e.Severity, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", e.Severity, e.Code, e.Message)
}

// GetCode returns the SQLSTATE of the DbError in err's chain, or
// Uncategorized when there is none.
func GetCode(err error) codes.Code {
	var dbErr *DbError
	if errors.As(err, &dbErr) && dbErr.Code != "" {
		return dbErr.Code
	}
	return codes.Uncategorized
}

// GetSeverity returns the severity of the DbError in err's chain, or ""
// when there is none.
func GetSeverity(err error) Severity {
	var dbErr *DbError
	if errors.As(err, &dbErr) {
		return dbErr.Severity
	}
	return ""
}

// GetDetail returns the detail field of the DbError in err's chain, or ""
// when there is none.
func GetDetail(err error) string {
	var dbErr *DbError
	if errors.As(err, &dbErr) {
		return dbErr.Detail
	}
	return ""
}

// GetHint returns the hint field of the DbError in err's chain, or "" when
// there is none.
func GetHint(err error) string {
	var dbErr *DbError
	if errors.As(err, &dbErr) {
		return dbErr.Hint
	}
	return ""
}

// GetConstraintName returns the violated-constraint name of the DbError in
// err's chain, or "" when there is none.
func GetConstraintName(err error) string {
	var dbErr *DbError
	if errors.As(err, &dbErr) {
		return dbErr.ConstraintName
	}
	return ""
}

// ConnectionFailedError signals a TCP/TLS failure, startup rejection, or
// authentication failure. Fatal to the connection.
type ConnectionFailedError struct {
	Cause error
}

func (e *ConnectionFailedError) Error() string {
	if e.Cause != nil {
		return "pyros: connection failed: " + e.Cause.Error()
	}
	return "pyros: connection failed"
}

func (e *ConnectionFailedError) Unwrap() error { return e.Cause }

// NewConnectionFailedError wraps cause as a ConnectionFailedError.
func NewConnectionFailedError(cause error) error {
	return &ConnectionFailedError{Cause: cause}
}

// ErrConnectionClosed is returned by any operation attempted after Close()
// or after a fatal error.
var ErrConnectionClosed = errors.New("pyros: connection is closed")

// UnsupportedTypeError signals a parameter or column OID the value codec
// table does not know how to handle.
type UnsupportedTypeError struct {
	OID uint32
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("pyros: unsupported type oid %d", e.OID)
}

// NewUnsupportedTypeError builds an UnsupportedTypeError for the given OID.
func NewUnsupportedTypeError(oid uint32) error {
	return &UnsupportedTypeError{OID: oid}
}

// MisuseError signals API usage that violates the connection state
// machine: a second concurrent call, a portal used after its transaction
// ended, an out-of-order pipeline claim, a bad ssl_mode string, and so on.
type MisuseError struct {
	Message string
}

func (e *MisuseError) Error() string { return "pyros: misuse: " + e.Message }

// NewMisuseError builds a MisuseError with the given message.
func NewMisuseError(format string, args ...any) error {
	return &MisuseError{Message: fmt.Sprintf(format, args...)}
}

// TransactionClosedError is raised by a second commit()/rollback() call
// after the transaction has already reached a terminal state.
type TransactionClosedError struct{}

func (e *TransactionClosedError) Error() string { return "pyros: transaction already closed" }

// ErrTransactionClosed is the canonical TransactionClosedError instance.
var ErrTransactionClosed error = &TransactionClosedError{}

// PipelineAbortedError is raised by claim_* on a ticket poisoned by an
// earlier failure in the same pipeline batch.
type PipelineAbortedError struct {
	Cause error
}

func (e *PipelineAbortedError) Error() string {
	if e.Cause != nil {
		return "pyros: pipeline aborted: " + e.Cause.Error()
	}
	return "pyros: pipeline aborted"
}

func (e *PipelineAbortedError) Unwrap() error { return e.Cause }

// NewPipelineAbortedError wraps the error of the ticket that poisoned the
// pipeline.
func NewPipelineAbortedError(cause error) error {
	return &PipelineAbortedError{Cause: cause}
}
