package pgerr

import (
	"errors"
	"testing"

	"github.com/elbaro/pyros/codes"
)

func TestDbErrorFields(t *testing.T) {
	err := &DbError{
		Severity:       LevelError,
		Code:           codes.UniqueViolation,
		Message:        "duplicate key",
		Detail:         "detail text",
		Hint:           "hint text",
		ConstraintName: "users_pkey",
	}

	if GetCode(err) != codes.UniqueViolation {
		t.Errorf("unexpected code %s, expected %s", GetCode(err), codes.UniqueViolation)
	}
	if GetSeverity(err) != LevelError {
		t.Errorf("unexpected severity %s, expected %s", GetSeverity(err), LevelError)
	}
	if GetDetail(err) != "detail text" {
		t.Errorf("unexpected detail %q", GetDetail(err))
	}
	if GetHint(err) != "hint text" {
		t.Errorf("unexpected hint %q", GetHint(err))
	}
	if GetConstraintName(err) != "users_pkey" {
		t.Errorf("unexpected constraint %q", GetConstraintName(err))
	}
}

func TestDbErrorString(t *testing.T) {
	withDetail := &DbError{Severity: LevelError, Code: codes.DivisionByZero, Message: "division by zero", Detail: "the divisor was zero"}
	if withDetail.Error() != "ERROR (22012): division by zero (the divisor was zero)" {
		t.Errorf("unexpected message %q", withDetail.Error())
	}

	plain := &DbError{Severity: LevelWarning, Code: codes.Uncategorized, Message: "plain message"}
	if plain.Error() != "WARNING (XXUUU): plain message" {
		t.Errorf("unexpected message %q", plain.Error())
	}
}

// TestGettersThroughWrappedChain pins the errors.As traversal: a DbError
// buried under a PipelineAbortedError still answers every field getter.
func TestGettersThroughWrappedChain(t *testing.T) {
	dbErr := &DbError{
		Severity: LevelError,
		Code:     codes.DivisionByZero,
		Message:  "division by zero",
		Hint:     "do not divide by zero",
	}
	wrapped := NewPipelineAbortedError(dbErr)

	if GetCode(wrapped) != codes.DivisionByZero {
		t.Errorf("unexpected code %s through wrapped chain", GetCode(wrapped))
	}
	if GetSeverity(wrapped) != LevelError {
		t.Errorf("unexpected severity %s through wrapped chain", GetSeverity(wrapped))
	}
	if GetHint(wrapped) != "do not divide by zero" {
		t.Errorf("unexpected hint %q through wrapped chain", GetHint(wrapped))
	}
}

func TestGettersDefaults(t *testing.T) {
	plain := errors.New("plain")

	if GetCode(plain) != codes.Uncategorized {
		t.Fatal("expected Uncategorized for an error with no DbError in its chain")
	}
	if GetSeverity(plain) != "" {
		t.Fatal("expected empty severity for an error with no DbError in its chain")
	}
	if GetDetail(plain) != "" || GetHint(plain) != "" || GetConstraintName(plain) != "" {
		t.Fatal("expected empty field getters for an error with no DbError in its chain")
	}
}

func TestDefaultSeverity(t *testing.T) {
	if DefaultSeverity("") != LevelError {
		t.Fatalf("expected empty severity to default to %s", LevelError)
	}
	if DefaultSeverity(LevelWarning) != LevelWarning {
		t.Fatal("expected non-empty severity to pass through unchanged")
	}
}

func TestConnectionFailedErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewConnectionFailedError(cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected ConnectionFailedError to unwrap to its cause")
	}
}

func TestPipelineAbortedErrorUnwrap(t *testing.T) {
	cause := errors.New("division by zero")
	err := NewPipelineAbortedError(cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected PipelineAbortedError to unwrap to its cause")
	}
}

func TestUnsupportedTypeError(t *testing.T) {
	err := NewUnsupportedTypeError(99999)
	var typed *UnsupportedTypeError
	if !errors.As(err, &typed) {
		t.Fatal("expected errors.As to find *UnsupportedTypeError")
	}
	if typed.OID != 99999 {
		t.Errorf("unexpected oid %d", typed.OID)
	}
}

func TestMisuseError(t *testing.T) {
	err := NewMisuseError("connection already has an operation in flight")
	if err.Error() != "pyros: misuse: connection already has an operation in flight" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTransactionClosedErrorIsSingleton(t *testing.T) {
	if !errors.Is(ErrTransactionClosed, ErrTransactionClosed) {
		t.Fatal("expected ErrTransactionClosed to compare equal to itself")
	}
}
