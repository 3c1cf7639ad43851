package pyros

import (
	"github.com/elbaro/pyros/buffer"
	"github.com/elbaro/pyros/codes"
	"github.com/elbaro/pyros/pgerr"
)

// errField identifies one tagged field of an ErrorResponse/NoticeResponse
// message. https://www.postgresql.org/docs/current/protocol-error-fields.html
type errField byte

const (
	errFieldSeverity       errField = 'S'
	errFieldMsgPrimary     errField = 'M'
	errFieldSQLState       errField = 'C'
	errFieldDetail         errField = 'D'
	errFieldHint           errField = 'H'
	errFieldConstraintName errField = 'n'
)

// readErrorResponse parses the tagged-field body of an ErrorResponse (or
// NoticeResponse) message already positioned at its first field tag, and
// returns it as a pgerr.DbError.
func readErrorResponse(reader *buffer.Reader) (error, error) {
	dbErr := &pgerr.DbError{Code: codes.Uncategorized}

	for {
		tag, err := reader.GetByte()
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			break
		}

		value, err := reader.GetString()
		if err != nil {
			return nil, err
		}

		switch errField(tag) {
		case errFieldSeverity:
			dbErr.Severity = pgerr.Severity(value)
		case errFieldSQLState:
			dbErr.Code = codes.Code(value)
		case errFieldMsgPrimary:
			dbErr.Message = value
		case errFieldDetail:
			dbErr.Detail = value
		case errFieldHint:
			dbErr.Hint = value
		case errFieldConstraintName:
			dbErr.ConstraintName = value
		}
	}

	dbErr.Severity = pgerr.DefaultSeverity(dbErr.Severity)
	return dbErr, nil
}
