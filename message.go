package pyros

import (
	"strconv"
	"strings"

	"github.com/elbaro/pyros/buffer"
	"github.com/elbaro/pyros/cache"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// readRowDescription parses a RowDescription message body already
// positioned just after the tag+length, returning one FieldDescription per
// column in wire order.
func readRowDescription(reader *buffer.Reader) ([]cache.FieldDescription, error) {
	n, err := reader.GetUint16()
	if err != nil {
		return nil, err
	}

	fields := make([]cache.FieldDescription, n)
	for i := range fields {
		name, err := reader.GetString()
		if err != nil {
			return nil, err
		}
		tableOID, err := reader.GetUint32()
		if err != nil {
			return nil, err
		}
		attNum, err := reader.GetInt16()
		if err != nil {
			return nil, err
		}
		typeOID, err := reader.GetUint32()
		if err != nil {
			return nil, err
		}
		typeLen, err := reader.GetInt16()
		if err != nil {
			return nil, err
		}
		typeMod, err := reader.GetInt32()
		if err != nil {
			return nil, err
		}
		format, err := reader.GetInt16()
		if err != nil {
			return nil, err
		}

		fields[i] = cache.FieldDescription{
			Name:         name,
			TableOID:     tableOID,
			ColumnAttNum: attNum,
			TypeOID:      protocol.OID(typeOID),
			TypeLen:      typeLen,
			TypeMod:      typeMod,
			Format:       protocol.FormatCode(format),
		}
	}
	return fields, nil
}

// readParameterDescription parses a ParameterDescription message body,
// returning the parameter OID vector the server inferred.
func readParameterDescription(reader *buffer.Reader) ([]protocol.OID, error) {
	n, err := reader.GetUint16()
	if err != nil {
		return nil, err
	}
	oids := make([]protocol.OID, n)
	for i := range oids {
		v, err := reader.GetUint32()
		if err != nil {
			return nil, err
		}
		oids[i] = protocol.OID(v)
	}
	return oids, nil
}

// readDataRow parses a DataRow message body into its raw column byte
// slices, nil denoting SQL NULL.
func readDataRow(reader *buffer.Reader) ([][]byte, error) {
	n, err := reader.GetUint16()
	if err != nil {
		return nil, err
	}
	cols := make([][]byte, n)
	for i := range cols {
		length, err := reader.GetInt32()
		if err != nil {
			return nil, err
		}
		cols[i], err = reader.GetBytes(int(length))
		if err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// parseCommandTag extracts the affected-row count from a CommandComplete
// tag, e.g. "INSERT 0 3" -> 3, "SELECT 12" -> 12, "CREATE TABLE" -> 0.
func parseCommandTag(tag string) int64 {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// drainToReady reads and discards messages until ReadyForQuery is
// observed: after any error response, no further caller-facing read is
// permitted except to surface the error. firstErr,
// if already set by the caller, is returned unchanged; otherwise the first
// ErrorResponse encountered while draining is returned.
func (c *Conn) drainToReady(firstErr error) (protocol.ReadyStatus, error) {
	for {
		typ, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			c.fail()
			return 0, pgerr.NewConnectionFailedError(err)
		}

		switch typ {
		case protocol.ReadyForQuery:
			status, err := c.reader.GetByte()
			if err != nil {
				c.fail()
				return 0, pgerr.NewConnectionFailedError(err)
			}
			c.setPhaseFromReady(protocol.ReadyStatus(status))
			return protocol.ReadyStatus(status), firstErr

		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return 0, pgerr.NewConnectionFailedError(err)
			}
			if firstErr == nil {
				firstErr = dbErr
			}

		case protocol.NoticeResponse:
			notice, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return 0, pgerr.NewConnectionFailedError(err)
			}
			c.logger.Info("notice", "notice", notice)

		case protocol.CommandComplete:
			tag, err := c.reader.GetString()
			if err != nil {
				c.fail()
				return 0, pgerr.NewConnectionFailedError(err)
			}
			c.lastCommandTag = tag
			c.affectedRows = parseCommandTag(tag)

		case protocol.ParameterStatus:
			key, kerr := c.reader.GetString()
			value, verr := c.reader.GetString()
			if kerr == nil && verr == nil {
				c.parameters[ParameterStatus(key)] = value
			}

		default:
			// DataRow, ParseComplete, BindComplete, etc: discarded while
			// draining a poisoned or already-read batch.
		}
	}
}

// fail transitions the connection to Closed after an unrecoverable framing
// or transport error; subsequent calls observe ConnectionClosedError.
func (c *Conn) fail() {
	if c.closed.CompareAndSwap(false, true) {
		c.phase.Store(int32(phaseClosed))
		c.transport.Close()
	}
}
