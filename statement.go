package pyros

import (
	"context"

	"github.com/elbaro/pyros/cache"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// PreparedStatement is a server-side statement bound to the Connection
// that parsed it: its assigned name, the original SQL text, the
// inferred parameter OIDs and the result field descriptions.
type PreparedStatement = cache.Statement

// Prepare parses sql explicitly (or returns the cached statement if this
// exact text was already parsed) and returns a handle valid for the
// lifetime of the connection. When any portal is currently open, Flush is
// used instead of Sync so the explicit prepare cannot close them.
func (c *Conn) Prepare(ctx context.Context, sql string) (*PreparedStatement, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return c.prepare(ctx, sql)
}

// prepare looks up sql in the cache, or Parses+Describes it and inserts
// the result, without claiming the in-use flag (callers that already hold
// it call this directly).
func (c *Conn) prepare(ctx context.Context, sql string) (*PreparedStatement, error) {
	if stmt, ok := c.statements.Get(sql); ok {
		return stmt, nil
	}

	name := c.nextStatementName()
	c.writeParse(name, sql, nil)
	if err := c.endWrite(); err != nil {
		return nil, err
	}

	c.writeDescribeStatement(name)
	if err := c.endWrite(); err != nil {
		return nil, err
	}

	useFlush := c.openPortals.Load() > 0
	if useFlush {
		if err := c.writeFlush(); err != nil {
			return nil, err
		}
	} else {
		if err := c.writeSync(); err != nil {
			return nil, err
		}
	}

	stmt := &PreparedStatement{Name: name, SQL: sql}
	var parseErr error

	// describeComplete reports whether the full ParameterDescription +
	// (RowDescription|NoData) response has arrived. In Flush mode the
	// server never sends ReadyForQuery, so this is the only completion
	// signal available.
	describeComplete := func() bool {
		return stmt.ParamOIDs != nil && (stmt.Fields != nil || stmt.NoFields)
	}

	for {
		typ, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			c.fail()
			return nil, pgerr.NewConnectionFailedError(err)
		}

		switch typ {
		case protocol.ParseComplete:
			// no payload

		case protocol.ParameterDescription:
			oids, err := readParameterDescription(c.reader)
			if err != nil {
				c.fail()
				return nil, pgerr.NewConnectionFailedError(err)
			}
			stmt.ParamOIDs = oids

		case protocol.RowDescription:
			fields, err := readRowDescription(c.reader)
			if err != nil {
				c.fail()
				return nil, pgerr.NewConnectionFailedError(err)
			}
			stmt.Fields = fields

		case protocol.NoData:
			stmt.NoFields = true

		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return nil, pgerr.NewConnectionFailedError(err)
			}
			parseErr = dbErr
			if useFlush {
				return nil, parseErr
			}

		case protocol.NoticeResponse:
			notice, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return nil, pgerr.NewConnectionFailedError(err)
			}
			c.logger.Info("notice", "notice", notice)

		case protocol.ReadyForQuery:
			status, err := c.reader.GetByte()
			if err != nil {
				c.fail()
				return nil, pgerr.NewConnectionFailedError(err)
			}
			c.setPhaseFromReady(protocol.ReadyStatus(status))
			if parseErr != nil {
				return nil, parseErr
			}
			c.statements.Set(stmt)
			return stmt, nil

		default:
			c.logger.Debug("unexpected message during prepare", "type", typ.String())
		}

		// Flush never produces ReadyForQuery; ParseComplete + the describe
		// response is the complete reply for this request.
		if useFlush && describeComplete() {
			c.statements.Set(stmt)
			return stmt, nil
		}
	}
}
