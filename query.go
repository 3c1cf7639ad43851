package pyros

import (
	"context"

	"github.com/elbaro/pyros/cache"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// Query runs sql over the simple-query protocol (no parameters) and
// returns every row of its first result set, draining any further result
// sets so the connection ends back at Idle.
func (c *Conn) Query(ctx context.Context, sql string, mode RowMode) (Rows, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, _, err := c.simpleQuery(ctx, sql, mode, false)
	return rows, err
}

// QueryFirst runs sql over the simple-query protocol and returns only the
// first row of the first result set, still draining the rest to restore
// Idle. It returns (nil, nil) iff the query yields zero rows.
func (c *Conn) QueryFirst(ctx context.Context, sql string, mode RowMode) (*Row, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, _, err := c.simpleQuery(ctx, sql, mode, true)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// QueryDrop runs sql over the simple-query protocol, discards any rows,
// and returns the affected-row count from the final CommandComplete.
func (c *Conn) QueryDrop(ctx context.Context, sql string) (int64, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	_, affected, err := c.simpleQuery(ctx, sql, RowPositional, false)
	return affected, err
}

// simpleQuery issues sql as a Query message and reads through
// ReadyForQuery, accumulating the first result set's rows. When
// firstOnly is set, rows after the first are read off the wire but not
// decoded (the wire stream must still be drained in full).
func (c *Conn) simpleQuery(ctx context.Context, sql string, mode RowMode, firstOnly bool) (Rows, int64, error) {
	c.writer.Start(protocol.SimpleQuery)
	c.writer.AddCString(sql)
	if err := c.endWrite(); err != nil {
		return nil, 0, err
	}

	var (
		rows              Rows
		fields            []cache.FieldDescription
		firstResultSetDone bool
		queryErr          error
	)

	for {
		typ, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			c.fail()
			return nil, 0, pgerr.NewConnectionFailedError(err)
		}

		switch typ {
		case protocol.RowDescription:
			fields, err = readRowDescription(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}

		case protocol.DataRow:
			raw, err := readDataRow(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			if queryErr == nil && !firstResultSetDone && (!firstOnly || len(rows) == 0) {
				row, err := decodeRow(fields, raw, mode)
				if err != nil {
					queryErr = err
					continue
				}
				rows = append(rows, row)
			}

		case protocol.CommandComplete:
			tag, err := c.reader.GetString()
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			c.lastCommandTag = tag
			c.affectedRows = parseCommandTag(tag)
			fields = nil
			firstResultSetDone = true

		case protocol.EmptyQueryResponse:
			c.affectedRows = 0
			firstResultSetDone = true

		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			if queryErr == nil {
				queryErr = dbErr
			}

		case protocol.NoticeResponse:
			notice, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			c.logger.Info("notice", "notice", notice)

		case protocol.ReadyForQuery:
			status, err := c.reader.GetByte()
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			c.setPhaseFromReady(protocol.ReadyStatus(status))
			if queryErr != nil {
				return nil, 0, queryErr
			}
			return rows, c.affectedRows, nil

		default:
			// ParseComplete/BindComplete/etc never occur in the simple
			// protocol; ignore anything else defensively.
		}
	}
}
