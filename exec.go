package pyros

import (
	"context"

	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// Exec runs sql with bound parameters over the extended-query protocol and
// returns every row of the result.
func (c *Conn) Exec(ctx context.Context, sql string, params []any, mode RowMode) (Rows, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, _, err := c.extendedExec(ctx, sql, params, mode)
	return rows, err
}

// ExecFirst runs sql with bound parameters and returns only the first row,
// or (nil, nil) iff the query yields zero rows.
func (c *Conn) ExecFirst(ctx context.Context, sql string, params []any, mode RowMode) (*Row, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, _, err := c.extendedExec(ctx, sql, params, mode)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ExecDrop runs sql with bound parameters, discards any rows, and returns
// the affected-row count.
func (c *Conn) ExecDrop(ctx context.Context, sql string, params []any) (int64, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	_, affected, err := c.extendedExec(ctx, sql, params, RowPositional)
	return affected, err
}

// extendedExec runs the one-shot extended-query recipe: Bind the
// unnamed portal against the (possibly freshly Parsed+Described) cached
// statement, Execute with no limit, Sync, and read through ReadyForQuery.
func (c *Conn) extendedExec(ctx context.Context, sql string, args []any, mode RowMode) (Rows, int64, error) {
	stmt, err := c.prepare(ctx, sql)
	if err != nil {
		return nil, 0, err
	}

	params, err := bindParams(args, stmt.ParamOIDs)
	if err != nil {
		return nil, 0, err
	}

	resultCols := len(stmt.Fields)
	c.writeBind("", stmt.Name, params, resultCols)
	if err := c.endWrite(); err != nil {
		return nil, 0, err
	}

	c.writeExecute("", 0)
	if err := c.endWrite(); err != nil {
		return nil, 0, err
	}

	if err := c.writeSync(); err != nil {
		return nil, 0, err
	}

	fields := stmt.Fields
	var (
		rows    Rows
		execErr error
	)

	for {
		typ, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			c.fail()
			return nil, 0, pgerr.NewConnectionFailedError(err)
		}

		switch typ {
		case protocol.BindComplete:
			// no payload

		case protocol.DataRow:
			raw, err := readDataRow(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			if execErr == nil {
				row, err := decodeRow(fields, raw, mode)
				if err != nil {
					execErr = err
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

		case protocol.EmptyQueryResponse:
			c.affectedRows = 0

		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			if execErr == nil {
				execErr = dbErr
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
			if execErr != nil {
				return nil, 0, execErr
			}
			return rows, c.affectedRows, nil
		}
	}
}

// ExecBatch issues one Bind+Execute pair per element of argsList against a
// single cached statement, followed by one final Sync; an empty argsList
// sends no messages at all. On any backend error, remaining binds are
// aborted and the error is raised once the batch has drained.
func (c *Conn) ExecBatch(ctx context.Context, sql string, argsList [][]any) error {
	release, err := c.claim(ctx)
	if err != nil {
		return err
	}
	defer release()

	if len(argsList) == 0 {
		return nil
	}

	stmt, err := c.prepare(ctx, sql)
	if err != nil {
		return err
	}

	for _, args := range argsList {
		params, err := bindParams(args, stmt.ParamOIDs)
		if err != nil {
			return err
		}
		c.writeBind("", stmt.Name, params, len(stmt.Fields))
		if err := c.endWrite(); err != nil {
			return err
		}
		c.writeExecute("", 0)
		if err := c.endWrite(); err != nil {
			return err
		}
	}

	if err := c.writeSync(); err != nil {
		return err
	}

	// A backend error silently aborts all subsequent queued Bind/Execute
	// pairs until Sync; there is no per-operation error/complete for
	// ops after the first failure, so draining is bounded only by
	// ReadyForQuery, not by a per-ticket count.
	_, err = c.drainToReady(nil)
	return err
}
