package pyros

import (
	"context"

	"github.com/elbaro/pyros/cache"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// Portal is a server-side execution cursor bound to a prepared statement,
// valid only while its owning Tx is open. Multiple portals may be
// open in the same transaction and fetched in any interleaved order.
type Portal struct {
	conn   *Conn
	tx     *Tx
	name   string
	fields []cache.FieldDescription
	done   bool
	closed bool
}

// ExecPortal parses sql (if not already cached), binds it to a freshly
// named portal and returns a handle without issuing Execute. Only callable
// inside an open transaction.
func (tx *Tx) ExecPortal(ctx context.Context, sql string, args []any) (*Portal, error) {
	if !tx.open() {
		return nil, pgerr.NewMisuseError("exec_portal: transaction is not open")
	}
	c := tx.conn

	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stmt, err := c.prepare(ctx, sql)
	if err != nil {
		return nil, err
	}

	params, err := bindParams(args, stmt.ParamOIDs)
	if err != nil {
		return nil, err
	}

	name := c.nextPortalName()
	c.writeBind(name, stmt.Name, params, len(stmt.Fields))
	if err := c.endWrite(); err != nil {
		return nil, err
	}
	if err := c.writeFlush(); err != nil {
		return nil, err
	}

	if err := c.readUntil(protocol.BindComplete); err != nil {
		return nil, err
	}

	c.openPortals.Add(1)
	return &Portal{conn: c, tx: tx, name: name, fields: stmt.Fields}, nil
}

// nextPortalName allocates a name for a new portal, distinct from
// statement names and never reused within the connection's lifetime.
func (c *Conn) nextPortalName() string {
	return "pyros_portal_" + itoa(c.portalCounter.Add(1))
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// readUntil reads and discards messages until typ is observed (used only
// during portal setup/teardown, which never reaches ReadyForQuery because
// Flush rather than Sync is used).
func (c *Conn) readUntil(want protocol.BackendMessage) error {
	for {
		typ, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			c.fail()
			return pgerr.NewConnectionFailedError(err)
		}
		switch typ {
		case want:
			return nil
		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return pgerr.NewConnectionFailedError(err)
			}
			return dbErr
		case protocol.NoticeResponse:
			notice, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return pgerr.NewConnectionFailedError(err)
			}
			c.logger.Info("notice", "notice", notice)
		}
	}
}

// Collect sends Execute(portal, limit)+Flush and reads DataRows until
// either limit rows have been produced (PortalSuspended) or the cursor
// completes (CommandComplete). limit = 0 fetches all remaining rows and
// guarantees hasMore=false.
func (p *Portal) Collect(ctx context.Context, limit int, mode RowMode) (rows Rows, hasMore bool, err error) {
	if p.closed {
		return nil, false, pgerr.NewMisuseError("portal %q is closed", p.name)
	}
	if !p.tx.open() {
		return nil, false, pgerr.NewMisuseError("portal %q used after its transaction ended", p.name)
	}
	if p.done {
		return Rows{}, false, nil
	}

	release, err := p.conn.claim(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	p.conn.writeExecute(p.name, int32(limit))
	if err := p.conn.endWrite(); err != nil {
		return nil, false, err
	}
	if err := p.conn.writeFlush(); err != nil {
		return nil, false, err
	}

	for {
		typ, _, err := p.conn.reader.ReadTypedMsg()
		if err != nil {
			p.conn.fail()
			return nil, false, pgerr.NewConnectionFailedError(err)
		}

		switch typ {
		case protocol.DataRow:
			raw, err := readDataRow(p.conn.reader)
			if err != nil {
				p.conn.fail()
				return nil, false, pgerr.NewConnectionFailedError(err)
			}
			row, err := decodeRow(p.fields, raw, mode)
			if err != nil {
				return nil, false, err
			}
			rows = append(rows, row)

		case protocol.PortalSuspended:
			return rows, true, nil

		case protocol.CommandComplete:
			tag, err := p.conn.reader.GetString()
			if err != nil {
				p.conn.fail()
				return nil, false, pgerr.NewConnectionFailedError(err)
			}
			p.conn.lastCommandTag = tag
			p.conn.affectedRows = parseCommandTag(tag)
			p.done = true
			return rows, false, nil

		case protocol.EmptyQueryResponse:
			p.done = true
			return rows, false, nil

		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(p.conn.reader)
			if err != nil {
				p.conn.fail()
				return nil, false, pgerr.NewConnectionFailedError(err)
			}
			p.done = true
			return nil, false, dbErr

		case protocol.NoticeResponse:
			notice, err := readErrorResponse(p.conn.reader)
			if err != nil {
				p.conn.fail()
				return nil, false, pgerr.NewConnectionFailedError(err)
			}
			p.conn.logger.Info("notice", "notice", notice)
		}
	}
}

// Close closes the portal. It is idempotent.
func (p *Portal) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	if !p.tx.open() {
		return pgerr.NewMisuseError("portal %q used after its transaction ended", p.name)
	}

	release, err := p.conn.claim(ctx)
	if err != nil {
		return err
	}
	defer release()

	p.conn.writeClosePortal(p.name)
	if err := p.conn.endWrite(); err != nil {
		return err
	}
	if err := p.conn.writeFlush(); err != nil {
		return err
	}

	if err := p.conn.readUntil(protocol.CloseComplete); err != nil {
		return err
	}

	p.closed = true
	if p.conn.openPortals.Add(-1) < 0 {
		p.conn.openPortals.Store(0)
	}
	return nil
}

// ExecIter is a non-transactional convenience: it opens an implicit
// transaction, invokes fn with a fresh Portal over sql, and commits on a
// nil return or rolls back and re-raises on error (including the Portal
// being left unclosed is not itself an error; Tx teardown invalidates it).
func (c *Conn) ExecIter(ctx context.Context, sql string, args []any, fn func(*Portal) error) error {
	return c.WithTx(ctx, ReadCommitted, false, func(tx *Tx) error {
		portal, err := tx.ExecPortal(ctx, sql, args)
		if err != nil {
			return err
		}
		defer portal.Close(ctx)

		return fn(portal)
	})
}
