package pyros

import (
	"context"
	"errors"

	"github.com/elbaro/pyros/cache"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// Ticket identifies one queued operation within a Pipeline, claimable in
// FIFO order once the Pipeline has been Synced.
type Ticket int

// pendingOp records what was queued for one ticket so its response can be
// decoded once claimed: the target statement (whose field descriptions may
// still be in flight when the op was queued behind its own Describe),
// whether this op carries that Parse+Describe, and the mode to decode rows
// with.
type pendingOp struct {
	stmt     *cache.Statement
	describe bool
	mode     RowMode
}

// Pipeline batches a run of Bind+Execute pairs behind a single round trip:
// every Exec call only writes to the socket, nothing is read back until
// Sync flushes the queue and the caller claims tickets in FIFO order.
// The first backend error poisons the pipeline: every ticket from
// that point on, claimed or not, resolves to PipelineAbortedError.
type Pipeline struct {
	conn    *Conn
	release func()

	synced   bool
	closed   bool
	ops      []pendingOp
	next     Ticket
	aborted  bool
	abortErr error
}

// Pipeline claims the connection and returns a new Pipeline. The caller
// must eventually call Sync (to flush queued operations) and claim every
// ticket, or call Close to abandon it; the underlying claim is held
// for the lifetime of the Pipeline.
func (c *Conn) Pipeline(ctx context.Context) (*Pipeline, error) {
	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	return &Pipeline{conn: c, release: release}, nil
}

// Exec queues sql with params as one Bind+Execute pair and returns the
// Ticket that will later observe its result. Queuing after Sync has
// already been called for a prior batch re-opens the pipeline for a new
// batch of tickets starting back at 0.
func (p *Pipeline) Exec(ctx context.Context, sql string, args []any, mode RowMode) (Ticket, error) {
	if p.closed {
		return -1, pgerr.NewMisuseError("pipeline: exec on a closed pipeline")
	}
	if p.aborted {
		return -1, pgerr.NewPipelineAbortedError(p.abortErr)
	}
	if p.synced {
		// Starting a new batch with prior tickets unclaimed would leave
		// their responses sitting in the receive buffer, where the next
		// readOneResult would misattribute them to the new ops.
		if int(p.next) != len(p.ops) {
			return -1, pgerr.NewMisuseError("pipeline: exec with %d unclaimed tickets from the previous batch", len(p.ops)-int(p.next))
		}
		p.ops = nil
		p.next = 0
		p.synced = false
	}

	c := p.conn

	// A cache miss cannot round-trip through (*Conn).prepare here: its Sync
	// would flush the responses of every Bind/Execute pair already queued in
	// this batch, and the prepare loop would swallow them. Instead the
	// Parse+Describe is queued in line with the Bind+Execute and its
	// responses are consumed when this op's ticket is claimed.
	stmt, hit := c.statements.Get(sql)
	var params []Parameter
	describe := false
	if hit {
		var err error
		params, err = bindParams(args, stmt.ParamOIDs)
		if err != nil {
			return -1, err
		}
	} else {
		// The host-inferred OIDs double as Parse type hints so the binary
		// parameter encodings written below match what the server expects.
		var err error
		params, err = bindParams(args, nil)
		if err != nil {
			return -1, err
		}
		hints := make([]protocol.OID, len(params))
		for i, param := range params {
			hints[i] = param.OID()
		}

		name := c.nextStatementName()
		c.writeParse(name, sql, hints)
		if err := c.endWrite(); err != nil {
			return -1, err
		}
		c.writeDescribeStatement(name)
		if err := c.endWrite(); err != nil {
			return -1, err
		}

		stmt = &cache.Statement{Name: name, SQL: sql, ParamOIDs: hints}
		c.statements.Set(stmt)
		describe = true
	}

	c.writeBind("", stmt.Name, params, len(stmt.Fields))
	if err := c.endWrite(); err != nil {
		return -1, err
	}
	c.writeExecute("", 0)
	if err := c.endWrite(); err != nil {
		return -1, err
	}

	p.ops = append(p.ops, pendingOp{stmt: stmt, describe: describe, mode: mode})
	return Ticket(len(p.ops) - 1), nil
}

// Sync flushes every queued operation with a single Sync message. Tickets
// become claimable only after Sync.
func (p *Pipeline) Sync(ctx context.Context) error {
	if err := p.conn.writeSync(); err != nil {
		return err
	}
	p.synced = true
	return nil
}

// PendingCount returns the number of tickets queued since the last
// Sync-triggered reset, whether or not they have been claimed yet.
func (p *Pipeline) PendingCount() int { return len(p.ops) }

// IsAborted reports whether a backend error has poisoned the pipeline; once
// true every remaining ticket resolves to PipelineAbortedError.
func (p *Pipeline) IsAborted() bool { return p.aborted }

// ClaimOne claims the next ticket in FIFO order and returns its rows and
// affected-row count. Claiming out of order (skipping ahead, or claiming
// twice) raises a MisuseError.
func (p *Pipeline) ClaimOne(ctx context.Context, want Ticket) (Rows, int64, error) {
	if p.closed {
		return nil, 0, pgerr.NewMisuseError("pipeline: claim on a closed pipeline")
	}
	if want != p.next {
		return nil, 0, pgerr.NewMisuseError("pipeline: claimed ticket %d out of order, expected %d", want, p.next)
	}
	if int(want) >= len(p.ops) {
		return nil, 0, pgerr.NewMisuseError("pipeline: ticket %d was never queued", want)
	}

	// Claiming against a batch that hasn't been explicitly Synced yet
	// triggers the Sync first, so this ticket's ReadyForQuery eventually
	// gets drained once the last ticket is claimed.
	if !p.synced {
		if err := p.Sync(ctx); err != nil {
			return nil, 0, err
		}
	}

	var (
		rows     Rows
		affected int64
		err      error
	)
	if p.aborted {
		// The backend discarded this operation along with everything after
		// the failing one; there is nothing on the wire to read for it.
		err = pgerr.NewPipelineAbortedError(p.abortErr)
	} else {
		rows, affected, err = p.readOneResult(p.ops[want])
		if err != nil && !isConnectionError(err) {
			p.aborted = true
			p.abortErr = err
		}
	}
	p.next++

	// Sync produces exactly one ReadyForQuery after every queued
	// operation's response; claiming the last ticket must absorb it so it
	// doesn't linger unread for the next call.
	if p.synced && int(p.next) == len(p.ops) {
		if _, drainErr := p.conn.drainToReady(nil); drainErr != nil && err == nil {
			err = drainErr
		}
	}
	return rows, affected, err
}

// ClaimCollect is ClaimOne with RowNamed-or-positional rows already
// decoded into a slice; it exists purely for call-site symmetry with
// ExecPortal's Collect and does not change the decode semantics.
func (p *Pipeline) ClaimCollect(ctx context.Context, want Ticket) (Rows, error) {
	rows, _, err := p.ClaimOne(ctx, want)
	return rows, err
}

// ClaimDrop claims a ticket and discards its rows, returning only the
// affected-row count.
func (p *Pipeline) ClaimDrop(ctx context.Context, want Ticket) (int64, error) {
	_, affected, err := p.ClaimOne(ctx, want)
	return affected, err
}

// readOneResult reads exactly one queued operation's response cycle: for a
// cache-miss op, ParseComplete + ParameterDescription + (RowDescription |
// NoData) first (filling in the statement's descriptions), then
// BindComplete followed by either DataRow* + CommandComplete,
// EmptyQueryResponse, or ErrorResponse. It never reads past that single
// response.
func (p *Pipeline) readOneResult(op pendingOp) (Rows, int64, error) {
	c := p.conn
	var rows Rows

	for {
		typ, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			c.fail()
			return nil, 0, pgerr.NewConnectionFailedError(err)
		}

		switch typ {
		case protocol.ParseComplete, protocol.BindComplete:
			// no payload

		case protocol.ParameterDescription:
			oids, err := readParameterDescription(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			op.stmt.ParamOIDs = oids

		case protocol.RowDescription:
			fields, err := readRowDescription(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			op.stmt.Fields = fields

		case protocol.NoData:
			op.stmt.NoFields = true

		case protocol.DataRow:
			raw, err := readDataRow(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			row, err := decodeRow(op.stmt.Fields, raw, op.mode)
			if err != nil {
				return nil, 0, err
			}
			rows = append(rows, row)

		case protocol.CommandComplete:
			tag, err := c.reader.GetString()
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			c.lastCommandTag = tag
			c.affectedRows = parseCommandTag(tag)
			return rows, c.affectedRows, nil

		case protocol.EmptyQueryResponse:
			return rows, 0, nil

		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			if op.describe {
				// The Parse may be what failed; the optimistic cache entry
				// must not survive a statement the server never prepared.
				c.statements.Delete(op.stmt.SQL)
			}
			return nil, 0, dbErr

		case protocol.NoticeResponse:
			notice, err := readErrorResponse(c.reader)
			if err != nil {
				c.fail()
				return nil, 0, pgerr.NewConnectionFailedError(err)
			}
			c.logger.Info("notice", "notice", notice)
		}
	}
}

// Close discards any unclaimed tickets and releases the connection. The
// backend never flushes a Bind/Execute response until it sees Sync or
// Flush, so an un-Synced batch is first flushed with Sync before
// draining it through ReadyForQuery; a connection error surfacing during
// that drain is returned, a poisoned-pipeline error is swallowed since
// the caller is abandoning the batch anyway.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.closed = true
	defer p.release()

	if int(p.next) >= len(p.ops) {
		return nil
	}
	if !p.synced {
		if err := p.conn.writeSync(); err != nil {
			return err
		}
	}
	if _, err := p.conn.drainToReady(nil); err != nil && isConnectionError(err) {
		return err
	}
	p.next = Ticket(len(p.ops))
	p.synced = true
	return nil
}

// isConnectionError reports whether err represents a transport failure
// (as opposed to a server-reported ErrorResponse), distinguishing the two
// kinds of failure a claim can surface.
func isConnectionError(err error) bool {
	var connErr *pgerr.ConnectionFailedError
	return errors.As(err, &connErr)
}
