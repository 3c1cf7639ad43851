package pyros

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/elbaro/pyros/pgerr"
)

// IsolationLevel selects the transaction isolation level sent on BEGIN.
type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "READ UNCOMMITTED"
	ReadCommitted   IsolationLevel = "READ COMMITTED"
	RepeatableRead  IsolationLevel = "REPEATABLE READ"
	Serializable    IsolationLevel = "SERIALIZABLE"
)

// txState is the lifecycle of a Tx: NotStarted -> Open -> {Committed,
// RolledBack}.
type txState int32

const (
	txNotStarted txState = iota
	txOpen
	txCommitted
	txRolledBack
)

// Tx is a transaction controller bound to the Conn that began it. Portals
// opened via ExecPortal are valid only while the Tx is open.
type Tx struct {
	conn     *Conn
	level    IsolationLevel
	readonly bool
	state    atomic.Int32
}

// Begin starts a transaction with the given isolation level and read-only
// flag, emitted as a simple `BEGIN TRANSACTION ISOLATION LEVEL ...` query.
func (c *Conn) Begin(ctx context.Context, level IsolationLevel, readonly bool) (*Tx, error) {
	switch level {
	case ReadUncommitted, ReadCommitted, RepeatableRead, Serializable:
	default:
		return nil, pgerr.NewMisuseError("unknown isolation level %q", level)
	}

	sql := fmt.Sprintf("BEGIN TRANSACTION ISOLATION LEVEL %s", level)
	if readonly {
		sql += " READ ONLY"
	} else {
		sql += " READ WRITE"
	}

	release, err := c.claim(ctx)
	if err != nil {
		return nil, err
	}
	_, _, err = c.simpleQuery(ctx, sql, RowPositional, false)
	release()
	if err != nil {
		return nil, err
	}

	tx := &Tx{conn: c, level: level, readonly: readonly}
	tx.state.Store(int32(txOpen))
	return tx, nil
}

// Commit commits the transaction. A second terminal call raises
// TransactionClosedError.
func (tx *Tx) Commit(ctx context.Context) error {
	return tx.end(ctx, "COMMIT", txCommitted)
}

// Rollback rolls the transaction back. A second terminal call raises
// TransactionClosedError.
func (tx *Tx) Rollback(ctx context.Context) error {
	return tx.end(ctx, "ROLLBACK", txRolledBack)
}

func (tx *Tx) end(ctx context.Context, sql string, next txState) error {
	switch txState(tx.state.Load()) {
	case txNotStarted:
		return pgerr.NewMisuseError("transaction was never started")
	case txCommitted, txRolledBack:
		return pgerr.ErrTransactionClosed
	}

	release, err := tx.conn.claim(ctx)
	if err != nil {
		return err
	}
	_, _, err = tx.conn.simpleQuery(ctx, sql, RowPositional, false)
	release()

	tx.state.Store(int32(next))
	tx.conn.openPortals.Store(0)
	return err
}

// open reports whether tx is still in the Open state; used by Portal to
// enforce I4.
func (tx *Tx) open() bool {
	return txState(tx.state.Load()) == txOpen
}

// WithTx is the context-scoped form of Begin/Commit/Rollback: it begins a
// transaction, invokes fn, commits if fn returns nil and the transaction
// is still Open, or rolls back and re-raises otherwise.
func (c *Conn) WithTx(ctx context.Context, level IsolationLevel, readonly bool, fn func(*Tx) error) (err error) {
	tx, err := c.Begin(ctx, level, readonly)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if tx.open() {
				_ = tx.Rollback(ctx)
			}
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if tx.open() {
			_ = tx.Rollback(ctx)
		}
		return err
	}

	if tx.open() {
		return tx.Commit(ctx)
	}
	return nil
}
