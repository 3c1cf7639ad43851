// Package pyros implements a PostgreSQL frontend/backend wire-protocol
// client: a connection state machine offering simple-query, extended
// one-shot, pipelined and portal/streaming execution over a single server
// connection, plus the prepared-statement cache and value codecs those
// modalities share. TCP/TLS dialing and URL parsing are layered on top by
// Connect/Opts but the wire engine itself only needs an io.ReadWriteCloser.
// There is no connection pooling: each Conn is one server connection.
package pyros

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/elbaro/pyros/auth"
	"github.com/elbaro/pyros/buffer"
	"github.com/elbaro/pyros/cache"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// phase enumerates the lifecycle state of a Conn.
type phase int32

const (
	phaseConnecting phase = iota
	phaseIdle
	phaseInTransaction
	phaseInFailedTransaction
	phaseClosed
)

// Conn owns exclusively the transport, the send/receive buffers, the
// statement cache, the current phase, the parameter table, the backend
// process id and secret key (for Cancel), the last command tag and its
// parsed affected-row count, and the monotonically increasing statement
// name counter. It is constructed by Connect and destroyed by Close;
// closing more than once is a no-op. A Conn is not safe for concurrent use:
// callers serialize access themselves (see inUse).
type Conn struct {
	transport io.ReadWriteCloser
	reader    *buffer.Reader
	writer    *buffer.Writer
	logger    *slog.Logger

	statements *cache.Cache

	phase      atomic.Int32
	inUse      atomic.Bool
	closed     atomic.Bool
	parameters Parameters

	processID int32
	secretKey int32

	lastCommandTag string
	affectedRows   int64

	stmtCounter   atomic.Uint64
	portalCounter atomic.Uint64
	openPortals   atomic.Int32

	dialOpts *Opts
}

// Connect dials the server described by opts, performs the startup
// handshake (optional SSL negotiation, authentication, ParameterStatus
// collection, BackendKeyData, initial ReadyForQuery) and returns a ready
// Conn.
func Connect(ctx context.Context, opts *Opts) (*Conn, error) {
	if opts == nil {
		return nil, pgerr.NewMisuseError("opts must not be nil")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	network, address := opts.Address()

	var d net.Dialer
	raw, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, pgerr.NewConnectionFailedError(err)
	}

	transport, err := negotiateSSL(ctx, raw, opts)
	if err != nil {
		raw.Close()
		return nil, pgerr.NewConnectionFailedError(err)
	}

	logger := opts.logger()
	conn := &Conn{
		transport:  transport,
		reader:     buffer.NewReader(logger, transport, buffer.DefaultBufferSize),
		writer:     buffer.NewWriter(logger, transport),
		logger:     logger,
		statements: cache.New(),
		parameters: make(Parameters),
		dialOpts:   opts,
	}
	conn.phase.Store(int32(phaseConnecting))

	if err := conn.startup(ctx, opts); err != nil {
		transport.Close()
		return nil, err
	}

	conn.phase.Store(int32(phaseIdle))
	return conn, nil
}

// startup sends the StartupMessage, drives authentication, and consumes
// ParameterStatus/BackendKeyData messages up to the first ReadyForQuery.
func (c *Conn) startup(ctx context.Context, opts *Opts) error {
	c.writer.StartUntyped()
	c.writer.AddInt32(protocol.ProtocolVersion3)
	c.writer.AddCString("user")
	c.writer.AddCString(opts.User)
	c.writer.AddCString("database")
	c.writer.AddCString(opts.Database)
	if opts.ApplicationName != "" {
		c.writer.AddCString("application_name")
		c.writer.AddCString(opts.ApplicationName)
	}
	c.writer.AddNullTerminate()
	if err := c.writer.End(); err != nil {
		return pgerr.NewConnectionFailedError(err)
	}

	if err := auth.Authenticate(ctx, c.reader, c.writer, opts.User, opts.Password); err != nil {
		return err
	}

	for {
		typ, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			return pgerr.NewConnectionFailedError(err)
		}

		switch typ {
		case protocol.ParameterStatus:
			key, err := c.reader.GetString()
			if err != nil {
				return pgerr.NewConnectionFailedError(err)
			}
			value, err := c.reader.GetString()
			if err != nil {
				return pgerr.NewConnectionFailedError(err)
			}
			c.parameters[ParameterStatus(key)] = value

		case protocol.BackendKeyData:
			pid, err := c.reader.GetInt32()
			if err != nil {
				return pgerr.NewConnectionFailedError(err)
			}
			secret, err := c.reader.GetInt32()
			if err != nil {
				return pgerr.NewConnectionFailedError(err)
			}
			c.processID, c.secretKey = pid, secret

		case protocol.ReadyForQuery:
			status, err := c.reader.GetByte()
			if err != nil {
				return pgerr.NewConnectionFailedError(err)
			}
			c.setPhaseFromReady(protocol.ReadyStatus(status))
			return nil

		case protocol.ErrorResponse:
			dbErr, err := readErrorResponse(c.reader)
			if err != nil {
				return pgerr.NewConnectionFailedError(err)
			}
			return pgerr.NewConnectionFailedError(dbErr)

		case protocol.NoticeResponse:
			if _, err := readErrorResponse(c.reader); err != nil {
				return pgerr.NewConnectionFailedError(err)
			}

		default:
			c.logger.Debug("unexpected message during startup", "type", typ.String())
		}
	}
}

func (c *Conn) setPhaseFromReady(status protocol.ReadyStatus) {
	switch status {
	case protocol.ReadyInTransaction:
		c.phase.Store(int32(phaseInTransaction))
	case protocol.ReadyInFailedTx:
		c.phase.Store(int32(phaseInFailedTransaction))
	default:
		c.phase.Store(int32(phaseIdle))
	}
}

// claim acquires the connection's single-flight guard, returning a
// MisuseError if a call is already in flight: instead of suspending, a
// concurrent caller fails fast.
//
// It also starts the cancellation watcher: a goroutine blocked inside
// (*buffer.Reader).ReadTypedMsg is this library's only suspension point,
// and there is no way to interrupt a blocking read except by closing the
// underlying connection, so a cancelled ctx tears the transport down and
// marks the Conn closed rather than returning it to service. The
// returned func must always be deferred; it stops the watcher goroutine
// once the call completes normally.
func (c *Conn) claim(ctx context.Context) (func(), error) {
	if c.closed.Load() {
		return nil, pgerr.ErrConnectionClosed
	}
	if !c.inUse.CompareAndSwap(false, true) {
		return nil, pgerr.NewMisuseError("connection already has an operation in flight")
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.fail()
		case <-done:
		}
	}()

	return func() {
		close(done)
		c.inUse.Store(false)
	}, nil
}

// Close terminates the connection. It is idempotent.
func (c *Conn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.phase.Store(int32(phaseClosed))

	c.writer.Start(protocol.Terminate)
	_ = c.writer.End()

	return c.transport.Close()
}

// Ping issues `SELECT 1` via the simple-query path and discards the
// result, confirming the connection is still responsive.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.QueryDrop(ctx, "SELECT 1")
	return err
}

// ID returns the backend process id reported during startup, usable with
// Cancel.
func (c *Conn) ID() int32 { return c.processID }

// ServerVersion returns the "server_version" parameter reported during
// startup, or "" if the server never sent one.
func (c *Conn) ServerVersion() string { return c.parameters[ParamServerVersion] }

// AffectedRows returns the row count parsed from the last CommandComplete
// tag observed on this connection.
func (c *Conn) AffectedRows() int64 { return c.affectedRows }

// nextStatementName allocates the next prepared-statement name. The
// counter is never reused within the connection's lifetime.
func (c *Conn) nextStatementName() string {
	return fmt.Sprintf("pyros_%d", c.stmtCounter.Add(1))
}

// negotiateSSL performs the optional SSLRequest exchange ahead of the
// startup message.
func negotiateSSL(ctx context.Context, raw net.Conn, opts *Opts) (io.ReadWriteCloser, error) {
	if opts.SSLMode == SSLDisable || opts.SSLMode == "" {
		return raw, nil
	}

	var lenBuf [4]byte
	w := buffer.NewWriter(slog.Default(), raw)
	w.StartUntyped()
	w.AddInt32(protocol.SSLRequestCode)
	if err := w.End(); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(raw, lenBuf[:1]); err != nil {
		return nil, err
	}

	switch lenBuf[0] {
	case 'S':
		tlsConn := tls.Client(raw, &tls.Config{ServerName: opts.Host, InsecureSkipVerify: true}) //nolint:gosec
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		return tlsConn, nil
	case 'N':
		if opts.SSLMode == SSLRequire {
			return nil, pgerr.NewConnectionFailedError(fmt.Errorf("server does not support SSL"))
		}
		return raw, nil
	default:
		return nil, pgerr.NewConnectionFailedError(fmt.Errorf("unexpected SSL negotiation response %q", lenBuf[0]))
	}
}
