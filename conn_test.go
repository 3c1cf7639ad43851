package pyros

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/elbaro/pyros/buffer"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

// fakeServer plays the backend half of the wire protocol for one accepted
// connection, so tests can script exact message sequences.
type fakeServer struct {
	t      *testing.T
	conn   net.Conn
	reader *buffer.Reader
	writer *buffer.Writer
}

// listenFakeServer opens a loopback listener and hands the first accepted
// connection to handle on a background goroutine.
func listenFakeServer(t *testing.T, handle func(*fakeServer)) *net.TCPAddr {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		fs := &fakeServer{
			t:      t,
			conn:   conn,
			reader: buffer.NewReader(nil, conn, buffer.DefaultBufferSize),
			writer: buffer.NewWriter(nil, conn),
		}
		handle(fs)
	}()

	return listener.Addr().(*net.TCPAddr)
}

// handshake consumes the StartupMessage and replies AuthOK, a
// server_version ParameterStatus, BackendKeyData and an Idle ReadyForQuery.
func (fs *fakeServer) handshake() {
	t := fs.t
	_, err := fs.reader.ReadUntypedMsg()
	require.NoError(t, err)
	_, err = fs.reader.GetInt32() // protocol version
	require.NoError(t, err)
	for {
		key, err := fs.reader.GetString()
		require.NoError(t, err)
		if key == "" {
			break
		}
		_, err = fs.reader.GetString()
		require.NoError(t, err)
	}

	fs.writer.StartRaw(byte(protocol.Authentication))
	fs.writer.AddInt32(int32(protocol.AuthOK))
	require.NoError(t, fs.writer.End())

	fs.writer.StartRaw(byte(protocol.ParameterStatus))
	fs.writer.AddCString("server_version")
	fs.writer.AddCString("16.1")
	require.NoError(t, fs.writer.End())

	fs.writer.StartRaw(byte(protocol.BackendKeyData))
	fs.writer.AddInt32(4242)
	fs.writer.AddInt32(99887766)
	require.NoError(t, fs.writer.End())

	fs.ready(protocol.ReadyIdle)
}

func (fs *fakeServer) ready(status protocol.ReadyStatus) {
	fs.writer.StartRaw(byte(protocol.ReadyForQuery))
	fs.writer.AddByte(byte(status))
	require.NoError(fs.t, fs.writer.End())
}

// readFrontend reads one frontend-tagged message and returns its tag; the
// body remains available via fs.reader's Get* methods until the next read.
func (fs *fakeServer) readFrontend() protocol.FrontendMessage {
	tag, err := fs.reader.ReadType()
	require.NoError(fs.t, err)
	_, err = fs.reader.ReadUntypedMsg()
	require.NoError(fs.t, err)
	return protocol.FrontendMessage(tag)
}

func (fs *fakeServer) rowDescription(names []string, oids []protocol.OID) {
	t := fs.t
	fs.writer.StartRaw(byte(protocol.RowDescription))
	fs.writer.AddInt16(int16(len(names)))
	for i, name := range names {
		fs.writer.AddCString(name)
		fs.writer.AddInt32(0)
		fs.writer.AddInt16(0)
		fs.writer.AddInt32(int32(oids[i]))
		fs.writer.AddInt16(-1)
		fs.writer.AddInt32(-1)
		fs.writer.AddInt16(int16(protocol.BinaryFormat))
	}
	require.NoError(t, fs.writer.End())
}

func (fs *fakeServer) dataRow(cols [][]byte) {
	fs.writer.StartRaw(byte(protocol.DataRow))
	fs.writer.AddInt16(int16(len(cols)))
	for _, c := range cols {
		if c == nil {
			fs.writer.AddInt32(-1)
			continue
		}
		fs.writer.AddInt32(int32(len(c)))
		fs.writer.AddBytes(c)
	}
	require.NoError(fs.t, fs.writer.End())
}

func (fs *fakeServer) commandComplete(tag string) {
	fs.writer.StartRaw(byte(protocol.CommandComplete))
	fs.writer.AddCString(tag)
	require.NoError(fs.t, fs.writer.End())
}

func (fs *fakeServer) errorResponse(sqlstate, message string) {
	fs.writer.StartRaw(byte(protocol.ErrorResponse))
	fs.writer.AddByte('S')
	fs.writer.AddCString("ERROR")
	fs.writer.AddByte('C')
	fs.writer.AddCString(sqlstate)
	fs.writer.AddByte('M')
	fs.writer.AddCString(message)
	fs.writer.AddNullTerminate()
	require.NoError(fs.t, fs.writer.End())
}

func (fs *fakeServer) parseComplete() {
	fs.writer.StartRaw(byte(protocol.ParseComplete))
	require.NoError(fs.t, fs.writer.End())
}

func (fs *fakeServer) bindComplete() {
	fs.writer.StartRaw(byte(protocol.BindComplete))
	require.NoError(fs.t, fs.writer.End())
}

func (fs *fakeServer) parameterDescription(oids []protocol.OID) {
	fs.writer.StartRaw(byte(protocol.ParameterDescription))
	fs.writer.AddInt16(int16(len(oids)))
	for _, oid := range oids {
		fs.writer.AddInt32(int32(oid))
	}
	require.NoError(fs.t, fs.writer.End())
}

func dialOpts(t *testing.T, addr *net.TCPAddr) *Opts {
	return (&Opts{
		Host:     addr.IP.String(),
		Port:     uint16(addr.Port),
		Database: "postgres",
		User:     "alice",
		SSLMode:  SSLDisable,
	}).WithLogger(slogt.New(t))
}

func connectCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnectAndPing(t *testing.T) {
	addr := listenFakeServer(t, func(fs *fakeServer) {
		fs.handshake()

		tag := fs.readFrontend()
		require.Equal(t, protocol.SimpleQuery, tag)
		sql, err := fs.reader.GetString()
		require.NoError(t, err)
		require.Equal(t, "SELECT 1", sql)

		fs.commandComplete("SELECT 1")
		fs.ready(protocol.ReadyIdle)
	})

	ctx := connectCtx(t)
	conn, err := Connect(ctx, dialOpts(t, addr))
	require.NoError(t, err)
	defer conn.Close(ctx)

	require.Equal(t, "16.1", conn.ServerVersion())
	require.EqualValues(t, 4242, conn.ID())
	require.NoError(t, conn.Ping(ctx))
}

func TestQueryRoundTrip(t *testing.T) {
	addr := listenFakeServer(t, func(fs *fakeServer) {
		fs.handshake()

		tag := fs.readFrontend()
		require.Equal(t, protocol.SimpleQuery, tag)
		_, err := fs.reader.GetString()
		require.NoError(t, err)

		fs.rowDescription([]string{"n"}, []protocol.OID{protocol.OIDInt4})
		fs.dataRow([][]byte{{0, 0, 0, 7}})
		fs.dataRow([][]byte{{0, 0, 0, 9}})
		fs.commandComplete("SELECT 2")
		fs.ready(protocol.ReadyIdle)
	})

	ctx := connectCtx(t)
	conn, err := Connect(ctx, dialOpts(t, addr))
	require.NoError(t, err)
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "SELECT n FROM t", RowPositional)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	v, err := rows[0].Get(0)
	require.NoError(t, err)
	require.EqualValues(t, 7, v)
}

func TestQueryFirstNoRowsSentinel(t *testing.T) {
	addr := listenFakeServer(t, func(fs *fakeServer) {
		fs.handshake()

		tag := fs.readFrontend()
		require.Equal(t, protocol.SimpleQuery, tag)
		_, err := fs.reader.GetString()
		require.NoError(t, err)

		fs.rowDescription([]string{"n"}, []protocol.OID{protocol.OIDInt4})
		fs.commandComplete("SELECT 0")
		fs.ready(protocol.ReadyIdle)
	})

	ctx := connectCtx(t)
	conn, err := Connect(ctx, dialOpts(t, addr))
	require.NoError(t, err)
	defer conn.Close(ctx)

	row, err := conn.QueryFirst(ctx, "SELECT n FROM t WHERE false", RowPositional)
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestExecAffectedRows(t *testing.T) {
	addr := listenFakeServer(t, func(fs *fakeServer) {
		fs.handshake()

		require.Equal(t, protocol.Parse, fs.readFrontend())
		_, err := fs.reader.GetString() // stmt name
		require.NoError(t, err)
		sql, err := fs.reader.GetString()
		require.NoError(t, err)
		require.Equal(t, "UPDATE t SET v = $1", sql)
		_, err = fs.reader.GetInt16()
		require.NoError(t, err)

		require.Equal(t, protocol.Describe, fs.readFrontend())
		_, err = fs.reader.GetByte()
		require.NoError(t, err)
		_, err = fs.reader.GetString()
		require.NoError(t, err)

		require.Equal(t, protocol.Sync, fs.readFrontend())

		fs.parseComplete()
		fs.parameterDescription([]protocol.OID{protocol.OIDInt4})
		fs.writer.StartRaw(byte(protocol.NoData))
		require.NoError(t, fs.writer.End())
		fs.ready(protocol.ReadyIdle)

		require.Equal(t, protocol.Bind, fs.readFrontend())
		require.Equal(t, protocol.Execute, fs.readFrontend())
		require.Equal(t, protocol.Sync, fs.readFrontend())

		fs.bindComplete()
		fs.commandComplete("UPDATE 3")
		fs.ready(protocol.ReadyIdle)
	})

	ctx := connectCtx(t)
	conn, err := Connect(ctx, dialOpts(t, addr))
	require.NoError(t, err)
	defer conn.Close(ctx)

	affected, err := conn.ExecDrop(ctx, "UPDATE t SET v = $1", []any{int32(5)})
	require.NoError(t, err)
	require.EqualValues(t, 3, affected)
}

func TestTxCommit(t *testing.T) {
	addr := listenFakeServer(t, func(fs *fakeServer) {
		fs.handshake()

		require.Equal(t, protocol.SimpleQuery, fs.readFrontend())
		sql, err := fs.reader.GetString()
		require.NoError(t, err)
		require.Equal(t, "BEGIN TRANSACTION ISOLATION LEVEL READ COMMITTED READ WRITE", sql)
		fs.commandComplete("BEGIN")
		fs.ready(protocol.ReadyInTransaction)

		require.Equal(t, protocol.SimpleQuery, fs.readFrontend())
		sql, err = fs.reader.GetString()
		require.NoError(t, err)
		require.Equal(t, "COMMIT", sql)
		fs.commandComplete("COMMIT")
		fs.ready(protocol.ReadyIdle)
	})

	ctx := connectCtx(t)
	conn, err := Connect(ctx, dialOpts(t, addr))
	require.NoError(t, err)
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx, ReadCommitted, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.ErrorIs(t, tx.Commit(ctx), pgerr.ErrTransactionClosed)
}

func TestPipelineFIFOAndAbort(t *testing.T) {
	addr := listenFakeServer(t, func(fs *fakeServer) {
		fs.handshake()

		// First op is a cache miss, so its Parse+Describe rides in the batch
		// ahead of its Bind+Execute; the second op hits the cache and queues
		// only Bind+Execute. Nothing is answered until the Sync arrives.
		require.Equal(t, protocol.Parse, fs.readFrontend())
		_, err := fs.reader.GetString()
		require.NoError(t, err)
		_, err = fs.reader.GetString()
		require.NoError(t, err)
		_, err = fs.reader.GetInt16()
		require.NoError(t, err)

		require.Equal(t, protocol.Describe, fs.readFrontend())
		_, err = fs.reader.GetByte()
		require.NoError(t, err)
		_, err = fs.reader.GetString()
		require.NoError(t, err)

		require.Equal(t, protocol.Bind, fs.readFrontend())
		require.Equal(t, protocol.Execute, fs.readFrontend())
		require.Equal(t, protocol.Bind, fs.readFrontend())
		require.Equal(t, protocol.Execute, fs.readFrontend())
		require.Equal(t, protocol.Sync, fs.readFrontend())

		fs.parseComplete()
		fs.parameterDescription([]protocol.OID{protocol.OIDInt4})
		fs.writer.StartRaw(byte(protocol.NoData))
		require.NoError(t, fs.writer.End())

		fs.bindComplete()
		fs.commandComplete("DELETE 1")

		fs.bindComplete()
		fs.errorResponse("23505", "duplicate key")

		fs.ready(protocol.ReadyIdle)
	})

	ctx := connectCtx(t)
	conn, err := Connect(ctx, dialOpts(t, addr))
	require.NoError(t, err)
	defer conn.Close(ctx)

	pipe, err := conn.Pipeline(ctx)
	require.NoError(t, err)

	t1, err := pipe.Exec(ctx, "DELETE FROM t WHERE id = $1", []any{int32(1)}, RowPositional)
	require.NoError(t, err)
	t2, err := pipe.Exec(ctx, "DELETE FROM t WHERE id = $1", []any{int32(2)}, RowPositional)
	require.NoError(t, err)

	require.NoError(t, pipe.Sync(ctx))

	_, _, err = pipe.ClaimOne(ctx, t2)
	require.Error(t, err, "expected a MisuseError for claiming out of FIFO order")

	_, affected, err := pipe.ClaimOne(ctx, t1)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	_, _, err = pipe.ClaimOne(ctx, t2)
	require.Error(t, err)
	require.True(t, pipe.IsAborted())

	require.NoError(t, pipe.Close(ctx))
}

func TestCancelWireShape(t *testing.T) {
	received := make(chan []byte, 1)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		_, err = conn.Read(buf)
		if err == nil {
			received <- buf
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	conn := &Conn{
		processID: 4242,
		secretKey: 99887766,
		dialOpts: &Opts{
			Host:    addr.IP.String(),
			Port:    uint16(addr.Port),
			SSLMode: SSLDisable,
		},
	}

	ctx := connectCtx(t)
	require.NoError(t, conn.Cancel(ctx))

	select {
	case buf := <-received:
		require.EqualValues(t, 16, binary.BigEndian.Uint32(buf[0:4]))
		require.EqualValues(t, protocol.CancelRequestCode, binary.BigEndian.Uint32(buf[4:8]))
		require.EqualValues(t, 4242, int32(binary.BigEndian.Uint32(buf[8:12])))
		require.EqualValues(t, 99887766, int32(binary.BigEndian.Uint32(buf[12:16])))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the CancelRequest")
	}
}
