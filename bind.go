package pyros

import (
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/pgtype"
	"github.com/elbaro/pyros/protocol"
)

// bindParams encodes args into wire Parameters, inferring each OID from
// its Go type unless stmtOIDs (from ParameterDescription) says
// otherwise. A server-described OID the codec table does not support fails
// with UnsupportedTypeError before any Bind is sent.
func bindParams(args []any, stmtOIDs []protocol.OID) ([]Parameter, error) {
	out := make([]Parameter, len(args))
	for i, arg := range args {
		oid := protocol.OIDUnknown
		if i < len(stmtOIDs) && stmtOIDs[i] != protocol.OIDUnknown {
			oid = stmtOIDs[i]
		} else if arg != nil {
			oid = pgtype.InferOID(arg)
		}

		if arg == nil {
			out[i] = NewParameter(protocol.BinaryFormat, oid, nil)
			continue
		}

		if _, ok := pgtype.Lookup(oid); !ok {
			return nil, pgerr.NewUnsupportedTypeError(uint32(oid))
		}

		value, err := pgtype.Encode(oid, arg)
		if err != nil {
			return nil, err
		}
		out[i] = NewParameter(protocol.BinaryFormat, oid, value)
	}
	return out, nil
}

// writeBind emits a Bind message for portal ("" is the unnamed portal)
// against stmt,
// requesting binary format for every result column.
func (c *Conn) writeBind(portal, stmt string, params []Parameter, numResultCols int) {
	c.writer.Start(protocol.Bind)
	c.writer.AddCString(portal)
	c.writer.AddCString(stmt)

	c.writer.AddInt16(int16(len(params)))
	for _, p := range params {
		c.writer.AddInt16(int16(p.Format()))
	}

	c.writer.AddInt16(int16(len(params)))
	for _, p := range params {
		if p.Value() == nil {
			c.writer.AddInt32(-1)
			continue
		}
		c.writer.AddInt32(int32(len(p.Value())))
		c.writer.AddBytes(p.Value())
	}

	if numResultCols <= 0 {
		c.writer.AddInt16(1)
		c.writer.AddInt16(int16(protocol.BinaryFormat))
	} else {
		c.writer.AddInt16(int16(numResultCols))
		for i := 0; i < numResultCols; i++ {
			c.writer.AddInt16(int16(protocol.BinaryFormat))
		}
	}
}

func (c *Conn) writeExecute(portal string, limit int32) {
	c.writer.Start(protocol.Execute)
	c.writer.AddCString(portal)
	c.writer.AddInt32(limit)
}

func (c *Conn) writeParse(stmtName, sql string, oidHints []protocol.OID) {
	c.writer.Start(protocol.Parse)
	c.writer.AddCString(stmtName)
	c.writer.AddCString(sql)
	c.writer.AddInt16(int16(len(oidHints)))
	for _, oid := range oidHints {
		c.writer.AddInt32(int32(oid))
	}
}

func (c *Conn) writeDescribeStatement(name string) {
	c.writer.Start(protocol.Describe)
	c.writer.AddByte(byte(protocol.DescribeStatement))
	c.writer.AddCString(name)
}

func (c *Conn) writeDescribePortal(name string) {
	c.writer.Start(protocol.Describe)
	c.writer.AddByte(byte(protocol.DescribePortal))
	c.writer.AddCString(name)
}

func (c *Conn) writeClosePortal(name string) {
	c.writer.Start(protocol.Close)
	c.writer.AddByte(byte(protocol.DescribePortal))
	c.writer.AddCString(name)
}

func (c *Conn) writeSync() error {
	c.writer.Start(protocol.Sync)
	return c.writer.End()
}

func (c *Conn) writeFlush() error {
	c.writer.Start(protocol.Flush)
	return c.writer.End()
}

func (c *Conn) endWrite() error {
	if err := c.writer.End(); err != nil {
		c.fail()
		return pgerr.NewConnectionFailedError(err)
	}
	return nil
}
