package pyros

import (
	"context"
	"log/slog"
	"net"

	"github.com/elbaro/pyros/buffer"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// Cancel sends a best-effort CancelRequest for this connection's
// in-progress operation, per the protocol's design: the request is
// delivered over a brand new TCP connection carrying only the backend's
// process id and secret key, and the server does not reply at all -- the
// original operation either gets interrupted or it doesn't, and the
// caller learns which only by observing its own call return.
func (c *Conn) Cancel(ctx context.Context) error {
	network, address := c.dialOpts.Address()

	var d net.Dialer
	raw, err := d.DialContext(ctx, network, address)
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	defer raw.Close()

	writer := buffer.NewWriter(slog.Default(), raw)
	writer.StartUntyped()
	writer.AddInt32(protocol.CancelRequestCode)
	writer.AddInt32(c.processID)
	writer.AddInt32(c.secretKey)
	if err := writer.End(); err != nil {
		return pgerr.NewConnectionFailedError(err)
	}

	// The server closes the connection after reading the request without
	// sending anything back; a read here would just block until that
	// close, so the request is considered delivered once written.
	return nil
}
