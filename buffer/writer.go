package buffer

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/elbaro/pyros/protocol"
)

// Writer encodes frontend messages and flushes them to the server
// connection.
type Writer struct {
	io.Writer
	logger *slog.Logger
	frame  bytes.Buffer
	err    error
}

// NewWriter constructs a Writer around the given io.Writer (normally the
// TCP or TLS connection to the server).
func NewWriter(logger *slog.Logger, writer io.Writer) *Writer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		logger: logger,
		Writer: writer,
	}
}

// Start resets the frame and begins a new tagged message, reserving the
// 4-byte length prefix to be back-patched by End.
func (writer *Writer) Start(t protocol.FrontendMessage) {
	writer.StartRaw(byte(t))
}

// StartRaw is Start for callers that hold a tag byte rather than a
// protocol.FrontendMessage -- in practice, test doubles that play the
// backend role and need to emit a BackendMessage tag over the same framing.
func (writer *Writer) StartRaw(tag byte) {
	writer.Reset()
	writer.frame.WriteByte(tag)
	writer.frame.Write([]byte{0, 0, 0, 0})
}

// StartUntyped begins a message with no leading tag byte (StartupMessage,
// SSLRequest, CancelRequest).
func (writer *Writer) StartUntyped() {
	writer.Reset()
	writer.frame.Write([]byte{0, 0, 0, 0})
}

// AddByte appends a single byte.
func (writer *Writer) AddByte(b byte) {
	if writer.err != nil {
		return
	}
	writer.err = writer.frame.WriteByte(b)
}

// AddInt16 appends a big-endian int16.
func (writer *Writer) AddInt16(i int16) {
	if writer.err != nil {
		return
	}
	var x [2]byte
	binary.BigEndian.PutUint16(x[:], uint16(i))
	_, writer.err = writer.frame.Write(x[:])
}

// AddInt32 appends a big-endian int32.
func (writer *Writer) AddInt32(i int32) {
	if writer.err != nil {
		return
	}
	var x [4]byte
	binary.BigEndian.PutUint32(x[:], uint32(i))
	_, writer.err = writer.frame.Write(x[:])
}

// AddBytes appends raw bytes.
func (writer *Writer) AddBytes(b []byte) {
	if writer.err != nil {
		return
	}
	_, writer.err = writer.frame.Write(b)
}

// AddString appends a raw (non-terminated) string.
func (writer *Writer) AddString(s string) {
	if writer.err != nil {
		return
	}
	_, writer.err = writer.frame.WriteString(s)
}

// AddCString appends a string followed by a NUL terminator.
func (writer *Writer) AddCString(s string) {
	writer.AddString(s)
	writer.AddNullTerminate()
}

// AddNullTerminate appends a single NUL byte.
func (writer *Writer) AddNullTerminate() {
	if writer.err != nil {
		return
	}
	writer.err = writer.frame.WriteByte(0)
}

// Error returns the first error encountered while building the current
// frame, if any.
func (writer *Writer) Error() error {
	return writer.err
}

// Bytes returns the bytes accumulated in the current frame.
func (writer *Writer) Bytes() []byte {
	return writer.frame.Bytes()
}

// Reset discards the current frame.
func (writer *Writer) Reset() {
	writer.frame.Reset()
	writer.err = nil
}

// End back-patches the length prefix and flushes the frame to the
// underlying writer.
func (writer *Writer) End() error {
	defer writer.Reset()
	if writer.err != nil {
		return writer.err
	}

	b := writer.frame.Bytes()
	if len(b) > 0 && isTagged(b[0]) {
		length := uint32(len(b) - 1)
		binary.BigEndian.PutUint32(b[1:5], length)
		writer.logger.Debug("-> writing message", slog.String("type", protocol.FrontendMessage(b[0]).String()))
	} else {
		length := uint32(len(b))
		binary.BigEndian.PutUint32(b[0:4], length)
		writer.logger.Debug("-> writing untyped message", slog.Int("length", len(b)))
	}

	_, err := writer.Write(b)
	return err
}

// isTagged tells End whether the frame starts with a tag, which decides
// where the length is written and how the frame is logged: the first byte
// of a length-prefixed-only frame built via StartUntyped is always 0 (the
// high byte of the reserved length placeholder), which is never a valid
// FrontendMessage tag.
func isTagged(b byte) bool {
	return b != 0
}
