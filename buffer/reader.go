// Package buffer implements the length-prefixed message framing used by
// the PostgreSQL wire protocol: a Reader for decoding backend messages and
// a Writer for encoding frontend messages.
package buffer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unsafe"

	"github.com/elbaro/pyros/protocol"
)

// DefaultBufferSize is used whenever the caller does not set one.
const DefaultBufferSize = 1 << 20 // 1MiB, plenty for a single-row-at-a-time client

// BufferedReader extends io.Reader with the convenience methods the
// decoder needs.
type BufferedReader interface {
	io.Reader
	ReadByte() (byte, error)
}

// ErrMessageSizeExceeded is returned when the backend announces a message
// larger than the configured maximum.
var ErrMessageSizeExceeded = errors.New("buffer: message size exceeds maximum")

// ErrMissingNulTerminator is returned by GetString when the message body
// does not contain a NUL terminator.
var ErrMissingNulTerminator = errors.New("buffer: string is not NUL terminated")

// ErrInsufficientData is returned when a fixed-width read runs past the end
// of the current message body.
var ErrInsufficientData = errors.New("buffer: insufficient data in message")

// Reader decodes backend messages arriving from a PostgreSQL server.
type Reader struct {
	logger         *slog.Logger
	Buffer         BufferedReader
	Msg            []byte
	MaxMessageSize int
	header         [4]byte
}

// NewReader constructs a Reader around the given io.Reader (normally the
// TCP or TLS connection to the server).
func NewReader(logger *slog.Logger, reader io.Reader, bufferSize int) *Reader {
	if reader == nil {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Reader{
		logger:         logger,
		Buffer:         bufio.NewReaderSize(reader, bufferSize),
		MaxMessageSize: bufferSize,
	}
}

func (reader *Reader) reset(size int) {
	if reader.Msg != nil {
		reader.Msg = reader.Msg[len(reader.Msg):]
	}

	if cap(reader.Msg) >= size {
		reader.Msg = reader.Msg[:size]
		return
	}

	allocSize := size
	if allocSize < 4096 {
		allocSize = 4096
	}
	reader.Msg = make([]byte, size, allocSize)
}

// ReadType reads the next backend message tag without consuming its body.
func (reader *Reader) ReadType() (protocol.BackendMessage, error) {
	b, err := reader.Buffer.ReadByte()
	if err != nil {
		return 0, err
	}

	return protocol.BackendMessage(b), nil
}

// ReadTypedMsg reads a tag + length-prefixed body and returns the tag and
// the number of bytes consumed after the tag (length + body).
func (reader *Reader) ReadTypedMsg() (protocol.BackendMessage, int, error) {
	typed, err := reader.ReadType()
	if err != nil {
		return typed, 0, err
	}

	n, err := reader.ReadUntypedMsg()
	if err != nil {
		return 0, 0, err
	}

	reader.logger.Debug("read message", "type", typed.String(), "length", n)
	return typed, n, nil
}

// ReadMsgSize reads the 4-byte big-endian length prefix, returning the size
// of the payload that follows (length field excluded).
func (reader *Reader) ReadMsgSize() (int, error) {
	nread, err := io.ReadFull(reader.Buffer, reader.header[:])
	if err != nil {
		return nread, err
	}

	size := int(binary.BigEndian.Uint32(reader.header[:]))
	size -= 4
	return size, nil
}

// ReadUntypedMsg reads a length-prefixed body with no preceding tag and
// returns the number of bytes consumed (length + body). ReadTypedMsg calls
// it for the body of every tagged message once the tag has been read.
func (reader *Reader) ReadUntypedMsg() (int, error) {
	size, err := reader.ReadMsgSize()
	if err != nil {
		return 0, err
	}

	if size > reader.MaxMessageSize || size < 0 {
		return size, fmt.Errorf("%w: max %d, got %d", ErrMessageSizeExceeded, reader.MaxMessageSize, size)
	}

	reader.reset(size)
	n, err := io.ReadFull(reader.Buffer, reader.Msg)
	return 4 + n, err
}

// GetString reads a NUL-terminated string from the remaining message body.
func (reader *Reader) GetString() (string, error) {
	pos := bytes.IndexByte(reader.Msg, 0)
	if pos == -1 {
		return "", ErrMissingNulTerminator
	}

	s := reader.Msg[:pos]
	reader.Msg = reader.Msg[pos+1:]
	return *((*string)(unsafe.Pointer(&s))), nil
}

// GetBytes returns the next n bytes of the message body. n == -1 denotes a
// SQL NULL value and returns a nil slice.
func (reader *Reader) GetBytes(n int) ([]byte, error) {
	if n == -1 {
		return nil, nil
	}
	if len(reader.Msg) < n {
		return nil, ErrInsufficientData
	}

	v := reader.Msg[:n]
	reader.Msg = reader.Msg[n:]
	return v, nil
}

// GetByte returns the next single byte of the message body.
func (reader *Reader) GetByte() (byte, error) {
	if len(reader.Msg) < 1 {
		return 0, ErrInsufficientData
	}

	v := reader.Msg[0]
	reader.Msg = reader.Msg[1:]
	return v, nil
}

// GetUint16 reads a big-endian uint16.
func (reader *Reader) GetUint16() (uint16, error) {
	if len(reader.Msg) < 2 {
		return 0, ErrInsufficientData
	}

	v := binary.BigEndian.Uint16(reader.Msg[:2])
	reader.Msg = reader.Msg[2:]
	return v, nil
}

// GetInt16 reads a big-endian int16.
func (reader *Reader) GetInt16() (int16, error) {
	v, err := reader.GetUint16()
	return int16(v), err
}

// GetUint32 reads a big-endian uint32.
func (reader *Reader) GetUint32() (uint32, error) {
	if len(reader.Msg) < 4 {
		return 0, ErrInsufficientData
	}

	v := binary.BigEndian.Uint32(reader.Msg[:4])
	reader.Msg = reader.Msg[4:]
	return v, nil
}

// GetInt32 reads a big-endian int32.
func (reader *Reader) GetInt32() (int32, error) {
	v, err := reader.GetUint32()
	return int32(v), err
}

// GetUint64 reads a big-endian uint64.
func (reader *Reader) GetUint64() (uint64, error) {
	if len(reader.Msg) < 8 {
		return 0, ErrInsufficientData
	}

	v := binary.BigEndian.Uint64(reader.Msg[:8])
	reader.Msg = reader.Msg[8:]
	return v, nil
}

// GetInt64 reads a big-endian int64.
func (reader *Reader) GetInt64() (int64, error) {
	v, err := reader.GetUint64()
	return int64(v), err
}

// Len reports the number of unread bytes in the current message body.
func (reader *Reader) Len() int {
	return len(reader.Msg)
}
