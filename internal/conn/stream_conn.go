package conn

import (
	"fmt"
	"io"

	"github.com/helmcode/natswire/internal/proto"
	"github.com/helmcode/natswire/internal/proto/codec"
	"github.com/helmcode/natswire/internal/stream"
)

// ErrUnexpectedEOF is returned by ReadOp when the socket closes mid-stream.
var ErrUnexpectedEOF = fmt.Errorf("conn: unexpected EOF from server")

// readBufSize is the chunk size used for each Read syscall feeding the
// decoder.
const readBufSize = 32 * 1024

// StreamConn is a Conn backed by the line-oriented NATS wire protocol over
// a TCP (optionally TLS, optionally zstd) socket.
type StreamConn struct {
	sock    stream.Socket
	decoder *codec.Decoder
	encoder *codec.Encoder
	readBuf []byte
}

// NewStreamConn wraps sock as a streaming NATS connection.
func NewStreamConn(sock stream.Socket) *StreamConn {
	return &StreamConn{
		sock:    sock,
		decoder: codec.NewDecoder(),
		encoder: codec.NewEncoder(),
		readBuf: make([]byte, readBufSize),
	}
}

// ReadOp implements Conn.
func (c *StreamConn) ReadOp() (proto.ServerOp, error) {
	for {
		op, ok, err := c.decoder.Decode()
		if err != nil {
			return proto.ServerOp{}, err
		}
		if ok {
			return op, nil
		}

		n, err := c.sock.Read(c.readBuf)
		if n > 0 {
			c.decoder.Feed(c.readBuf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return proto.ServerOp{}, ErrUnexpectedEOF
			}
			return proto.ServerOp{}, fmt.Errorf("conn: read: %w", err)
		}
		if n == 0 {
			return proto.ServerOp{}, ErrUnexpectedEOF
		}
	}
}

// EnqueueOp implements Conn.
func (c *StreamConn) EnqueueOp(op *proto.ClientOp) error {
	return c.encoder.EncodeOp(op)
}

// Flush implements Conn.
func (c *StreamConn) Flush() error {
	bufs := c.encoder.TakeBuffers()
	if len(bufs) == 0 {
		return nil
	}
	if _, err := bufs.WriteTo(c.sock); err != nil {
		return fmt.Errorf("conn: write: %w", err)
	}
	return nil
}

// Close implements Conn.
func (c *StreamConn) Close() error { return c.sock.Close() }

// MayEnqueueMoreOps implements Conn.
func (c *StreamConn) MayEnqueueMoreOps() bool { return c.encoder.MayEnqueueMoreOps() }

// FlushesAutomaticallyWhenFull implements Conn.
func (c *StreamConn) FlushesAutomaticallyWhenFull() bool { return true }

// ReplaceSocket swaps the underlying socket for fn's result, used to
// upgrade to TLS or wrap in zstd in place without tearing down the
// connection's codec state.
func (c *StreamConn) ReplaceSocket(fn func(stream.Socket) (stream.Socket, error)) error {
	next, err := fn(c.sock)
	if err != nil {
		return err
	}
	c.sock = next
	return nil
}
