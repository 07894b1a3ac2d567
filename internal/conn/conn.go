// Package conn turns a layered stream.Socket into a NATS connection that
// speaks either the line-oriented streaming wire protocol or its framed
// WebSocket variant, and implements the connect handshake on top of
// either.
package conn

import (
	"github.com/helmcode/natswire/internal/proto"
)

// Conn is the operation-level interface the handler reactor drives. Both
// the TCP/TLS/zstd streaming transport and the WebSocket transport
// implement it.
type Conn interface {
	// ReadOp blocks until the next ServerOp can be decoded from the
	// underlying socket, or returns an error (including io.EOF wrapped as
	// ErrUnexpectedEOF).
	ReadOp() (proto.ServerOp, error)

	// EnqueueOp buffers op for the next Flush; it never blocks on the
	// network.
	EnqueueOp(op *proto.ClientOp) error

	// Flush writes any buffered operations to the socket.
	Flush() error

	// Close shuts down the underlying socket.
	Close() error

	// MayEnqueueMoreOps reports whether the write buffer has room for more
	// operations before the caller should wait for a Flush to drain it.
	MayEnqueueMoreOps() bool

	// FlushesAutomaticallyWhenFull reports a per-transport flag: true for
	// the streaming transport, false for WebSocket. EnqueueOp never flushes
	// on either transport; buffered operations reach the socket only
	// through an explicit Flush.
	FlushesAutomaticallyWhenFull() bool
}
