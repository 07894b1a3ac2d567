package conn

import (
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"

	"github.com/helmcode/natswire/internal/proto"
	"github.com/helmcode/natswire/internal/proto/codec"
)

// wsSoftBackpressureCap mirrors the streaming encoder's soft cap: once this
// many bytes are queued without a Flush, MayEnqueueMoreOps reports false.
const wsSoftBackpressureCap = 8 * 1024 * 1024

// ErrWebsocketClosed is returned by ReadOp once the frame stream has
// closed.
var ErrWebsocketClosed = errors.New("conn: websocket closed")

// WebsocketConn is a Conn backed by a gorilla/websocket connection, where
// each binary frame carries exactly one NATS operation. Like StreamConn,
// it never flushes on its own; the caller must call Flush after every
// batch of EnqueueOp calls.
type WebsocketConn struct {
	ws      *websocket.Conn
	pending [][]byte
	queued  int
}

// NewWebsocketConn wraps an already-handshaken *websocket.Conn.
func NewWebsocketConn(ws *websocket.Conn) *WebsocketConn {
	return &WebsocketConn{ws: ws}
}

// ReadOp implements Conn. Non-binary frames (ping/pong/text/close) are
// skipped; a closed connection surfaces ErrWebsocketClosed.
func (c *WebsocketConn) ReadOp() (proto.ServerOp, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
				return proto.ServerOp{}, ErrWebsocketClosed
			}
			return proto.ServerOp{}, fmt.Errorf("conn: websocket read: %w", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		op, err := codec.DecodeFrame(data)
		if err != nil {
			return proto.ServerOp{}, err
		}
		return op, nil
	}
}

// EnqueueOp implements Conn.
func (c *WebsocketConn) EnqueueOp(op *proto.ClientOp) error {
	frame, err := codec.EncodeFrame(op)
	if err != nil {
		return err
	}
	c.pending = append(c.pending, frame)
	c.queued += len(frame)
	return nil
}

// Flush implements Conn, writing every queued frame as its own WebSocket
// binary message.
func (c *WebsocketConn) Flush() error {
	for _, frame := range c.pending {
		if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("conn: websocket write: %w", err)
		}
	}
	c.pending = nil
	c.queued = 0
	return nil
}

// Close implements Conn.
func (c *WebsocketConn) Close() error { return c.ws.Close() }

// MayEnqueueMoreOps implements Conn.
func (c *WebsocketConn) MayEnqueueMoreOps() bool { return c.queued < wsSoftBackpressureCap }

// FlushesAutomaticallyWhenFull implements Conn: WebSocket never
// auto-flushes, so the handler must explicitly schedule one.
func (c *WebsocketConn) FlushesAutomaticallyWhenFull() bool { return false }
