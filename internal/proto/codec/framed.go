package codec

import "github.com/helmcode/natswire/internal/proto"

// ErrIncompleteFrame is returned by DecodeFrame when a WebSocket binary
// frame does not contain a complete NATS operation. This is distinct from
// the streaming decoder's no-progress signal: a framed transport never
// gets more bytes for the same frame, so the condition is an error.
type ErrIncompleteFrame struct{}

func (e *ErrIncompleteFrame) Error() string { return "proto/codec: incomplete frame" }

// DecodeFrame decodes exactly one ServerOp from a single WebSocket binary
// frame, as used by the framed connection variant.
func DecodeFrame(frame []byte) (proto.ServerOp, error) {
	d := NewDecoder()
	d.Feed(frame)

	op, ok, err := d.Decode()
	if err != nil {
		return proto.ServerOp{}, err
	}
	if !ok {
		return proto.ServerOp{}, &ErrIncompleteFrame{}
	}
	return op, nil
}

// EncodeFrame encodes a single ClientOp into one contiguous byte blob
// suitable for a WebSocket binary message.
func EncodeFrame(op *proto.ClientOp) ([]byte, error) {
	var buf []byte
	w := &flatWriter{buf: &buf}
	if err := encodeOp(w, op); err != nil {
		return nil, err
	}
	return buf, nil
}

type flatWriter struct {
	buf *[]byte
}

func (w *flatWriter) WriteString(s string) (int, error) {
	*w.buf = append(*w.buf, s...)
	return len(s), nil
}

func (w *flatWriter) Write(b []byte) (int, error) {
	*w.buf = append(*w.buf, b...)
	return len(b), nil
}
