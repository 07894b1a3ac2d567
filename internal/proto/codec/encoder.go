package codec

import (
	"encoding/json"
	"net"
	"strconv"

	"github.com/helmcode/natswire/internal/proto"
)

// largeWriteThreshold is the payload size at or above which the streaming
// encoder queues the bytes as their own vectored-write entry instead of
// copying them into the flat accumulation buffer.
const largeWriteThreshold = 4096

// softBackpressureCap is the buffered-byte budget beyond which
// MayEnqueueMoreOps reports false. It is advisory: callers that ignore it
// still get correct output, just without the backpressure signal.
const softBackpressureCap = 8 * 1024 * 1024

// writer is the minimal sink encodeOp needs; satisfied by *flatWriter (for
// single-frame encoding) and by Encoder's own flat-only view.
type writer interface {
	WriteString(s string) (int, error)
	Write(b []byte) (int, error)
}

// Encoder accumulates outgoing client operations for a streaming (TCP or
// zstd-wrapped) connection. Small writes are coalesced into a flat byte
// buffer; payloads at or above largeWriteThreshold are queued as separate
// shared slices so a large publish does not get copied twice on its way to
// the socket. Not safe for concurrent use.
type Encoder struct {
	segments    [][]byte
	flat        []byte
	queuedBytes int
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) WriteString(s string) (int, error) {
	e.flat = append(e.flat, s...)
	e.queuedBytes += len(s)
	return len(s), nil
}

func (e *Encoder) Write(b []byte) (int, error) {
	e.flat = append(e.flat, b...)
	e.queuedBytes += len(b)
	return len(b), nil
}

// writeLarge freezes the current flat segment and appends b as its own
// segment without copying it.
func (e *Encoder) writeLarge(b []byte) {
	if len(e.flat) > 0 {
		e.segments = append(e.segments, e.flat)
		e.flat = nil
	}
	e.segments = append(e.segments, b)
	e.queuedBytes += len(b)
}

// EncodeOp appends a single client operation to the encoder's buffers.
// Publish payloads at or above largeWriteThreshold are queued as their own
// vectored-write segment; everything else goes through the flat buffer.
func (e *Encoder) EncodeOp(op *proto.ClientOp) error {
	if op.Kind == proto.ClientOpPublish {
		return e.encodePublish(op.Publish)
	}
	return encodeOp(e, op)
}

func (e *Encoder) encodePublish(base *proto.MessageBase) error {
	headerBlock := encodeHeaderBlock(base.Headers)
	hasHeaders := headerBlock != nil

	if hasHeaders {
		totalLen := len(headerBlock) + len(base.Payload)
		if _, err := e.WriteString("HPUB " + base.Subject.String()); err != nil {
			return err
		}
		if base.ReplySubject != nil {
			if _, err := e.WriteString(" " + base.ReplySubject.String()); err != nil {
				return err
			}
		}
		if _, err := e.WriteString(" " + strconv.Itoa(len(headerBlock)) + " " + strconv.Itoa(totalLen) + "\r\n"); err != nil {
			return err
		}
		if _, err := e.Write(headerBlock); err != nil {
			return err
		}
	} else {
		if _, err := e.WriteString("PUB " + base.Subject.String()); err != nil {
			return err
		}
		if base.ReplySubject != nil {
			if _, err := e.WriteString(" " + base.ReplySubject.String()); err != nil {
				return err
			}
		}
		if _, err := e.WriteString(" " + strconv.Itoa(len(base.Payload)) + "\r\n"); err != nil {
			return err
		}
	}
	if len(base.Payload) >= largeWriteThreshold {
		e.writeLarge(base.Payload)
	} else if len(base.Payload) > 0 {
		if _, err := e.Write(base.Payload); err != nil {
			return err
		}
	}
	_, err := e.WriteString("\r\n")
	return err
}

// Buffered reports the number of bytes currently queued for write.
func (e *Encoder) Buffered() int { return e.queuedBytes }

// MayEnqueueMoreOps reports whether the caller should keep accepting new
// outgoing operations, or first wait for the socket to drain buffered
// bytes below the soft cap.
func (e *Encoder) MayEnqueueMoreOps() bool { return e.queuedBytes < softBackpressureCap }

// TakeBuffers returns the queued segments as net.Buffers ready for a
// vectored write, and resets the encoder to empty. The returned slices
// must not be mutated; large payload segments are shared with caller
// buffers, not copies.
func (e *Encoder) TakeBuffers() net.Buffers {
	if len(e.flat) > 0 {
		e.segments = append(e.segments, e.flat)
		e.flat = nil
	}
	bufs := net.Buffers(e.segments)
	e.segments = nil
	e.queuedBytes = 0
	return bufs
}

// encodeOp writes a single non-publish client operation (or, for the
// framed encoder, any client operation) into w.
func encodeOp(w writer, op *proto.ClientOp) error {
	switch op.Kind {
	case proto.ClientOpConnect:
		payload, err := json.Marshal(op.Connect)
		if err != nil {
			return err
		}
		if _, err := w.WriteString("CONNECT "); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
		_, err = w.WriteString("\r\n")
		return err

	case proto.ClientOpPublish:
		return encodePublishFlat(w, op.Publish)

	case proto.ClientOpSubscribe:
		line := "SUB " + op.Subject.String()
		if op.QueueGroup != nil {
			line += " " + op.QueueGroup.String()
		}
		line += " " + strconv.FormatUint(uint64(op.SubID), 10) + "\r\n"
		_, err := w.WriteString(line)
		return err

	case proto.ClientOpUnsubscribe:
		line := "UNSUB " + strconv.FormatUint(uint64(op.SubID), 10)
		if op.MaxMessages != nil {
			line += " " + strconv.FormatUint(*op.MaxMessages, 10)
		}
		line += "\r\n"
		_, err := w.WriteString(line)
		return err

	case proto.ClientOpPing:
		_, err := w.WriteString("PING\r\n")
		return err

	case proto.ClientOpPong:
		_, err := w.WriteString("PONG\r\n")
		return err

	default:
		return newDecoderError("encode: unknown client op kind %d", op.Kind)
	}
}

func encodePublishFlat(w writer, base *proto.MessageBase) error {
	headerBlock := encodeHeaderBlock(base.Headers)
	if headerBlock != nil {
		totalLen := len(headerBlock) + len(base.Payload)
		line := "HPUB " + base.Subject.String()
		if base.ReplySubject != nil {
			line += " " + base.ReplySubject.String()
		}
		line += " " + strconv.Itoa(len(headerBlock)) + " " + strconv.Itoa(totalLen) + "\r\n"
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if _, err := w.Write(headerBlock); err != nil {
			return err
		}
	} else {
		line := "PUB " + base.Subject.String()
		if base.ReplySubject != nil {
			line += " " + base.ReplySubject.String()
		}
		line += " " + strconv.Itoa(len(base.Payload)) + "\r\n"
		if _, err := w.WriteString(line); err != nil {
			return err
		}
	}
	if len(base.Payload) > 0 {
		if _, err := w.Write(base.Payload); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

// encodeHeaderBlock renders a NATS/1.0 header block for base.Headers. It
// returns nil when there are no headers at all, in which case the caller
// must use the headerless PUB form.
func encodeHeaderBlock(h *proto.HeaderMap) []byte {
	if h == nil || h.IsEmpty() {
		return nil
	}
	block := []byte("NATS/1.0\r\n")
	for _, entry := range h.Iter() {
		for _, v := range entry.Values {
			block = append(block, entry.Name.String()...)
			block = append(block, ':', ' ')
			block = append(block, v.String()...)
			block = append(block, '\r', '\n')
		}
	}
	block = append(block, '\r', '\n')
	return block
}
