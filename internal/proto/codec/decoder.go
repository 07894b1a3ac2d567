// Package codec implements the incremental NATS wire decoder and the
// streaming/framed encoders.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/helmcode/natswire/internal/proto"
)

// maxControlLine is the largest control line the decoder accepts before a
// still-missing CRLF is treated as a protocol violation.
const maxControlLine = 16 * 1024

// initialBufCap is the decoder buffer's starting capacity.
const initialBufCap = 64 * 1024

type decoderState int

const (
	stateControlLine decoderState = iota
	stateHeaders
	statePayload
	statePoisoned
)

// DecoderError is returned when the byte stream violates the wire
// protocol. Once returned, the Decoder enters a poisoned state and every
// subsequent call returns the same class of error.
type DecoderError struct {
	Reason string
}

func (e *DecoderError) Error() string { return "proto/codec: " + e.Reason }

func newDecoderError(format string, args ...any) *DecoderError {
	return &DecoderError{Reason: fmt.Sprintf(format, args...)}
}

// pendingMeta carries fields parsed from a MSG/HMSG control line through
// the Headers/Payload states.
type pendingMeta struct {
	subID      proto.SubscriptionID
	subject    proto.Subject
	reply      *proto.Subject
	headerLen  int
	payloadLen int
	statusCode *proto.StatusCode
	headers    *proto.HeaderMap
}

// Decoder incrementally parses NATS server operations out of a byte
// stream. It is not safe for concurrent use.
type Decoder struct {
	buf   []byte
	state decoderState
	meta  pendingMeta
}

// NewDecoder returns an empty Decoder ready to accept bytes via Feed.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, initialBufCap)}
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Buffered reports how many unconsumed bytes remain.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Decode attempts to produce the next ServerOp from buffered bytes. It
// returns (op, true, nil) on success, (zero, false, nil) when more bytes
// must be fed before progress can be made, or (zero, false, err) on a
// protocol violation (after which the Decoder is poisoned).
func (d *Decoder) Decode() (proto.ServerOp, bool, error) {
	if d.state == statePoisoned {
		return proto.ServerOp{}, false, newDecoderError("decoder is poisoned by a previous error")
	}

	for {
		switch d.state {
		case stateControlLine:
			op, progressed, err := d.decodeControlLine()
			if err != nil {
				d.state = statePoisoned
				return proto.ServerOp{}, false, err
			}
			if !progressed {
				return proto.ServerOp{}, false, nil
			}
			if op != nil {
				return *op, true, nil
			}
			// Transitioned to Headers/Payload; loop to try to make more
			// progress immediately.
		case stateHeaders:
			progressed, err := d.decodeHeaders()
			if err != nil {
				d.state = statePoisoned
				return proto.ServerOp{}, false, err
			}
			if !progressed {
				return proto.ServerOp{}, false, nil
			}
		case statePayload:
			op, progressed := d.decodePayload()
			if !progressed {
				return proto.ServerOp{}, false, nil
			}
			return op, true, nil
		}
	}
}

func (d *Decoder) decodeControlLine() (*proto.ServerOp, bool, error) {
	idx := bytes.Index(d.buf, []byte("\r\n"))
	if idx < 0 {
		if len(d.buf) > maxControlLine {
			return nil, false, newDecoderError("control line exceeds %d bytes with no CRLF", maxControlLine)
		}
		return nil, false, nil
	}

	line := d.buf[:idx]
	d.buf = d.buf[idx+2:]

	switch {
	case bytes.HasPrefix(line, []byte("+OK")):
		return &proto.ServerOp{Kind: proto.ServerOpSuccess}, true, nil
	case bytes.HasPrefix(line, []byte("PING")):
		return &proto.ServerOp{Kind: proto.ServerOpPing}, true, nil
	case bytes.HasPrefix(line, []byte("PONG")):
		return &proto.ServerOp{Kind: proto.ServerOpPong}, true, nil
	case bytes.HasPrefix(line, []byte("-ERR")):
		msg := strings.TrimSpace(string(line[len("-ERR"):]))
		return &proto.ServerOp{Kind: proto.ServerOpError, Error: proto.ParseServerError(msg)}, true, nil
	case bytes.HasPrefix(line, []byte("INFO")):
		var info proto.ServerInfo
		raw := bytes.TrimSpace(line[len("INFO"):])
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, false, newDecoderError("invalid INFO json: %v", err)
		}
		return &proto.ServerOp{Kind: proto.ServerOpInfo, Info: &info}, true, nil
	case bytes.HasPrefix(line, []byte("MSG")):
		if err := d.startMsg(line); err != nil {
			return nil, false, err
		}
		d.state = statePayload
		return nil, true, nil
	case bytes.HasPrefix(line, []byte("HMSG")):
		if err := d.startHMsg(line); err != nil {
			return nil, false, err
		}
		d.state = stateHeaders
		return nil, true, nil
	default:
		return nil, false, newDecoderError("invalid command %q", string(line))
	}
}

func (d *Decoder) startMsg(line []byte) error {
	fields := splitSpaces(string(line[len("MSG"):]))
	switch len(fields) {
	case 3:
		subID, subject, err := parseSubjectAndID(fields[0], fields[1])
		if err != nil {
			return err
		}
		n, err := parseUint(fields[2])
		if err != nil {
			return newDecoderError("invalid MSG length: %v", err)
		}
		d.meta = pendingMeta{subID: subID, subject: subject, payloadLen: int(n), headers: nil}
		return nil
	case 4:
		subID, subject, err := parseSubjectAndID(fields[0], fields[1])
		if err != nil {
			return err
		}
		reply := proto.SubjectFromDangerousValue(fields[2])
		n, err := parseUint(fields[3])
		if err != nil {
			return newDecoderError("invalid MSG length: %v", err)
		}
		d.meta = pendingMeta{subID: subID, subject: subject, reply: &reply, payloadLen: int(n), headers: nil}
		return nil
	default:
		return newDecoderError("MSG: expected 3 or 4 fields, got %d", len(fields))
	}
}

func (d *Decoder) startHMsg(line []byte) error {
	fields := splitSpaces(string(line[len("HMSG"):]))
	var subID proto.SubscriptionID
	var subject proto.Subject
	var reply *proto.Subject
	var headerLenField, totalLenField string
	var err error

	switch len(fields) {
	case 4:
		subID, subject, err = parseSubjectAndID(fields[0], fields[1])
		headerLenField, totalLenField = fields[2], fields[3]
	case 5:
		subID, subject, err = parseSubjectAndID(fields[0], fields[1])
		r := proto.SubjectFromDangerousValue(fields[2])
		reply = &r
		headerLenField, totalLenField = fields[3], fields[4]
	default:
		return newDecoderError("HMSG: expected 4 or 5 fields, got %d", len(fields))
	}
	if err != nil {
		return err
	}

	headerLen, err := parseUint(headerLenField)
	if err != nil {
		return newDecoderError("invalid HMSG header length: %v", err)
	}
	totalLen, err := parseUint(totalLenField)
	if err != nil {
		return newDecoderError("invalid HMSG total length: %v", err)
	}
	if totalLen < headerLen {
		return newDecoderError("HMSG total length %d is less than header length %d", totalLen, headerLen)
	}

	d.meta = pendingMeta{
		subID:      subID,
		subject:    subject,
		reply:      reply,
		headerLen:  int(headerLen),
		payloadLen: int(totalLen - headerLen),
	}
	return nil
}

func (d *Decoder) decodeHeaders() (bool, error) {
	if len(d.buf) < d.meta.headerLen {
		return false, nil
	}
	block := d.buf[:d.meta.headerLen]
	d.buf = d.buf[d.meta.headerLen:]

	headers, status, err := parseHeaderBlock(block)
	if err != nil {
		return false, err
	}
	d.meta.headers = headers
	d.meta.statusCode = status
	d.state = statePayload
	return true, nil
}

func parseHeaderBlock(block []byte) (*proto.HeaderMap, *proto.StatusCode, error) {
	lines := strings.Split(strings.TrimSuffix(string(block), "\r\n"), "\r\n")
	if len(lines) == 0 {
		return nil, nil, newDecoderError("empty header block")
	}
	if !strings.HasPrefix(lines[0], "NATS/1.0") {
		return nil, nil, newDecoderError("header block must start with NATS/1.0, got %q", lines[0])
	}

	var status *proto.StatusCode
	rest := strings.TrimSpace(lines[0][len("NATS/1.0"):])
	if rest != "" {
		code, err := proto.StatusCodeFromASCII([]byte(rest[:min(3, len(rest))]))
		if err != nil {
			return nil, nil, newDecoderError("invalid header status code %q: %v", rest, err)
		}
		status = &code
	}

	headers := proto.NewHeaderMap()
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, nil, newDecoderError("malformed header line %q", line)
		}
		name := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")

		hn := proto.HeaderNameFromDangerousValue(name)
		hv := proto.HeaderValueFromDangerousValue(value)
		headers.Append(hn, hv)
	}
	return headers, status, nil
}

func (d *Decoder) decodePayload() (proto.ServerOp, bool) {
	need := d.meta.payloadLen + 2
	if len(d.buf) < need {
		return proto.ServerOp{}, false
	}
	payload := d.buf[:d.meta.payloadLen]
	d.buf = d.buf[need:]

	headers := d.meta.headers
	if headers == nil {
		headers = proto.NewHeaderMap()
	}

	msg := &proto.ServerMessage{
		StatusCode:     d.meta.statusCode,
		SubscriptionID: d.meta.subID,
		Base: proto.MessageBase{
			Subject:      d.meta.subject,
			ReplySubject: d.meta.reply,
			Headers:      headers,
			Payload:      append([]byte(nil), payload...),
		},
	}

	d.meta = pendingMeta{}
	d.state = stateControlLine
	return proto.ServerOp{Kind: proto.ServerOpMessage, Message: msg}, true
}

func parseSubjectAndID(subjectField, idField string) (proto.SubscriptionID, proto.Subject, error) {
	n, err := parseUint(idField)
	if err != nil {
		return 0, proto.Subject{}, newDecoderError("invalid subscription id: %v", err)
	}
	return proto.SubscriptionID(n), proto.SubjectFromDangerousValue(subjectField), nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty numeric field")
	}
	return strconv.ParseUint(s, 10, 64)
}

// splitSpaces splits on runs of spaces/tabs, discarding empty fields.
func splitSpaces(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
}
