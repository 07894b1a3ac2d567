package codec

import (
	"bytes"
	"testing"

	"github.com/helmcode/natswire/internal/proto"
)

func flatten(t *testing.T, bufs interface{ Len() int }) {}

func TestEncodePublishWithHeaders(t *testing.T) {
	subject := proto.MustSubject("hello.world")
	msgID, err := proto.NewHeaderName("Nats-Message-Id")
	if err != nil {
		t.Fatalf("NewHeaderName: %v", err)
	}
	seq, err := proto.NewHeaderName("Nats-Sequence")
	if err != nil {
		t.Fatalf("NewHeaderName: %v", err)
	}

	headers := proto.NewHeaderMap()
	headers.Append(msgID, proto.MustHeaderValue("abcd"))
	headers.Append(seq, proto.MustHeaderValue("1"))

	op := &proto.ClientOp{
		Kind: proto.ClientOpPublish,
		Publish: &proto.MessageBase{
			Subject: subject,
			Headers: headers,
			Payload: []byte("Hello World!"),
		},
	}

	got, err := EncodeFrame(op)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	want := "HPUB hello.world 53 65\r\nNATS/1.0\r\nNats-Message-Id: abcd\r\nNats-Sequence: 1\r\n\r\nHello World!\r\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodePublishNoHeaders(t *testing.T) {
	op := &proto.ClientOp{
		Kind: proto.ClientOpPublish,
		Publish: &proto.MessageBase{
			Subject: proto.MustSubject("hello.world"),
			Payload: []byte("hi"),
		},
	}
	got, err := EncodeFrame(op)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	want := "PUB hello.world 2\r\nhi\r\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodeSubscribeWithQueueGroup(t *testing.T) {
	qg := proto.MustQueueGroup("workers")
	op := &proto.ClientOp{
		Kind:       proto.ClientOpSubscribe,
		Subject:    proto.MustSubject("abcd.>"),
		QueueGroup: &qg,
		SubID:      3,
	}
	got, err := EncodeFrame(op)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	want := "SUB abcd.> workers 3\r\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodeUnsubscribeWithMax(t *testing.T) {
	max := uint64(5)
	op := &proto.ClientOp{Kind: proto.ClientOpUnsubscribe, SubID: 7, MaxMessages: &max}
	got, err := EncodeFrame(op)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	want := "UNSUB 7 5\r\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodePingPong(t *testing.T) {
	for _, tc := range []struct {
		kind proto.ClientOpKind
		want string
	}{
		{proto.ClientOpPing, "PING\r\n"},
		{proto.ClientOpPong, "PONG\r\n"},
	} {
		got, err := EncodeFrame(&proto.ClientOp{Kind: tc.kind})
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		if string(got) != tc.want {
			t.Fatalf("got %q, want %q", got, tc.want)
		}
	}
}

// TestRoundTripPublish confirms a Publish encoded by the streaming Encoder
// decodes back into the same logical op when fed to the Decoder.
func TestRoundTripPublish(t *testing.T) {
	subject := proto.MustSubject("orders.new")
	reply := proto.MustSubject("_INBOX.abc")
	op := &proto.ClientOp{
		Kind: proto.ClientOpPublish,
		Publish: &proto.MessageBase{
			Subject:      subject,
			ReplySubject: &reply,
			Payload:      []byte("payload-bytes"),
		},
	}

	enc := NewEncoder()
	if err := enc.EncodeOp(op); err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}
	bufs := enc.TakeBuffers()

	var flat bytes.Buffer
	for _, b := range bufs {
		flat.Write(b)
	}

	d := NewDecoder()
	d.Feed(flat.Bytes())

	gotOp, ok, err := d.Decode()
	if err != nil || !ok {
		t.Fatalf("Decode: err=%v ok=%v", err, ok)
	}
	if gotOp.Kind != proto.ServerOpMessage {
		t.Fatalf("expected Message op, got %v", gotOp.Kind)
	}
	if gotOp.Message.Base.Subject.String() != subject.String() {
		t.Fatalf("subject mismatch: %q", gotOp.Message.Base.Subject.String())
	}
	if gotOp.Message.Base.ReplySubject == nil || gotOp.Message.Base.ReplySubject.String() != reply.String() {
		t.Fatalf("reply mismatch: %v", gotOp.Message.Base.ReplySubject)
	}
	if string(gotOp.Message.Base.Payload) != "payload-bytes" {
		t.Fatalf("payload mismatch: %q", gotOp.Message.Base.Payload)
	}
}

func TestRoundTripLargePayloadIsVectored(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), largeWriteThreshold+1)
	op := &proto.ClientOp{
		Kind: proto.ClientOpPublish,
		Publish: &proto.MessageBase{
			Subject: proto.MustSubject("bulk.data"),
			Payload: payload,
		},
	}

	enc := NewEncoder()
	if err := enc.EncodeOp(op); err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}
	bufs := enc.TakeBuffers()
	if len(bufs) < 2 {
		t.Fatalf("expected payload to be queued as its own segment, got %d segments", len(bufs))
	}

	var flat bytes.Buffer
	for _, b := range bufs {
		flat.Write(b)
	}
	d := NewDecoder()
	d.Feed(flat.Bytes())
	gotOp, ok, err := d.Decode()
	if err != nil || !ok {
		t.Fatalf("Decode: err=%v ok=%v", err, ok)
	}
	if !bytes.Equal(gotOp.Message.Base.Payload, payload) {
		t.Fatalf("payload mismatch after vectored round trip")
	}
}

func TestMayEnqueueMoreOpsRespectsSoftCap(t *testing.T) {
	enc := NewEncoder()
	payload := make([]byte, softBackpressureCap+1)
	op := &proto.ClientOp{
		Kind: proto.ClientOpPublish,
		Publish: &proto.MessageBase{
			Subject: proto.MustSubject("bulk.data"),
			Payload: payload,
		},
	}
	if err := enc.EncodeOp(op); err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}
	if enc.MayEnqueueMoreOps() {
		t.Fatalf("expected MayEnqueueMoreOps to be false above the soft cap")
	}
}
