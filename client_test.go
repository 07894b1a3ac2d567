package natswire

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/helmcode/natswire/internal/conn"
	"github.com/helmcode/natswire/internal/proto"
)

// fakeConn is a minimal in-memory conn.Conn: EnqueueOp/Flush record what the
// reactor sent, and ReadOp blocks on a channel the test feeds server
// operations into, so the reactor goroutine never touches real I/O.
type fakeConn struct {
	mu       sync.Mutex
	enqueued []proto.ClientOp
	flushes  int

	toDeliver chan proto.ServerOp
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{toDeliver: make(chan proto.ServerOp, 16)}
}

func (f *fakeConn) ReadOp() (proto.ServerOp, error) {
	op, ok := <-f.toDeliver
	if !ok {
		return proto.ServerOp{}, errFakeConnClosed
	}
	return op, nil
}

func (f *fakeConn) EnqueueOp(op *proto.ClientOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, *op)
	return nil
}

func (f *fakeConn) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.toDeliver) })
	return nil
}

func (f *fakeConn) MayEnqueueMoreOps() bool            { return true }
func (f *fakeConn) FlushesAutomaticallyWhenFull() bool { return true }

func (f *fakeConn) opsOfKind(kind proto.ClientOpKind) []proto.ClientOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []proto.ClientOp
	for _, op := range f.enqueued {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// waitFor polls cond every 5ms until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func newTestClient(t *testing.T) (*Client, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	info := &proto.ServerInfo{ID: "test-server"}
	logger := slog.New(slog.NewTextHandler(nopWriter{}, nil))
	c := newClient(proto.ServerAddr{}, conn.HandshakeConfig{}, fc, info, "_INBOX", 0, time.Second, logger)
	t.Cleanup(func() { c.Close() })
	return c, fc
}

func TestClientPublish(t *testing.T) {
	c, fc := newTestClient(t)

	subj := MustSubject("orders.created")
	if err := c.Publish(subj, []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(fc.opsOfKind(proto.ClientOpPublish)) == 1 })
	ops := fc.opsOfKind(proto.ClientOpPublish)
	if ops[0].Publish.Subject.String() != "orders.created" {
		t.Errorf("published subject = %q", ops[0].Publish.Subject.String())
	}
	if string(ops[0].Publish.Payload) != "hello" {
		t.Errorf("published payload = %q", ops[0].Publish.Payload)
	}
}

func TestClientSubscribeAndDeliver(t *testing.T) {
	c, fc := newTestClient(t)

	subj := MustSubject("orders.*")
	sub, err := c.Subscribe(subj)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(fc.opsOfKind(proto.ClientOpSubscribe)) == 1 })
	subOp := fc.opsOfKind(proto.ClientOpSubscribe)[0]

	fc.toDeliver <- proto.ServerOp{
		Kind: proto.ServerOpMessage,
		Message: &proto.ServerMessage{
			SubscriptionID: subOp.SubID,
			Base:           proto.MessageBase{Subject: MustSubject("orders.1"), Payload: []byte("data")},
		},
	}

	msg, svrErr, ok := sub.Next()
	if !ok {
		t.Fatal("Next() returned ok=false for a live subscription")
	}
	if svrErr != nil {
		t.Fatalf("Next() returned an error: %v", svrErr)
	}
	if string(msg.Data) != "data" {
		t.Errorf("msg.Data = %q, want data", msg.Data)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, ok := sub.Next(); ok {
		t.Error("Next() should report ok=false after Close")
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
