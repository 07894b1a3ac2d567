package handler

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/helmcode/natswire/internal/proto"
)

// fakeConn is an in-memory conn.Conn recording every enqueued op, used to
// drive the reactor's command/demux logic without any real networking.
type fakeConn struct {
	enqueued []proto.ClientOp
	flushes  int
	closed   bool
}

func (f *fakeConn) ReadOp() (proto.ServerOp, error)    { select {} }
func (f *fakeConn) EnqueueOp(op *proto.ClientOp) error { f.enqueued = append(f.enqueued, *op); return nil }
func (f *fakeConn) Flush() error                       { f.flushes++; return nil }
func (f *fakeConn) Close() error                       { f.closed = true; return nil }
func (f *fakeConn) MayEnqueueMoreOps() bool            { return true }
func (f *fakeConn) FlushesAutomaticallyWhenFull() bool { return true }

func newTestHandler(c *fakeConn) *Handler {
	h := &Handler{
		c:       c,
		subs:    make(map[proto.SubscriptionID]*subState),
		muxSubs: make(map[string]chan *proto.ServerMessage),
		Quick:   &QuickInfo{},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h
}

func mustSubject(t *testing.T, s string) proto.Subject {
	t.Helper()
	subj, err := proto.NewSubject(s)
	if err != nil {
		t.Fatalf("NewSubject(%q): %v", s, err)
	}
	return subj
}

func TestSubscribeThenUnsubscribeClosesChannel(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)

	ch := make(chan Delivery, 4)
	closed := &atomic.Bool{}
	h.handleCommand(Command{
		Kind:    CmdSubscribe,
		SubID:   2,
		Subject: mustSubject(t, "orders.*"),
		SubCh:   ch,
		Closed:  closed,
	})

	if _, ok := h.subs[2]; !ok {
		t.Fatal("subscription not registered")
	}
	if len(fc.enqueued) != 1 || fc.enqueued[0].Kind != proto.ClientOpSubscribe {
		t.Fatalf("enqueued ops = %+v, want one Subscribe", fc.enqueued)
	}

	// Deliver one message, then unsubscribe with no limit: the channel
	// must close and the subscription must be forgotten.
	msg := &proto.ServerMessage{SubscriptionID: 2, Base: proto.MessageBase{Subject: mustSubject(t, "orders.1")}}
	h.deliverMessage(msg)

	h.handleCommand(Command{Kind: CmdUnsubscribe, UnsubID: 2})
	if _, ok := h.subs[2]; ok {
		t.Fatal("subscription still registered after Close")
	}

	d, ok := <-ch
	if !ok || d.Msg == nil {
		t.Fatal("expected the delivered message before the channel closed")
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestCloseAfterRemovesSubscriptionOnLastMessage(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)

	ch := make(chan Delivery, 4)
	h.handleCommand(Command{Kind: CmdSubscribe, SubID: 5, Subject: mustSubject(t, "x"), SubCh: ch, Closed: &atomic.Bool{}})

	max := uint64(2)
	h.handleCommand(Command{Kind: CmdUnsubscribe, UnsubID: 5, Max: &max})
	if _, ok := h.subs[5]; !ok {
		t.Fatal("subscription should survive a bounded unsubscribe until remaining hits 0")
	}

	msg := &proto.ServerMessage{SubscriptionID: 5, Base: proto.MessageBase{Subject: mustSubject(t, "x")}}
	h.deliverMessage(msg)
	if _, ok := h.subs[5]; !ok {
		t.Fatal("subscription removed too early")
	}
	h.deliverMessage(msg)
	if _, ok := h.subs[5]; ok {
		t.Fatal("subscription should be removed once remaining reaches 0")
	}
}

// TestSaturatedSubscriberDropsMessageButSurvives exercises §4.7.1's
// Full arm: a subscriber too slow to drain its channel loses the message
// (Core NATS is at-most-once) but stays subscribed — no Unsubscribe is
// enqueued and failedSubscribe/IsFailedUnsubscribe are never set.
func TestSaturatedSubscriberDropsMessageButSurvives(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)

	ch := make(chan Delivery) // unbuffered: any send blocks immediately
	h.handleCommand(Command{Kind: CmdSubscribe, SubID: 7, Subject: mustSubject(t, "x"), SubCh: ch, Closed: &atomic.Bool{}})
	fc.enqueued = nil

	msg := &proto.ServerMessage{SubscriptionID: 7, Base: proto.MessageBase{Subject: mustSubject(t, "x")}}
	h.deliverMessage(msg)

	if _, ok := h.subs[7]; !ok {
		t.Fatal("a saturated channel must not remove the subscription")
	}
	if h.subs[7].failedSubscribe {
		t.Fatal("failedSubscribe must not be set for a merely-full channel")
	}
	if h.Quick.IsFailedUnsubscribe() {
		t.Fatal("IsFailedUnsubscribe must not be set for a merely-full channel")
	}
	for _, op := range fc.enqueued {
		if op.Kind == proto.ClientOpUnsubscribe && op.SubID == 7 {
			t.Fatal("a full subscriber channel must never trigger an Unsubscribe")
		}
	}

	// The subscription keeps working for the next message once drained.
	ch2 := make(chan Delivery, 1)
	h.subs[7].ch = ch2
	msg2 := &proto.ServerMessage{SubscriptionID: 7, Base: proto.MessageBase{Subject: mustSubject(t, "x")}}
	h.deliverMessage(msg2)
	if d, ok := <-ch2; !ok || d.Msg != msg2 {
		t.Fatal("subscription should still deliver after a prior drop")
	}
}

// TestFailedSubscribeMarksSubscriptionForCleanup exercises the other
// failedSubscribe producer: a server -ERR on a Subscribe (delivered via
// the in-flight ack queue) always marks the subscription for cleanup,
// regardless of whether the error reaches the subscriber's channel.
func TestFailedSubscribeMarksSubscriptionForCleanup(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)

	ch := make(chan Delivery, 4)
	h.handleCommand(Command{Kind: CmdSubscribe, SubID: 7, Subject: mustSubject(t, "x"), SubCh: ch, Closed: &atomic.Bool{}})
	fc.enqueued = nil

	h.popInFlight(&proto.ServerError{})

	if !h.subs[7].failedSubscribe {
		t.Fatal("expected failedSubscribe to be set after a rejected Subscribe")
	}
	if !h.Quick.IsFailedUnsubscribe() {
		t.Fatal("expected QuickInfo.IsFailedUnsubscribe to be set")
	}

	h.cleanupFailedUnsubscribe()
	if _, ok := h.subs[7]; ok {
		t.Fatal("cleanup should have removed the failed subscription")
	}
	found := false
	for _, op := range fc.enqueued {
		if op.Kind == proto.ClientOpUnsubscribe && op.SubID == 7 {
			found = true
		}
	}
	if !found {
		t.Fatal("cleanup should have enqueued an Unsubscribe for the failed subscription")
	}
}

func TestReplaySubscriptionsAscendingOrder(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)

	for _, id := range []proto.SubscriptionID{9, 3, 6} {
		h.subs[id] = &subState{id: id, filter: mustSubject(t, "x")}
	}
	rem := uint64(4)
	h.subs[6].remaining = &rem

	h.replaySubscriptions()

	var gotOrder []proto.SubscriptionID
	for _, op := range fc.enqueued {
		if op.Kind == proto.ClientOpSubscribe {
			gotOrder = append(gotOrder, op.SubID)
		}
	}
	want := []proto.SubscriptionID{3, 6, 9}
	if len(gotOrder) != len(want) {
		t.Fatalf("subscribe replay order = %v, want %v", gotOrder, want)
	}
	for i, id := range want {
		if gotOrder[i] != id {
			t.Errorf("subscribe replay order[%d] = %d, want %d", i, gotOrder[i], id)
		}
	}

	// sub 6 had a remaining max, so it must also have replayed a follow-up
	// Unsubscribe carrying that count.
	foundUnsub := false
	for _, op := range fc.enqueued {
		if op.Kind == proto.ClientOpUnsubscribe && op.SubID == 6 && op.MaxMessages != nil && *op.MaxMessages == 4 {
			foundUnsub = true
		}
	}
	if !foundUnsub {
		t.Fatal("expected a replayed Unsubscribe with remaining max for sub 6")
	}
	if fc.flushes == 0 {
		t.Error("replaySubscriptions should flush when anything was replayed")
	}
}

func TestReplaySubscriptionsRestoresMuxWildcard(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)
	h.muxPrefix = "_INBOX.abc"
	h.muxSubs["_INBOX.abc.req1"] = make(chan *proto.ServerMessage, 1)

	h.replaySubscriptions()

	found := false
	for _, op := range fc.enqueued {
		if op.Kind == proto.ClientOpSubscribe && op.SubID == proto.MinSubscriptionID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the mux wildcard subscription to be restored")
	}
	if !h.muxWildcardSent {
		t.Error("muxWildcardSent should be true after replay")
	}
}

func TestHandleServerErrorNonFatalPopsInFlight(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)
	h.inFlight = []inFlightEntry{{kind: inFlightUnimportant}}

	disconnect := h.handleServerOp(proto.ServerOp{
		Kind:  proto.ServerOpError,
		Error: proto.ParseServerError("Invalid Subject"),
	})
	if disconnect {
		t.Error("a non-fatal server error must not trigger a reconnect")
	}
	if len(h.inFlight) != 0 {
		t.Error("expected the in-flight entry to be popped")
	}
}

func TestHandleServerErrorFatalDisconnects(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)

	disconnect := h.handleServerOp(proto.ServerOp{
		Kind:  proto.ServerOpError,
		Error: proto.ParseServerError("Authorization Violation"),
	})
	if !disconnect {
		t.Error("a fatal server error must trigger a reconnect")
	}
}

func TestMultiplexedReplyDelivery(t *testing.T) {
	fc := &fakeConn{}
	h := newTestHandler(fc)
	h.muxPrefix = "_INBOX.abc"

	waiter := make(chan *proto.ServerMessage, 1)
	replySubject := mustSubject(t, "_INBOX.abc.req1")
	h.muxSubs[replySubject.String()] = waiter

	msg := &proto.ServerMessage{SubscriptionID: proto.MinSubscriptionID, Base: proto.MessageBase{Subject: replySubject}}
	h.deliverMessage(msg)

	select {
	case got := <-waiter:
		if got != msg {
			t.Error("waiter received an unexpected message")
		}
	default:
		t.Fatal("expected the mux waiter to receive the reply")
	}
	if _, ok := h.muxSubs[replySubject.String()]; ok {
		t.Error("mux entry should be removed after delivery")
	}
}
