package handler

import (
	"github.com/helmcode/natswire/internal/proto"
)

// handleServerOp applies one already-decoded ServerOp to reactor state. It
// returns true when the connection must be torn down and reconnected
// (fatal server error or protocol violation); false otherwise.
func (h *Handler) handleServerOp(op proto.ServerOp) (disconnect bool) {
	switch op.Kind {
	case proto.ServerOpInfo:
		h.info.Store(op.Info)
		h.Quick.SetLameDuck(op.Info.LameDuckMode)
		return false

	case proto.ServerOpPing:
		h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpPong})
		h.scheduleFlush()
		return false

	case proto.ServerOpPong:
		// A pong answers one outstanding liveness ping.
		if h.pendingPings > 0 {
			h.pendingPings--
		}
		return false

	case proto.ServerOpSuccess:
		h.popInFlight(nil)
		return false

	case proto.ServerOpError:
		return h.handleServerError(op.Error)

	case proto.ServerOpMessage:
		h.deliverMessage(op.Message)
		return false

	default:
		return false
	}
}

// popInFlight consumes the oldest verbose-mode acknowledgment, and if it
// was for a Subscribe that failed (err != nil), marks the subscription so
// the next cleanup sweep unsubscribes it and reports the failure to its
// channel.
func (h *Handler) popInFlight(err *proto.ServerError) {
	if len(h.inFlight) == 0 {
		return
	}
	entry := h.inFlight[0]
	h.inFlight = h.inFlight[1:]

	if entry.kind != inFlightSubscribe || err == nil {
		return
	}
	sub, ok := h.subs[entry.subID]
	if !ok {
		return
	}
	h.trySend(sub, Delivery{Err: err})
	sub.failedSubscribe = true
	h.Quick.SetFailedUnsubscribe(true)
}

// handleServerError routes a -ERR: non-fatal kinds (bad subject, perms
// violations) pop the oldest in-flight entry and are delivered to its
// subscription only when that entry is a Subscribe; everything else tears
// the connection down for a reconnect.
func (h *Handler) handleServerError(svrErr *proto.ServerError) (disconnect bool) {
	if svrErr.NonFatal() {
		h.popInFlight(svrErr)
		return false
	}
	return true
}

// deliverMessage routes an incoming MSG/HMSG to its subscription or, for
// the reserved multiplexed-request subscription id, to the waiter
// registered under the message's subject.
func (h *Handler) deliverMessage(msg *proto.ServerMessage) {
	if msg.SubscriptionID == proto.MinSubscriptionID {
		h.deliverMuxReply(msg)
		return
	}

	sub, ok := h.subs[msg.SubscriptionID]
	if !ok {
		return // unsubscribed already; server may still have in-flight messages
	}

	h.trySend(sub, Delivery{Msg: msg})

	if sub.remaining != nil {
		*sub.remaining--
		if *sub.remaining == 0 {
			h.removeSub(sub)
		}
	}
}

func (h *Handler) deliverMuxReply(msg *proto.ServerMessage) {
	key := msg.Base.Subject.String()
	waiter, ok := h.muxSubs[key]
	if !ok {
		return // request already timed out and was cleaned up
	}
	delete(h.muxSubs, key)
	select {
	case waiter <- msg:
	default:
		// Waiter channel is buffered for exactly one send; this can only
		// happen if the requester already gave up, which also removes the
		// map entry, so this branch is unreachable in practice.
	}
}

// trySend delivers d to sub's channel without ever blocking the reactor.
// If the consumer already dropped the subscription (closed != nil and
// true) the delivery is silently discarded. A merely-full channel (a slow
// consumer) also drops the delivery and nothing more: Core NATS is
// at-most-once, so a saturated subscriber loses messages rather than
// stalling the reactor or getting unsubscribed out from under it.
func (h *Handler) trySend(sub *subState, d Delivery) {
	if sub.closed != nil && sub.closed.Load() {
		return
	}
	select {
	case sub.ch <- d:
	default:
		// Full: drop the delivery. The subscription stays live.
	}
}
