package handler

import (
	"context"
	"sort"
	"time"

	"github.com/helmcode/natswire/internal/conn"
	"github.com/helmcode/natswire/internal/proto"
)

// reconnect closes out the dead connection, attempts to establish a new
// one (retrying with reconnectWait between attempts until ctx is
// cancelled, the handler is shutting down, or one succeeds), replays live
// subscriptions in ascending id order, and starts a fresh reader
// goroutine tagged with the next generation. It returns the new
// generation, or -1 if the handler should stop entirely.
func (h *Handler) reconnect(ctx context.Context, gen int, opsCh chan opResult) int {
	h.Quick.SetConnected(false)
	h.c.Close()

	for {
		if h.shuttingDown {
			return -1
		}
		select {
		case <-ctx.Done():
			return -1
		default:
		}

		c, info, err := conn.Connect(ctx, h.addr, h.hcfg)
		if err != nil {
			h.log.Warn("nats reconnect attempt failed", "addr", h.addr.Debug(), "error", err)
			select {
			case <-ctx.Done():
				return -1
			case <-time.After(reconnectWait):
				continue
			}
		}

		h.c = c
		h.info.Store(info)
		h.pendingPings = 0
		h.inFlight = nil
		h.muxWildcardSent = false
		h.Quick.SetConnected(true)
		h.Quick.SetLameDuck(info.LameDuckMode)

		h.replaySubscriptions()

		gen++
		h.startReader(gen, opsCh)
		h.log.Info("nats reconnected", "addr", h.addr.Debug())
		return gen
	}
}

// replaySubscriptions re-issues SUB (and, for subscriptions already
// counting down to a CloseAfter limit, a follow-up UNSUB with the
// remaining max) for every subscription that survived the outage, and
// restores the multiplexed-request wildcard subscription if any request
// is still waiting on a reply.
func (h *Handler) replaySubscriptions() {
	ids := make([]proto.SubscriptionID, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		sub := h.subs[id]
		h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpSubscribe, SubID: sub.id, Subject: sub.filter, QueueGroup: sub.queue})
		h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightSubscribe, subID: sub.id})
		if sub.remaining != nil {
			h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpUnsubscribe, SubID: sub.id, MaxMessages: sub.remaining})
			h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightUnimportant})
		}
	}

	if len(h.muxSubs) > 0 {
		h.ensureMuxWildcard()
	}

	if len(ids) > 0 || len(h.muxSubs) > 0 {
		h.doFlush()
	}
}
