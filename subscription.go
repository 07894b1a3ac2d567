package natswire

import (
	"sync/atomic"

	"github.com/helmcode/natswire/internal/handler"
	"github.com/helmcode/natswire/internal/proto"
)

// Subscription is a lazy stream of messages delivered for one subject (and
// optional queue group). It must be closed explicitly with Close or
// CloseAfter; Go has no deterministic destructor to do this automatically.
type Subscription struct {
	client *Client
	id     proto.SubscriptionID
	ch     chan handler.Delivery
	closed *atomic.Bool
}

// Next blocks until a message or server error is delivered, or the
// subscription is closed (by the caller or by the reactor after a failed
// unsubscribe cleanup). ok is false once the channel has closed and no
// further values will arrive.
func (s *Subscription) Next() (msg *Msg, err error, ok bool) {
	d, ok := <-s.ch
	if !ok {
		return nil, nil, false
	}
	if d.Err != nil {
		return nil, d.Err, true
	}
	return msgFromServerMessage(d.Msg), nil, true
}

// Channel exposes the raw delivery channel for callers who want to select
// over it alongside other channels.
func (s *Subscription) Channel() <-chan handler.Delivery { return s.ch }

// Close unsubscribes with no message limit. Idempotent; safe to call more
// than once or concurrently with message delivery.
func (s *Subscription) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.send(handler.Command{
		Kind:    handler.CmdUnsubscribe,
		UnsubID: s.id,
	})
}

// CloseAfter unsubscribes after max further messages have been delivered
// to this subscription (the server may deliver up to max more before
// honoring the unsubscribe).
func (s *Subscription) CloseAfter(max uint64) error {
	if s.closed.Load() {
		return nil
	}
	return s.client.send(handler.Command{
		Kind:    handler.CmdUnsubscribe,
		UnsubID: s.id,
		Max:     &max,
	})
}
