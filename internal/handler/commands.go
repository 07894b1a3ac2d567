// Package handler implements the single-goroutine reactor that owns a
// NATS connection: it drains user commands from a bounded channel,
// demultiplexes incoming server operations to subscriptions and
// multiplexed-request waiters, manages ping/pong liveness, and
// auto-reconnects while replaying subscriptions.
package handler

import (
	"sync/atomic"

	"github.com/helmcode/natswire/internal/proto"
)

// Delivery is what the reactor sends to a subscription's channel: either a
// message or a non-fatal server error that ended the subscription.
type Delivery struct {
	Msg *proto.ServerMessage
	Err error
}

// CommandKind tags the variant held by a Command.
type CommandKind int

const (
	CmdPublish CommandKind = iota
	CmdSubscribe
	CmdUnsubscribe
	CmdMultiplexedRequest
	CmdUnsubscribeMultiplexed
	CmdClose
)

// Command is a single request enqueued by client-facing code for the
// reactor to process. Exactly one of the payload fields is meaningful,
// selected by Kind.
type Command struct {
	Kind CommandKind

	// CmdPublish
	PublishBase proto.MessageBase

	// CmdSubscribe
	SubID   proto.SubscriptionID
	Subject proto.Subject
	Queue   *proto.QueueGroup
	SubCh   chan<- Delivery
	Closed  *atomic.Bool

	// CmdUnsubscribe (and the tail end of CmdSubscribe's lifecycle)
	UnsubID proto.SubscriptionID
	Max     *uint64

	// CmdMultiplexedRequest. PublishBase.ReplySubject must already be set to
	// the fresh reply subject the caller generated; Waiter receives exactly
	// one *proto.ServerMessage.
	Waiter chan *proto.ServerMessage

	// CmdUnsubscribeMultiplexed
	WaiterReplySubject proto.Subject

	// CmdClose
	Done chan struct{}
}
