package natswire

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/helmcode/natswire/internal/handler"
	"github.com/helmcode/natswire/internal/proto"
)

// Request performs a multiplexed request/reply: a fresh reply subject is
// generated under the client's inbox prefix, routed back through a single
// shared wildcard subscription the reactor creates lazily on first use.
// The response resolves on the first message; a 503 status maps to
// ErrNoResponders and exceeding the client's configured request timeout
// maps to ErrTimedOut. If ctx is done first, ctx.Err() is returned. A
// server -ERR is not delivered to a waiting multiplexed request.
func (c *Client) Request(ctx context.Context, subject Subject, payload []byte) (*Msg, error) {
	return c.RequestMsg(ctx, &Msg{Subject: subject, Data: payload})
}

// RequestMsg is like Request but lets the caller attach headers.
func (c *Client) RequestMsg(ctx context.Context, msg *Msg) (*Msg, error) {
	replySubject := proto.SubjectFromDangerousValue(c.h.MuxPrefix() + "." + randomToken())
	waiter := make(chan *proto.ServerMessage, 1)

	cmd := handler.Command{
		Kind: handler.CmdMultiplexedRequest,
		PublishBase: proto.MessageBase{
			Subject:      msg.Subject,
			ReplySubject: &replySubject,
			Headers:      msg.Headers,
			Payload:      msg.Data,
		},
		Waiter: waiter,
	}
	if err := c.send(cmd); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		return decodeRequestReply(resp)
	case <-ctx.Done():
		c.abandonMux(replySubject)
		return nil, ctx.Err()
	case <-timer.C:
		c.abandonMux(replySubject)
		return nil, ErrTimedOut
	}
}

// RequestWithReply performs the explicit-reply-subject variant: the
// caller picks replySubject, the client subscribes to it with a one-shot
// limit, publishes, and waits for the single reply or a timeout.
func (c *Client) RequestWithReply(ctx context.Context, subject, replySubject Subject, payload []byte) (*Msg, error) {
	sub, err := c.Subscribe(replySubject)
	if err != nil {
		return nil, err
	}
	if err := sub.CloseAfter(1); err != nil {
		sub.Close()
		return nil, err
	}
	if err := c.PublishMsg(&Msg{Subject: subject, Reply: &replySubject, Data: payload}); err != nil {
		sub.Close()
		return nil, err
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case d, ok := <-sub.ch:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		if d.Err != nil {
			return nil, d.Err
		}
		return decodeRequestReply(d.Msg)
	case <-ctx.Done():
		sub.Close()
		return nil, ctx.Err()
	case <-timer.C:
		sub.Close()
		return nil, ErrTimedOut
	}
}

func decodeRequestReply(resp *proto.ServerMessage) (*Msg, error) {
	if resp.StatusCode != nil && *resp.StatusCode == proto.StatusNoResponders {
		return nil, ErrNoResponders
	}
	return msgFromServerMessage(resp), nil
}

// abandonMux tells the reactor to drop its bookkeeping for a multiplexed
// reply subject nobody is waiting on anymore. Best-effort: if the command
// channel is saturated this just leaves a harmless orphaned map entry that
// the next matching reply (if any ever arrives) silently discards.
func (c *Client) abandonMux(replySubject proto.Subject) {
	cmd := handler.Command{Kind: handler.CmdUnsubscribeMultiplexed, WaiterReplySubject: replySubject}
	select {
	case c.commands <- cmd:
	default:
	}
}

// requestRaw is the jetstream.Requester implementation: a multiplexed
// request/reply round trip with an explicit timeout and the raw
// *proto.ServerMessage reply, undecoded, so the jetstream package can
// inspect its payload and reply-subject tokens directly.
func (c *Client) requestRaw(ctx context.Context, subject proto.Subject, base proto.MessageBase, timeout time.Duration) (*proto.ServerMessage, error) {
	replySubject := proto.SubjectFromDangerousValue(c.h.MuxPrefix() + "." + randomToken())
	waiter := make(chan *proto.ServerMessage, 1)

	base.Subject = subject
	base.ReplySubject = &replySubject
	cmd := handler.Command{Kind: handler.CmdMultiplexedRequest, PublishBase: base, Waiter: waiter}
	if err := c.send(cmd); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		if resp.StatusCode != nil && *resp.StatusCode == proto.StatusNoResponders {
			return nil, ErrNoResponders
		}
		return resp, nil
	case <-ctx.Done():
		c.abandonMux(replySubject)
		return nil, ctx.Err()
	case <-timer.C:
		c.abandonMux(replySubject)
		return nil, ErrTimedOut
	}
}

func randomToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("natswire: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
