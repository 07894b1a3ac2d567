package natswire

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/helmcode/natswire/internal/conn"
	"github.com/helmcode/natswire/internal/handler"
	"github.com/helmcode/natswire/internal/proto"
)

// Client is a handle to a single logical NATS connection. It is safe for
// concurrent use by multiple goroutines: every operation either writes to
// the reactor's bounded command channel or reads atomically-shared state.
type Client struct {
	commands       chan handler.Command
	h              *handler.Handler
	cancel         context.CancelFunc
	nextSubID      atomic.Uint64
	closed         atomic.Bool
	requestTimeout time.Duration
	log            *slog.Logger
}

func newClient(addr proto.ServerAddr, hcfg conn.HandshakeConfig, c conn.Conn, info *proto.ServerInfo, inboxPrefix string, flushInterval, requestTimeout time.Duration, log *slog.Logger) *Client {
	commands := make(chan handler.Command, defaultCommandBuffer)
	h := handler.New(addr, hcfg, c, info, commands, inboxPrefix, flushInterval, log)

	runCtx, cancel := context.WithCancel(context.Background())
	go h.Run(runCtx)

	cl := &Client{
		commands:       commands,
		h:              h,
		cancel:         cancel,
		requestTimeout: requestTimeout,
		log:            log,
	}
	cl.nextSubID.Store(uint64(proto.MinSubscriptionID) + 1) // id 1 is reserved for the mux subscription
	return cl
}

// Info returns the most recently received server INFO payload.
func (c *Client) Info() *proto.ServerInfo { return c.h.Info() }

// IsConnected reports whether the reactor currently owns a live connection.
func (c *Client) IsConnected() bool { return c.h.Quick.IsConnected() }

// IsZstdCompressed reports whether the current connection negotiated zstd.
func (c *Client) IsZstdCompressed() bool { return c.h.Quick.IsZstdCompressed() }

// IsLameDuck reports whether the server last reported lame-duck mode.
func (c *Client) IsLameDuck() bool { return c.h.Quick.IsLameDuck() }

// Publish sends payload to subject with no reply subject and no headers.
func (c *Client) Publish(subject Subject, payload []byte) error {
	return c.PublishMsg(&Msg{Subject: subject, Data: payload})
}

// PublishMsg sends msg as-is, including its Reply subject and Headers if
// set.
func (c *Client) PublishMsg(msg *Msg) error {
	cmd := handler.Command{
		Kind: handler.CmdPublish,
		PublishBase: proto.MessageBase{
			Subject:      msg.Subject,
			ReplySubject: msg.Reply,
			Headers:      msg.Headers,
			Payload:      msg.Data,
		},
	}
	return c.send(cmd)
}

// Subscribe creates a Subscription delivering every message published to
// subject.
func (c *Client) Subscribe(subject Subject) (*Subscription, error) {
	return c.subscribe(subject, nil)
}

// QueueSubscribe creates a Subscription delivering messages published to
// subject, load-balanced across every subscriber sharing queue.
func (c *Client) QueueSubscribe(subject Subject, queue QueueGroup) (*Subscription, error) {
	return c.subscribe(subject, &queue)
}

func (c *Client) subscribe(subject Subject, queue *QueueGroup) (*Subscription, error) {
	id := proto.SubscriptionID(c.nextSubID.Add(1) - 1)
	ch := make(chan handler.Delivery, subscriptionBuffer)
	closed := &atomic.Bool{}

	cmd := handler.Command{
		Kind:    handler.CmdSubscribe,
		SubID:   id,
		Subject: subject,
		Queue:   queue,
		SubCh:   ch,
		Closed:  closed,
	}
	if err := c.send(cmd); err != nil {
		return nil, err
	}

	return &Subscription{
		client: c,
		id:     id,
		ch:     ch,
		closed: closed,
	}, nil
}

// Close drains any remaining commands, tears the connection down, and
// stops the reactor goroutine. It blocks until shutdown completes.
func (c *Client) Close() error {
	c.closed.Store(true)
	done := make(chan struct{})
	cmd := handler.Command{Kind: handler.CmdClose, Done: done}

	select {
	case c.commands <- cmd:
		<-done
	case <-time.After(5 * time.Second):
		c.log.Warn("natswire: close command timed out, forcing shutdown")
	}
	c.cancel()
	return nil
}

// send enqueues cmd, failing fast with ErrClosed once Close has been
// called rather than blocking on a dead reactor.
func (c *Client) send(cmd handler.Command) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.commands <- cmd:
		return nil
	default:
	}
	// Channel was full; block, but give up after sendTimeout.
	select {
	case c.commands <- cmd:
		return nil
	case <-time.After(c.sendTimeout()):
		return fmt.Errorf("natswire: command channel saturated: %w", ErrClosed)
	}
}

// sendTimeout bounds how long Publish/Subscribe/Request wait for room in
// the command channel before giving up; it is generous since the channel
// only saturates under sustained overload or after Close.
func (c *Client) sendTimeout() time.Duration { return 30 * time.Second }
