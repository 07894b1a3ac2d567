package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/helmcode/natswire/internal/conn"
	"github.com/helmcode/natswire/internal/proto"
)

const (
	pingInterval    = 10 * time.Second
	maxPendingPings = 2
	reconnectWait   = 10 * time.Second
	commandBatch    = 16
)

// inFlightKind tags a pending acknowledgment the server owes us because
// CONNECT negotiated verbose mode.
type inFlightKind int

const (
	inFlightUnimportant inFlightKind = iota
	inFlightSubscribe
)

type inFlightEntry struct {
	kind  inFlightKind
	subID proto.SubscriptionID
}

// subState is the reactor's bookkeeping for one live subscription.
type subState struct {
	id              proto.SubscriptionID
	filter          proto.Subject
	queue           *proto.QueueGroup
	ch              chan<- Delivery
	closed          *atomic.Bool
	remaining       *uint64
	failedSubscribe bool
}

// Handler is the single-goroutine reactor owning a NATS connection. All of
// its exported state is either read by user-side code through QuickInfo/
// Info (safe for concurrent reads) or written only from Run's goroutine.
type Handler struct {
	addr proto.ServerAddr
	hcfg conn.HandshakeConfig

	c conn.Conn

	info  atomic.Pointer[proto.ServerInfo]
	Quick *QuickInfo

	pendingPings int
	commands     <-chan Command
	inFlight     []inFlightEntry

	subs map[proto.SubscriptionID]*subState

	muxPrefix       string
	muxWildcardSent bool
	muxSubs         map[string]chan *proto.ServerMessage

	flushing      bool
	shuttingDown  bool
	awaitingClose []chan struct{}

	flushInterval time.Duration
	log           *slog.Logger
}

// New constructs a Handler around an already-connected conn.Conn (the
// result of conn.Connect). cmds is the bounded command channel user code
// writes to; inboxPrefix is the inbox prefix (without the random suffix,
// which New appends once and which is kept across reconnects) under which
// multiplexed request replies are routed.
func New(addr proto.ServerAddr, hcfg conn.HandshakeConfig, c conn.Conn, info *proto.ServerInfo, cmds <-chan Command, inboxPrefix string, flushInterval time.Duration, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		addr:          addr,
		hcfg:          hcfg,
		c:             c,
		commands:      cmds,
		subs:          make(map[proto.SubscriptionID]*subState),
		muxSubs:       make(map[string]chan *proto.ServerMessage),
		muxPrefix:     inboxPrefix + "." + randomHex(16),
		flushInterval: flushInterval,
		log:           log,
		Quick:         &QuickInfo{},
	}
	h.info.Store(info)
	h.Quick.SetConnected(true)
	h.Quick.SetLameDuck(info.LameDuckMode)
	return h
}

// Info returns the most recently received ServerInfo.
func (h *Handler) Info() *proto.ServerInfo { return h.info.Load() }

// MuxPrefix returns the full inbox prefix (including the random suffix
// New appended) multiplexed request reply subjects are generated under.
func (h *Handler) MuxPrefix() string { return h.muxPrefix }

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("handler: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

type opResult struct {
	gen int
	op  proto.ServerOp
	err error
}

// Run drives the reactor until ctx is cancelled or the connection is
// closed via a CmdClose command. It owns reconnect internally: callers
// just keep writing commands and reading from per-subscription channels.
func (h *Handler) Run(ctx context.Context) {
	gen := 0
	opsCh := make(chan opResult, 64)
	h.startReader(gen, opsCh)

	pingTimer := time.NewTimer(pingInterval)
	defer pingTimer.Stop()
	var flushTimer *time.Timer
	var flushC <-chan time.Time

	for {
		if h.Quick.IsFailedUnsubscribe() {
			h.cleanupFailedUnsubscribe()
			h.Quick.SetFailedUnsubscribe(false)
		}

		select {
		case <-ctx.Done():
			h.c.Close()
			h.finishClose()
			return

		case res := <-opsCh:
			if res.gen != gen {
				continue // stale reader goroutine from a previous connection
			}
			if res.err != nil {
				h.log.Warn("nats connection lost", "addr", h.addr.Debug(), "error", res.err)
				gen = h.reconnect(ctx, gen, opsCh)
				if gen < 0 {
					return
				}
				pingTimer.Reset(pingInterval)
				continue
			}
			pingTimer.Reset(pingInterval)
			if disconnect := h.handleServerOp(res.op); disconnect {
				h.log.Warn("nats fatal server error, reconnecting", "addr", h.addr.Debug())
				gen = h.reconnect(ctx, gen, opsCh)
				if gen < 0 {
					return
				}
				pingTimer.Reset(pingInterval)
			}

		case cmd, ok := <-h.commands:
			if !ok {
				h.shuttingDown = true
			} else {
				h.drainCommands(cmd)
			}
			if h.shuttingDown && len(h.subs) == 0 {
				h.c.Close()
				h.finishClose()
				return
			}

		case <-pingTimer.C:
			if h.pendingPings >= maxPendingPings {
				h.log.Warn("nats ping timeout, reconnecting", "addr", h.addr.Debug())
				gen = h.reconnect(ctx, gen, opsCh)
				if gen < 0 {
					return
				}
			} else {
				h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpPing})
				h.pendingPings++
				h.scheduleFlush()
			}
			pingTimer.Reset(pingInterval)

		case <-flushC:
			h.doFlush()
			flushC = nil
		}

		if h.flushing && h.flushInterval > 0 && flushC == nil {
			if flushTimer == nil {
				flushTimer = time.NewTimer(h.flushInterval)
			} else {
				flushTimer.Reset(h.flushInterval)
			}
			flushC = flushTimer.C
		} else if h.flushing && h.flushInterval == 0 {
			h.doFlush()
		}
	}
}

func (h *Handler) startReader(gen int, out chan<- opResult) {
	c := h.c
	go func() {
		for {
			op, err := c.ReadOp()
			out <- opResult{gen: gen, op: op, err: err}
			if err != nil {
				return
			}
		}
	}()
}

// drainCommands processes cmd plus up to commandBatch-1 more already
// queued, without blocking once the channel runs dry.
func (h *Handler) drainCommands(cmd Command) {
	n := 0
	for {
		h.handleCommand(cmd)
		n++
		if n >= commandBatch || !h.c.MayEnqueueMoreOps() {
			break
		}
		select {
		case next, ok := <-h.commands:
			if !ok {
				h.shuttingDown = true
				return
			}
			cmd = next
		default:
			return
		}
	}
}

func (h *Handler) handleCommand(cmd Command) {
	switch cmd.Kind {
	case CmdPublish:
		h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpPublish, Publish: &cmd.PublishBase})
		h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightUnimportant})
		h.scheduleFlush()

	case CmdSubscribe:
		h.subs[cmd.SubID] = &subState{
			id:     cmd.SubID,
			filter: cmd.Subject,
			queue:  cmd.Queue,
			ch:     cmd.SubCh,
			closed: cmd.Closed,
		}
		h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpSubscribe, SubID: cmd.SubID, Subject: cmd.Subject, QueueGroup: cmd.Queue})
		h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightSubscribe, subID: cmd.SubID})
		h.scheduleFlush()

	case CmdUnsubscribe:
		h.handleUnsubscribe(cmd.UnsubID, cmd.Max)

	case CmdMultiplexedRequest:
		h.ensureMuxWildcard()
		key := cmd.PublishBase.ReplySubject.String()
		h.muxSubs[key] = cmd.Waiter
		h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpPublish, Publish: &cmd.PublishBase})
		h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightUnimportant})
		h.scheduleFlush()

	case CmdUnsubscribeMultiplexed:
		delete(h.muxSubs, cmd.WaiterReplySubject.String())

	case CmdClose:
		h.shuttingDown = true
		if cmd.Done != nil {
			h.awaitingClose = append(h.awaitingClose, cmd.Done)
		}
	}
}

func (h *Handler) handleUnsubscribe(id proto.SubscriptionID, max *uint64) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpUnsubscribe, SubID: id, MaxMessages: max})
	h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightUnimportant})
	h.scheduleFlush()

	if max == nil {
		h.removeSub(sub)
		return
	}
	sub.remaining = max
}

func (h *Handler) ensureMuxWildcard() {
	if h.muxWildcardSent {
		return
	}
	subj, _ := proto.NewSubject(h.muxPrefix + ".*")
	h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpSubscribe, SubID: proto.MinSubscriptionID, Subject: subj})
	h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightUnimportant})
	h.muxWildcardSent = true
}

func (h *Handler) removeSub(sub *subState) {
	delete(h.subs, sub.id)
	close(sub.ch)
}

// scheduleFlush arms the cooperative flush: on a streaming transport,
// which auto-flushes once its write buffer is full, or on WebSocket, which
// never auto-flushes and always needs this flag.
func (h *Handler) scheduleFlush() {
	h.flushing = true
}

func (h *Handler) doFlush() {
	if err := h.c.Flush(); err != nil {
		h.log.Warn("nats flush failed", "error", err)
	}
	h.flushing = false
}

// cleanupFailedUnsubscribe sweeps subscriptions whose consumer closed
// their channel (signalled via the shared atomic flag, since a drop-
// triggered unsubscribe must never block on the command channel) or whose
// last Subscribe failed to deliver an error, and issues the Unsubscribe
// ops the drop path couldn't enqueue itself.
func (h *Handler) cleanupFailedUnsubscribe() {
	ids := make([]proto.SubscriptionID, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		sub := h.subs[id]
		if sub.failedSubscribe || (sub.closed != nil && sub.closed.Load()) {
			h.c.EnqueueOp(&proto.ClientOp{Kind: proto.ClientOpUnsubscribe, SubID: id})
			h.inFlight = append(h.inFlight, inFlightEntry{kind: inFlightUnimportant})
			h.removeSub(sub)
		}
	}
	if len(ids) > 0 {
		h.scheduleFlush()
	}
}

// finishClose wakes every caller waiting on Close().
func (h *Handler) finishClose() {
	h.Quick.SetConnected(false)
	for _, done := range h.awaitingClose {
		close(done)
	}
	h.awaitingClose = nil
}
