package natswire

import (
	"context"
	"time"

	"github.com/helmcode/natswire/internal/jetstream"
	"github.com/helmcode/natswire/internal/proto"
)

// Jetstream-consuming type aliases and well-known header names, re-exported
// from internal/jetstream so callers never need that import path.
type (
	AckPolicy       = jetstream.AckPolicy
	DeliverPolicy   = jetstream.DeliverPolicy
	ReplayPolicy    = jetstream.ReplayPolicy
	RetentionPolicy = jetstream.RetentionPolicy
	Storage         = jetstream.Storage
	DiscardPolicy   = jetstream.DiscardPolicy

	PublishAck         = jetstream.PublishAck
	JetstreamError     = jetstream.JetstreamError
	PullConsumerConfig = jetstream.PullConsumerConfig
	JetstreamMessage   = jetstream.JetstreamMessage
)

const (
	AckExplicit = jetstream.AckExplicit
	AckAll      = jetstream.AckAll
	AckNone     = jetstream.AckNone

	DeliverAll             = jetstream.DeliverAll
	DeliverLast            = jetstream.DeliverLast
	DeliverNew             = jetstream.DeliverNew
	DeliverByStartSequence = jetstream.DeliverByStartSequence
	DeliverByStartTime     = jetstream.DeliverByStartTime
	DeliverLastPerSubject  = jetstream.DeliverLastPerSubject

	ReplayInstant  = jetstream.ReplayInstant
	ReplayOriginal = jetstream.ReplayOriginal

	RetentionLimits    = jetstream.RetentionLimits
	RetentionInterest  = jetstream.RetentionInterest
	RetentionWorkQueue = jetstream.RetentionWorkQueue

	StorageFile   = jetstream.StorageFile
	StorageMemory = jetstream.StorageMemory

	DiscardOld = jetstream.DiscardOld
	DiscardNew = jetstream.DiscardNew
)

var (
	HeaderMsgID                = jetstream.HeaderMsgID
	HeaderExpectedStream       = jetstream.HeaderExpectedStream
	HeaderExpectedLastMsgID    = jetstream.HeaderExpectedLastMsgID
	HeaderExpectedLastSequence = jetstream.HeaderExpectedLastSequence
	HeaderRollup               = jetstream.HeaderRollup
	HeaderStream               = jetstream.HeaderStream
	HeaderSubject              = jetstream.HeaderSubject
	HeaderSequence             = jetstream.HeaderSequence
	HeaderLastSequence         = jetstream.HeaderLastSequence
	HeaderTimeStamp            = jetstream.HeaderTimeStamp
	HeaderStreamSource         = jetstream.HeaderStreamSource
	HeaderMsgSize              = jetstream.HeaderMsgSize
)

// jetstreamRequester adapts Client to the jetstream package's minimal
// Requester capability.
type jetstreamRequester struct{ c *Client }

func (r jetstreamRequester) Request(ctx context.Context, subject proto.Subject, base proto.MessageBase, timeout time.Duration) (*proto.ServerMessage, error) {
	return r.c.requestRaw(ctx, subject, base, timeout)
}

func msgToServerMessage(msg *Msg) *proto.ServerMessage {
	return &proto.ServerMessage{
		Base: proto.MessageBase{
			Subject:      msg.Subject,
			ReplySubject: msg.Reply,
			Headers:      msg.Headers,
			Payload:      msg.Data,
		},
	}
}

// JetstreamPublish performs a Core request to subject and decodes the
// reply as a Jetstream PublishAck, or a *JetstreamError if the server
// rejected the publish (e.g. a Nats-Expected-Stream mismatch).
func (c *Client) JetstreamPublish(ctx context.Context, subject Subject, payload []byte, headers *HeaderMap, timeout time.Duration) (*PublishAck, error) {
	return jetstream.Publish(ctx, jetstreamRequester{c}, subject, payload, headers, timeout)
}

// JetstreamFetchRequest builds the subject and JSON body for pulling cfg.Batch
// messages from a pull consumer; the caller subscribes to a reply
// subject, publishes the body with that reply subject, and decodes each
// arriving message with JetstreamDecodeFetched. RequestWithReply returns
// only the first reply, so through it at most one message of a batch
// arrives.
func JetstreamFetchRequest(cfg PullConsumerConfig) (Subject, []byte, error) {
	return jetstream.FetchRequestPayload(cfg)
}

// JetstreamDecodeFetched extracts stream/consumer delivery metadata from
// one message delivered in response to a pull request.
func JetstreamDecodeFetched(msg *Msg) (*JetstreamMessage, error) {
	return jetstream.DecodeFetchedMessage(msgToServerMessage(msg))
}
