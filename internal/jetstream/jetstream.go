// Package jetstream implements the thin, Core-only surface this client
// exposes for talking to a Jetstream-enabled server: typed header names
// and policy enums that calling code attaches to ordinary Core publishes,
// requests, and subscriptions, plus helpers that decode the two most
// common Jetstream response shapes (publish acks and pull-consumer
// fetches) from a Core Request. Stream/consumer management (create, list,
// delete) is out of scope; this package never talks to `$JS.API.STREAM.*`
// or `$JS.API.CONSUMER.*` management subjects, only the data-plane ones a
// publisher or pull consumer uses.
package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/helmcode/natswire/internal/proto"
)

// AckPolicy controls when Jetstream considers a delivered message
// acknowledged.
type AckPolicy string

const (
	AckExplicit AckPolicy = "explicit"
	AckAll      AckPolicy = "all"
	AckNone     AckPolicy = "none"
)

// DeliverPolicy controls where a consumer starts reading from.
type DeliverPolicy string

const (
	DeliverAll               DeliverPolicy = "all"
	DeliverLast              DeliverPolicy = "last"
	DeliverNew               DeliverPolicy = "new"
	DeliverByStartSequence   DeliverPolicy = "by_start_sequence"
	DeliverByStartTime       DeliverPolicy = "by_start_time"
	DeliverLastPerSubject    DeliverPolicy = "last_per_subject"
)

// ReplayPolicy controls the pace at which historical messages are
// redelivered.
type ReplayPolicy string

const (
	ReplayInstant  ReplayPolicy = "instant"
	ReplayOriginal ReplayPolicy = "original"
)

// RetentionPolicy controls when a stream discards messages.
type RetentionPolicy string

const (
	RetentionLimits    RetentionPolicy = "limits"
	RetentionInterest  RetentionPolicy = "interest"
	RetentionWorkQueue RetentionPolicy = "workqueue"
)

// Storage selects the backing store for a stream or its consumers.
type Storage string

const (
	StorageFile   Storage = "file"
	StorageMemory Storage = "memory"
)

// DiscardPolicy controls what a stream drops once it hits its limits.
type DiscardPolicy string

const (
	DiscardOld DiscardPolicy = "old"
	DiscardNew DiscardPolicy = "new"
)

// Well-known Jetstream header names, re-exported from proto so callers
// building a Jetstream-aware publish never need to import proto directly.
var (
	HeaderMsgID                = proto.HeaderNameMsgID
	HeaderExpectedStream       = proto.HeaderNameExpectedStream
	HeaderExpectedLastMsgID    = proto.HeaderNameExpectedLastMsgID
	HeaderExpectedLastSequence = proto.HeaderNameExpectedLastSequence
	HeaderRollup               = proto.HeaderNameRollup
	HeaderStream               = proto.HeaderNameStream
	HeaderSubject              = proto.HeaderNameSubject
	HeaderSequence             = proto.HeaderNameSequence
	HeaderLastSequence         = proto.HeaderNameLastSequence
	HeaderTimeStamp            = proto.HeaderNameTimeStamp
	HeaderStreamSource         = proto.HeaderNameStreamSource
	HeaderMsgSize              = proto.HeaderNameMsgSize
)

// PublishAck is the JSON response a Jetstream-enabled server returns for a
// publish aimed at a stream's subject.
type PublishAck struct {
	Stream    string `json:"stream"`
	Sequence  uint64 `json:"seq"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// apiError is the JSON shape of a Jetstream API error response.
type apiError struct {
	Type  string `json:"type"`
	Error struct {
		Code        int    `json:"code"`
		ErrCode     int    `json:"err_code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Error implements the error interface for JetstreamError.
type JetstreamError struct {
	Code        int
	ErrCode     int
	Description string
}

func (e *JetstreamError) Error() string {
	return fmt.Sprintf("jetstream: %s (code=%d err_code=%d)", e.Description, e.Code, e.ErrCode)
}

// Requester is the Core capability jetstream helpers are built on: a
// single request/reply round trip. The root client package implements
// this with its own Client.Request.
type Requester interface {
	Request(ctx context.Context, subject proto.Subject, base proto.MessageBase, timeout time.Duration) (*proto.ServerMessage, error)
}

// Publish performs a Core request to subject and decodes the response as
// a Jetstream PublishAck, or as a JetstreamError if the server rejected
// the publish (e.g. a Nats-Expected-Stream mismatch).
func Publish(ctx context.Context, r Requester, subject proto.Subject, payload []byte, headers *proto.HeaderMap, timeout time.Duration) (*PublishAck, error) {
	base := proto.MessageBase{Subject: subject, Headers: headers, Payload: payload}
	resp, err := r.Request(ctx, subject, base, timeout)
	if err != nil {
		return nil, err
	}
	return decodeAckOrError(resp.Base.Payload)
}

func decodeAckOrError(data []byte) (*PublishAck, error) {
	var ack PublishAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("jetstream: decoding publish ack: %w", err)
	}
	if ack.Stream != "" {
		return &ack, nil
	}

	var apiErr apiError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Description != "" {
		return nil, &JetstreamError{
			Code:        apiErr.Error.Code,
			ErrCode:     apiErr.Error.ErrCode,
			Description: apiErr.Error.Description,
		}
	}
	return nil, fmt.Errorf("jetstream: unrecognized publish response %q", string(data))
}

// PullConsumerConfig names the stream and durable consumer a pull request
// built by FetchRequestPayload targets, and how many messages to request
// at once.
type PullConsumerConfig struct {
	Stream       string
	Consumer     string
	Batch        int
	ExpiresAfter time.Duration
}

// JetstreamMessage is one message pulled from a pull consumer, with its
// Jetstream delivery metadata decoded out of the reply-subject tokens and
// headers a $JS.API.CONSUMER.MSG.NEXT reply carries.
type JetstreamMessage struct {
	Base      proto.MessageBase
	Stream    string
	Consumer  string
	Sequence  uint64
	Delivered uint64
	Pending   uint64
}

// fetchRequest is the JSON body of a MSG.NEXT pull request.
type fetchRequest struct {
	Batch   int   `json:"batch"`
	Expires int64 `json:"expires,omitempty"`
}

// FetchRequestPayload builds a pull request for up to cfg.Batch messages
// from a pull consumer: the subject
// `$JS.API.CONSUMER.MSG.NEXT.<stream>.<consumer>` and a JSON body holding
// the batch size and, when set, the expiry. It sends nothing; publishing
// the request with a reply subject, receiving the batch on it, and passing
// each delivered message to DecodeFetchedMessage are left to the caller.
func FetchRequestPayload(cfg PullConsumerConfig) (proto.Subject, []byte, error) {
	subject, err := proto.NewSubject(fmt.Sprintf("$JS.API.CONSUMER.MSG.NEXT.%s.%s", cfg.Stream, cfg.Consumer))
	if err != nil {
		return proto.Subject{}, nil, fmt.Errorf("jetstream: building fetch subject: %w", err)
	}
	body, err := json.Marshal(fetchRequest{Batch: cfg.Batch, Expires: int64(cfg.ExpiresAfter)})
	if err != nil {
		return proto.Subject{}, nil, fmt.Errorf("jetstream: encoding fetch request: %w", err)
	}
	return subject, body, nil
}

// DecodeFetchedMessage extracts Jetstream delivery metadata from one
// message delivered in response to a pull request: the stream/consumer
// names and sequence numbers are carried as reply-subject tokens of the
// form `$JS.ACK.<stream>.<consumer>.<delivered>.<sequence>.<...>`, while
// Nats-Sequence (if present) overrides the stream sequence from a header.
func DecodeFetchedMessage(msg *proto.ServerMessage) (*JetstreamMessage, error) {
	out := &JetstreamMessage{Base: msg.Base}

	if msg.Base.ReplySubject != nil {
		tokens := strings.Split(msg.Base.ReplySubject.String(), ".")
		if len(tokens) >= 6 && tokens[0] == "$JS" && tokens[1] == "ACK" {
			out.Stream = tokens[2]
			out.Consumer = tokens[3]
			if n, err := strconv.ParseUint(tokens[4], 10, 64); err == nil {
				out.Delivered = n
			}
			if n, err := strconv.ParseUint(tokens[5], 10, 64); err == nil {
				out.Sequence = n
			}
		}
	}

	if msg.Base.Headers != nil {
		if v, ok := msg.Base.Headers.Get(HeaderSequence); ok {
			if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
				out.Sequence = n
			}
		}
	}

	return out, nil
}
