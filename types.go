// Package natswire is a client library for the NATS messaging protocol: a
// single logical connection that transparently reconnects while
// preserving subscriptions, multiplexes publishers/subscribers/requesters
// onto it, and speaks both the TCP and WebSocket wire variants.
package natswire

import (
	"github.com/helmcode/natswire/internal/proto"
)

// Subject is a validated, dot-separated NATS routing key.
type Subject = proto.Subject

// NewSubject validates s and returns a Subject.
func NewSubject(s string) (Subject, error) { return proto.NewSubject(s) }

// MustSubject is like NewSubject but panics on invalid input. Intended for
// static subjects known at compile time.
func MustSubject(s string) Subject { return proto.MustSubject(s) }

// HeaderName is a case-insensitive NATS header field name.
type HeaderName = proto.HeaderName

// NewHeaderName validates s and returns a HeaderName.
func NewHeaderName(s string) (HeaderName, error) { return proto.NewHeaderName(s) }

// MustHeaderName is like NewHeaderName but panics on invalid input.
func MustHeaderName(s string) HeaderName { return proto.MustHeaderName(s) }

// HeaderValue is a NATS header field value.
type HeaderValue = proto.HeaderValue

// NewHeaderValue validates s and returns a HeaderValue.
func NewHeaderValue(s string) (HeaderValue, error) { return proto.NewHeaderValue(s) }

// MustHeaderValue is like NewHeaderValue but panics on invalid input.
func MustHeaderValue(s string) HeaderValue { return proto.MustHeaderValue(s) }

// HeaderMap is an ordered multimap from header name to a list of values.
type HeaderMap = proto.HeaderMap

// NewHeaderMap returns an empty HeaderMap.
func NewHeaderMap() *HeaderMap { return proto.NewHeaderMap() }

// QueueGroup labels a subscription for server-side load balancing.
type QueueGroup = proto.QueueGroup

// NewQueueGroup validates s and returns a QueueGroup.
func NewQueueGroup(s string) (QueueGroup, error) { return proto.NewQueueGroup(s) }

// MustQueueGroup is like NewQueueGroup but panics on invalid input.
func MustQueueGroup(s string) QueueGroup { return proto.MustQueueGroup(s) }

// ServerError is a parsed `-ERR` message from the server; non-fatal kinds
// (bad subject, permissions violations) are delivered to the affected
// Subscription rather than tearing the connection down.
type ServerError = proto.ServerError

// Msg is one message received on a Subscription or as a request reply.
type Msg struct {
	Subject Subject
	Reply   *Subject
	Headers *HeaderMap
	Data    []byte
}

func msgFromServerMessage(m *proto.ServerMessage) *Msg {
	return &Msg{
		Subject: m.Base.Subject,
		Reply:   m.Base.ReplySubject,
		Headers: m.Base.Headers,
		Data:    m.Base.Payload,
	}
}
