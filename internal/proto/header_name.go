package proto

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxHeaderNameLen is the maximum length of a HeaderName constructed by this
// client.
const MaxHeaderNameLen = 64

// HeaderName is a case-insensitive NATS header field name.
type HeaderName struct {
	value string
}

// Well-known Jetstream header names, mirrored from the original
// implementation's header constants.
var (
	HeaderNameMsgID                = MustHeaderName("Nats-Msg-Id")
	HeaderNameExpectedStream       = MustHeaderName("Nats-Expected-Stream")
	HeaderNameExpectedLastMsgID    = MustHeaderName("Nats-Expected-Last-Msg-Id")
	HeaderNameExpectedLastSequence = MustHeaderName("Nats-Expected-Last-Sequence")
	HeaderNameRollup               = MustHeaderName("Nats-Rollup")
	HeaderNameStream               = MustHeaderName("Nats-Stream")
	HeaderNameSubject              = MustHeaderName("Nats-Subject")
	HeaderNameSequence             = MustHeaderName("Nats-Sequence")
	HeaderNameLastSequence         = MustHeaderName("Nats-Last-Sequence")
	HeaderNameTimeStamp            = MustHeaderName("Nats-Time-Stamp")
	HeaderNameStreamSource         = MustHeaderName("Nats-Stream-Source")
	HeaderNameMsgSize              = MustHeaderName("Nats-Msg-Size")
)

// HeaderNameError classifies why a candidate header name was rejected.
type HeaderNameError struct {
	Kind  HeaderErrorKind
	Value string
}

// HeaderErrorKind enumerates the ways a header name or value can fail
// validation. Shared between HeaderName and HeaderValue.
type HeaderErrorKind int

const (
	HeaderEmpty HeaderErrorKind = iota
	HeaderTooLong
	HeaderIllegalCharacter
)

func (e *HeaderNameError) Error() string {
	switch e.Kind {
	case HeaderEmpty:
		return "proto: header name is empty"
	case HeaderTooLong:
		return fmt.Sprintf("proto: header name exceeds %d bytes", MaxHeaderNameLen)
	case HeaderIllegalCharacter:
		return "proto: header name contains whitespace or ':'"
	default:
		return "proto: invalid header name"
	}
}

// NewHeaderName validates s and returns a HeaderName, or a *HeaderNameError.
func NewHeaderName(s string) (HeaderName, error) {
	if s == "" {
		return HeaderName{}, &HeaderNameError{Kind: HeaderEmpty}
	}
	if len(s) > MaxHeaderNameLen {
		return HeaderName{}, &HeaderNameError{Kind: HeaderTooLong, Value: s}
	}
	for _, r := range s {
		if unicode.IsSpace(r) || r == ':' {
			return HeaderName{}, &HeaderNameError{Kind: HeaderIllegalCharacter, Value: s}
		}
	}
	return HeaderName{value: s}, nil
}

// MustHeaderName is like NewHeaderName but panics on invalid input.
func MustHeaderName(s string) HeaderName {
	n, err := NewHeaderName(s)
	if err != nil {
		panic(err)
	}
	return n
}

// HeaderNameFromDangerousValue builds a HeaderName without any
// validation, for data decoded off the wire.
func HeaderNameFromDangerousValue(s string) HeaderName {
	return HeaderName{value: s}
}

// String returns the header name as written on the wire.
func (n HeaderName) String() string { return n.value }

// Equal compares two header names ASCII case-insensitively.
func (n HeaderName) Equal(other HeaderName) bool {
	return strings.EqualFold(n.value, other.value)
}

// CanonicalKey returns a case-folded key suitable for use as a map key so
// that header lookups are case-insensitive.
func (n HeaderName) CanonicalKey() string {
	return strings.ToLower(n.value)
}
