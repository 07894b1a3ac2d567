package proto

import (
	"fmt"
	"unicode"
)

// MaxHeaderValueLen is the maximum length of a HeaderValue constructed by
// this client.
const MaxHeaderValueLen = 1024

// HeaderValue is a validated NATS header field value.
type HeaderValue struct {
	value string
}

// HeaderValueError classifies why a candidate header value was rejected.
type HeaderValueError struct {
	Kind  HeaderErrorKind
	Value string
}

func (e *HeaderValueError) Error() string {
	switch e.Kind {
	case HeaderEmpty:
		return "proto: header value is empty"
	case HeaderTooLong:
		return fmt.Sprintf("proto: header value exceeds %d bytes", MaxHeaderValueLen)
	case HeaderIllegalCharacter:
		return "proto: header value contains whitespace"
	default:
		return "proto: invalid header value"
	}
}

// NewHeaderValue validates s and returns a HeaderValue, or a
// *HeaderValueError.
func NewHeaderValue(s string) (HeaderValue, error) {
	if s == "" {
		return HeaderValue{}, &HeaderValueError{Kind: HeaderEmpty}
	}
	if len(s) > MaxHeaderValueLen {
		return HeaderValue{}, &HeaderValueError{Kind: HeaderTooLong, Value: s}
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			return HeaderValue{}, &HeaderValueError{Kind: HeaderIllegalCharacter, Value: s}
		}
	}
	return HeaderValue{value: s}, nil
}

// MustHeaderValue is like NewHeaderValue but panics on invalid input.
func MustHeaderValue(s string) HeaderValue {
	v, err := NewHeaderValue(s)
	if err != nil {
		panic(err)
	}
	return v
}

// HeaderValueFromDangerousValue builds a HeaderValue without validation,
// for data decoded off the wire.
func HeaderValueFromDangerousValue(s string) HeaderValue {
	return HeaderValue{value: s}
}

// String returns the header value as written on the wire.
func (v HeaderValue) String() string { return v.value }
