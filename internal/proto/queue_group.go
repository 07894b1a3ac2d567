package proto

import (
	"fmt"
	"unicode"
)

// MaxQueueGroupLen is the maximum length of a QueueGroup constructed by
// this client.
const MaxQueueGroupLen = 64

// QueueGroup labels a subscription for server-side load balancing across
// subscribers sharing the same label. Colons are permitted.
type QueueGroup struct {
	value string
}

// QueueGroupError classifies why a candidate queue group was rejected.
type QueueGroupError struct {
	Kind  HeaderErrorKind
	Value string
}

func (e *QueueGroupError) Error() string {
	switch e.Kind {
	case HeaderEmpty:
		return "proto: queue group is empty"
	case HeaderTooLong:
		return fmt.Sprintf("proto: queue group exceeds %d bytes", MaxQueueGroupLen)
	case HeaderIllegalCharacter:
		return "proto: queue group contains whitespace"
	default:
		return "proto: invalid queue group"
	}
}

// NewQueueGroup validates s and returns a QueueGroup, or a
// *QueueGroupError.
func NewQueueGroup(s string) (QueueGroup, error) {
	if s == "" {
		return QueueGroup{}, &QueueGroupError{Kind: HeaderEmpty}
	}
	if len(s) > MaxQueueGroupLen {
		return QueueGroup{}, &QueueGroupError{Kind: HeaderTooLong, Value: s}
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			return QueueGroup{}, &QueueGroupError{Kind: HeaderIllegalCharacter, Value: s}
		}
	}
	return QueueGroup{value: s}, nil
}

// MustQueueGroup is like NewQueueGroup but panics on invalid input.
func MustQueueGroup(s string) QueueGroup {
	g, err := NewQueueGroup(s)
	if err != nil {
		panic(err)
	}
	return g
}

// String returns the queue group as written on the wire.
func (g QueueGroup) String() string { return g.value }

// IsZero reports whether this is the zero-value QueueGroup.
func (g QueueGroup) IsZero() bool { return g.value == "" }
