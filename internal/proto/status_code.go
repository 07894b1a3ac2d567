package proto

import (
	"fmt"
	"strconv"
)

// StatusCode is a 3-digit NATS status code in [100, 1000).
type StatusCode uint16

// Well-known status codes.
const (
	StatusIdleHeartbeat StatusCode = 100
	StatusOK            StatusCode = 200
	StatusNotFound      StatusCode = 404
	StatusTimeout       StatusCode = 408
	StatusNoResponders  StatusCode = 503
)

// ErrInvalidStatusCode is returned when a status code is out of range or
// malformed.
type ErrInvalidStatusCode struct {
	Raw string
}

func (e *ErrInvalidStatusCode) Error() string {
	return fmt.Sprintf("proto: invalid status code %q", e.Raw)
}

// NewStatusCode validates n and returns a StatusCode.
func NewStatusCode(n uint16) (StatusCode, error) {
	if n < 100 || n >= 1000 {
		return 0, &ErrInvalidStatusCode{Raw: strconv.Itoa(int(n))}
	}
	return StatusCode(n), nil
}

// StatusCodeFromASCII parses a status code from exactly 3 ASCII digits.
func StatusCodeFromASCII(b []byte) (StatusCode, error) {
	if len(b) != 3 {
		return 0, &ErrInvalidStatusCode{Raw: string(b)}
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, &ErrInvalidStatusCode{Raw: string(b)}
		}
		n = n*10 + int(c-'0')
	}
	return NewStatusCode(uint16(n))
}
