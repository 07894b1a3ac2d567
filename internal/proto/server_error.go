package proto

import "strings"

// ServerErrorKind classifies a `-ERR` message by matching its text against
// the closed set of well-known NATS server error strings.
type ServerErrorKind int

const (
	ErrKindOther ServerErrorKind = iota
	ErrKindInvalidSubject
	ErrKindPublishPermissionViolation
	ErrKindSubscribePermissionViolation
	ErrKindUnknownProtocolOperation
	ErrKindAttemptedToConnectToRoutePort
	ErrKindAuthorizationViolation
	ErrKindAuthorizationTimeout
	ErrKindInvalidClientProtocol
	ErrKindMaximumControlLineExceeded
	ErrKindParserError
	ErrKindTLSRequired
	ErrKindStaleConnection
	ErrKindMaximumConnectionsExceeded
	ErrKindSlowConsumer
	ErrKindMaximumPayloadViolation
)

// ServerError is a parsed `-ERR` server message.
type ServerError struct {
	Kind ServerErrorKind
	// Raw holds the original message text when Kind is ErrKindOther.
	Raw string
}

func (e *ServerError) Error() string {
	if e.Kind == ErrKindOther {
		return "nats: server error: " + e.Raw
	}
	return "nats: server error: " + e.Kind.String()
}

// String returns the canonical NATS error message for known kinds.
func (k ServerErrorKind) String() string {
	switch k {
	case ErrKindInvalidSubject:
		return "Invalid Subject"
	case ErrKindPublishPermissionViolation:
		return "Permissions Violation for Publish"
	case ErrKindSubscribePermissionViolation:
		return "Permissions Violation for Subscription"
	case ErrKindUnknownProtocolOperation:
		return "Unknown Protocol Operation"
	case ErrKindAttemptedToConnectToRoutePort:
		return "Attempted To Connect To Route Port"
	case ErrKindAuthorizationViolation:
		return "Authorization Violation"
	case ErrKindAuthorizationTimeout:
		return "Authorization Timeout"
	case ErrKindInvalidClientProtocol:
		return "Invalid Client Protocol"
	case ErrKindMaximumControlLineExceeded:
		return "Maximum Control Line Exceeded"
	case ErrKindParserError:
		return "Parser Error"
	case ErrKindTLSRequired:
		return "Secure Connection - TLS Required"
	case ErrKindStaleConnection:
		return "Stale Connection"
	case ErrKindMaximumConnectionsExceeded:
		return "Maximum Connections Exceeded"
	case ErrKindSlowConsumer:
		return "Slow Consumer"
	case ErrKindMaximumPayloadViolation:
		return "Maximum Payload Violation"
	default:
		return "Other"
	}
}

// ParseServerError classifies a raw `-ERR` message by ASCII
// case-insensitive matching against known NATS error strings. Some kinds
// are recognized by prefix (permissions violations carry a dynamic
// subject/queue suffix).
func ParseServerError(raw string) *ServerError {
	trimmed := strings.Trim(raw, "'\"")

	switch {
	case strings.EqualFold(trimmed, ErrKindInvalidSubject.String()):
		return &ServerError{Kind: ErrKindInvalidSubject}
	case hasFoldPrefix(trimmed, ErrKindPublishPermissionViolation.String()):
		return &ServerError{Kind: ErrKindPublishPermissionViolation}
	case hasFoldPrefix(trimmed, ErrKindSubscribePermissionViolation.String()):
		return &ServerError{Kind: ErrKindSubscribePermissionViolation}
	case strings.EqualFold(trimmed, ErrKindUnknownProtocolOperation.String()):
		return &ServerError{Kind: ErrKindUnknownProtocolOperation}
	case strings.EqualFold(trimmed, ErrKindAttemptedToConnectToRoutePort.String()):
		return &ServerError{Kind: ErrKindAttemptedToConnectToRoutePort}
	case strings.EqualFold(trimmed, ErrKindAuthorizationViolation.String()):
		return &ServerError{Kind: ErrKindAuthorizationViolation}
	case strings.EqualFold(trimmed, ErrKindAuthorizationTimeout.String()):
		return &ServerError{Kind: ErrKindAuthorizationTimeout}
	case strings.EqualFold(trimmed, ErrKindInvalidClientProtocol.String()):
		return &ServerError{Kind: ErrKindInvalidClientProtocol}
	case strings.EqualFold(trimmed, ErrKindMaximumControlLineExceeded.String()):
		return &ServerError{Kind: ErrKindMaximumControlLineExceeded}
	case strings.EqualFold(trimmed, ErrKindParserError.String()):
		return &ServerError{Kind: ErrKindParserError}
	case strings.EqualFold(trimmed, ErrKindTLSRequired.String()):
		return &ServerError{Kind: ErrKindTLSRequired}
	case strings.EqualFold(trimmed, ErrKindStaleConnection.String()):
		return &ServerError{Kind: ErrKindStaleConnection}
	case strings.EqualFold(trimmed, ErrKindMaximumConnectionsExceeded.String()):
		return &ServerError{Kind: ErrKindMaximumConnectionsExceeded}
	case strings.EqualFold(trimmed, ErrKindSlowConsumer.String()):
		return &ServerError{Kind: ErrKindSlowConsumer}
	case strings.EqualFold(trimmed, ErrKindMaximumPayloadViolation.String()):
		return &ServerError{Kind: ErrKindMaximumPayloadViolation}
	default:
		return &ServerError{Kind: ErrKindOther, Raw: trimmed}
	}
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// NonFatal reports whether the handler should deliver this error to the
// affected subscription's channel rather than tearing the connection down.
// Only the three permissions/subject kinds are non-fatal; everything else,
// including unclassified (Other) errors, is fatal and triggers reconnect.
func (e *ServerError) NonFatal() bool {
	switch e.Kind {
	case ErrKindInvalidSubject, ErrKindPublishPermissionViolation, ErrKindSubscribePermissionViolation:
		return true
	default:
		return false
	}
}
