package proto

// MessageBase is the subject/reply/headers/payload shared by outgoing
// publishes and incoming server messages.
type MessageBase struct {
	Subject      Subject
	ReplySubject *Subject
	Headers      *HeaderMap
	Payload      []byte
}

// ServerMessage is a MessageBase delivered to a particular subscription,
// optionally carrying a status code (e.g. 503 no-responders).
type ServerMessage struct {
	StatusCode     *StatusCode
	SubscriptionID SubscriptionID
	Base           MessageBase
}
