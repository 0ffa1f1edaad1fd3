package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
// These are used for client-server communication protocol
const (
	// Client to server messages
	MessageTypePush        MessageType = "push"
	MessageTypeSet         MessageType = "set"
	MessageTypeUpdate      MessageType = "update"
	MessageTypeGet         MessageType = "get"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"

	// Server to client messages
	MessageTypeResult   MessageType = "result"
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeError    MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Error codes carried in ErrorData.Code
const (
	CodeInvalidMessage      = "invalid_message"
	CodeUnknownMessageType  = "unknown_message_type"
	CodeInvalidPath         = "invalid_path"
	CodeSchemaViolation     = "schema_violation"
	CodeUnknownSubscription = "unknown_subscription"
	CodeDuplicateSubscribe  = "duplicate_subscription"
	CodeStoreUnavailable    = "store_unavailable"
)
