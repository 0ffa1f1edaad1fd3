package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lox/bingoroom/internal/store"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// NewRequest creates a client request correlated by requestID
func NewRequest(messageType MessageType, requestID string, data interface{}) (*Message, error) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}
	msg.RequestID = requestID
	return msg, nil
}

// Client → Server Messages

type PushData struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type SetData struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type UpdateData struct {
	Path   string                     `json:"path"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type GetData struct {
	Path string `json:"path"`
}

// SubscribeData names the subscription so that snapshots can be routed
// before the result arrives.
type SubscribeData struct {
	SubscriptionID string `json:"subscriptionId"`
	Path           string `json:"path"`
}

type UnsubscribeData struct {
	SubscriptionID string `json:"subscriptionId"`
}

// Server → Client Messages

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultData answers one request. Exactly one of the payload fields is set
// depending on the request type, or Error on failure.
type ResultData struct {
	Key      string          `json:"key,omitempty"`
	Snapshot *store.Snapshot `json:"snapshot,omitempty"`
	Error    *ErrorData      `json:"error,omitempty"`
}

type SnapshotData struct {
	SubscriptionID string         `json:"subscriptionId"`
	Snapshot       store.Snapshot `json:"snapshot"`
}

// ErrorCode maps a store error to its wire code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalidPath):
		return CodeInvalidPath
	case errors.Is(err, store.ErrSchemaViolation):
		return CodeSchemaViolation
	default:
		return CodeStoreUnavailable
	}
}

// CodeError maps a wire code back to the store error it stands for
func CodeError(code string) error {
	switch code {
	case CodeInvalidPath:
		return store.ErrInvalidPath
	case CodeSchemaViolation:
		return store.ErrSchemaViolation
	default:
		return nil
	}
}
