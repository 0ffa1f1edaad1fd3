package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/bingoroom/internal/store"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	store     store.Store
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	subs      map[string]func()
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, st store.Store) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		store:  st,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]func()),
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection and drops its subscriptions
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]func())
		c.mu.Unlock()
		for _, cancel := range subs {
			cancel()
		}

		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, this is expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

// SubscriptionCount returns the number of live subscriptions
func (c *Connection) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client. Requests are handled
// in arrival order, so one client's writes commit in the order it sent them.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)

	switch msg.Type {
	case MessageTypePush:
		var data PushData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse push data")
			return
		}
		c.handlePush(msg.RequestID, data)

	case MessageTypeSet:
		var data SetData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse set data")
			return
		}
		c.handleSet(msg.RequestID, data)

	case MessageTypeUpdate:
		var data UpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse update data")
			return
		}
		c.handleUpdate(msg.RequestID, data)

	case MessageTypeGet:
		var data GetData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse get data")
			return
		}
		c.handleGet(msg.RequestID, data)

	case MessageTypeSubscribe:
		var data SubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse subscribe data")
			return
		}
		c.handleSubscribe(msg.RequestID, data)

	case MessageTypeUnsubscribe:
		var data UnsubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidMessage, "Failed to parse unsubscribe data")
			return
		}
		c.handleUnsubscribe(msg.RequestID, data)

	default:
		c.sendError(msg.RequestID, CodeUnknownMessageType, "Unknown message type: "+msg.Type.String())
	}
}

// sendResult answers the request identified by requestID
func (c *Connection) sendResult(requestID string, result ResultData) {
	msg, err := NewMessage(MessageTypeResult, result)
	if err != nil {
		c.logger.Error("Failed to create result message", "error", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg) // Ignore send errors, the client times out
}

// sendError fails the request identified by requestID. Without a request id
// the error is sent as a standalone error message.
func (c *Connection) sendError(requestID, code, message string) {
	if requestID != "" {
		c.sendResult(requestID, ResultData{Error: &ErrorData{Code: code, Message: message}})
		return
	}

	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg) // Ignore send errors during error handling
}

func (c *Connection) sendStoreError(requestID string, err error) {
	c.logger.Debug("Store request failed", "request", requestID, "error", err)
	c.sendError(requestID, ErrorCode(err), err.Error())
}

func (c *Connection) handlePush(requestID string, data PushData) {
	key, err := c.store.Push(c.ctx, data.Path, data.Value)
	if err != nil {
		c.sendStoreError(requestID, err)
		return
	}
	c.sendResult(requestID, ResultData{Key: key})
}

func (c *Connection) handleSet(requestID string, data SetData) {
	if err := c.store.Set(c.ctx, data.Path, data.Value); err != nil {
		c.sendStoreError(requestID, err)
		return
	}
	c.sendResult(requestID, ResultData{})
}

func (c *Connection) handleUpdate(requestID string, data UpdateData) {
	fields := make(map[string]any, len(data.Fields))
	for k, v := range data.Fields {
		fields[k] = v
	}
	if err := c.store.Update(c.ctx, data.Path, fields); err != nil {
		c.sendStoreError(requestID, err)
		return
	}
	c.sendResult(requestID, ResultData{})
}

func (c *Connection) handleGet(requestID string, data GetData) {
	snap, err := c.store.Get(c.ctx, data.Path)
	if err != nil {
		c.sendStoreError(requestID, err)
		return
	}
	c.sendResult(requestID, ResultData{Snapshot: &snap})
}

func (c *Connection) handleSubscribe(requestID string, data SubscribeData) {
	if data.SubscriptionID == "" {
		c.sendError(requestID, CodeInvalidMessage, "Subscription id required")
		return
	}

	c.mu.Lock()
	_, exists := c.subs[data.SubscriptionID]
	c.mu.Unlock()
	if exists {
		c.sendError(requestID, CodeDuplicateSubscribe, "Subscription already exists: "+data.SubscriptionID)
		return
	}

	id := data.SubscriptionID
	cancel, err := c.store.Subscribe(c.ctx, data.Path, func(snap store.Snapshot) {
		msg, err := NewMessage(MessageTypeSnapshot, SnapshotData{SubscriptionID: id, Snapshot: snap})
		if err != nil {
			c.logger.Error("Failed to create snapshot message", "error", err)
			return
		}
		_ = c.SendMessage(msg) // A full buffer closes the connection
	})
	if err != nil {
		c.sendStoreError(requestID, err)
		return
	}

	c.mu.Lock()
	c.subs[id] = cancel
	c.mu.Unlock()

	c.logger.Debug("Subscribed", "subscription", id, "path", data.Path)
	c.sendResult(requestID, ResultData{})
}

func (c *Connection) handleUnsubscribe(requestID string, data UnsubscribeData) {
	c.mu.Lock()
	cancel, ok := c.subs[data.SubscriptionID]
	delete(c.subs, data.SubscriptionID)
	c.mu.Unlock()

	if !ok {
		c.sendError(requestID, CodeUnknownSubscription, "Unknown subscription: "+data.SubscriptionID)
		return
	}
	cancel()
	c.sendResult(requestID, ResultData{})
}
