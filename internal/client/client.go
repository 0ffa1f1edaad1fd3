// Package client implements store.Store over the record server's WebSocket
// protocol, so sessions can share rooms held by a remote process.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/bingoroom/internal/server" // Reuse message types
	"github.com/lox/bingoroom/internal/store"
)

// ErrNotConnected is returned for requests made before Connect or after the
// connection dropped.
var ErrNotConnected = errors.New("not connected")

// RemoteError is a failure reported by the server. It matches the store
// error named by its code, so callers can keep using errors.Is.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return server.CodeError(e.Code)
}

// Client is a store.Store backed by a remote record server
type Client struct {
	serverURL      string
	requestTimeout time.Duration
	conn           *websocket.Conn
	send           chan *server.Message
	logger         *log.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	mu             sync.RWMutex
	connected      bool
	closeOnce      sync.Once
	nextID         atomic.Uint64

	pending map[string]chan server.ResultData
	subs    map[string]*store.Mailbox
}

var _ store.Store = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithRequestTimeout bounds how long a request waits for its result
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		serverURL:      serverURL,
		requestTimeout: 30 * time.Second,
		send:           make(chan *server.Message, 256),
		logger:         logger.WithPrefix("client"),
		ctx:            ctx,
		cancel:         cancel,
		pending:        make(map[string]chan server.ResultData),
		subs:           make(map[string]*store.Mailbox),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WebSocketURL converts a server address to its WebSocket endpoint
func WebSocketURL(serverURL string) (string, error) {
	if !strings.Contains(serverURL, "://") {
		serverURL = "http://" + serverURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	// Convert http/https to ws/wss
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme: %q", u.Scheme)
	}

	// Add WebSocket path
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	wsURL, err := WebSocketURL(c.serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()

	c.logger.Info("Connected to server")
	return nil
}

// Close disconnects from the server and stops all subscriptions
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close() // Ignore close errors during shutdown
		}
		c.connected = false
		for id, box := range c.subs {
			box.Stop()
			delete(c.subs, id)
		}

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SendMessage queues a message for the server
func (c *Client) SendMessage(msg *server.Message) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Push implements store.Store
func (c *Client) Push(ctx context.Context, parent string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	res, err := c.request(ctx, server.MessageTypePush, server.PushData{Path: parent, Value: data})
	if err != nil {
		return "", err
	}
	return res.Key, nil
}

// Set implements store.Store
func (c *Client) Set(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	_, err = c.request(ctx, server.MessageTypeSet, server.SetData{Path: path, Value: data})
	return err
}

// Update implements store.Store
func (c *Client) Update(ctx context.Context, path string, fields map[string]any) error {
	encoded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		encoded[k] = data
	}
	_, err := c.request(ctx, server.MessageTypeUpdate, server.UpdateData{Path: path, Fields: encoded})
	return err
}

// Get implements store.Store
func (c *Client) Get(ctx context.Context, path string) (store.Snapshot, error) {
	res, err := c.request(ctx, server.MessageTypeGet, server.GetData{Path: path})
	if err != nil {
		return store.Snapshot{}, err
	}
	if res.Snapshot == nil {
		return store.Snapshot{Path: path}, nil
	}
	return *res.Snapshot, nil
}

// Subscribe implements store.Store. Snapshots are routed by a client-chosen
// id, so the initial snapshot may arrive before the subscribe result.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (func(), error) {
	id := "sub-" + strconv.FormatUint(c.nextID.Add(1), 10)
	box := store.NewMailbox(fn)

	c.mu.Lock()
	c.subs[id] = box
	c.mu.Unlock()

	go box.Run(ctx)

	drop := func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		box.Stop()
	}

	if _, err := c.request(ctx, server.MessageTypeSubscribe, server.SubscribeData{SubscriptionID: id, Path: path}); err != nil {
		drop()
		return nil, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			drop()
			msg, err := server.NewRequest(server.MessageTypeUnsubscribe, "", server.UnsubscribeData{SubscriptionID: id})
			if err == nil {
				_ = c.SendMessage(msg) // Best effort, the server drops it on disconnect anyway
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-box.Done():
		}
	}()

	c.logger.Debug("Subscribed", "path", path, "subscription", id)
	return cancel, nil
}

// request sends one request and waits for its result
func (c *Client) request(ctx context.Context, typ server.MessageType, data any) (server.ResultData, error) {
	if err := ctx.Err(); err != nil {
		return server.ResultData{}, err
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	msg, err := server.NewRequest(typ, id, data)
	if err != nil {
		return server.ResultData{}, err
	}

	ch := make(chan server.ResultData, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.SendMessage(msg); err != nil {
		return server.ResultData{}, fmt.Errorf("%s: %w", typ, err)
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Error != nil {
			return res, &RemoteError{Code: res.Error.Code, Message: res.Error.Message}
		}
		return res, nil
	case <-ctx.Done():
		return server.ResultData{}, ctx.Err()
	case <-c.ctx.Done():
		return server.ResultData{}, fmt.Errorf("%s: %w", typ, ErrNotConnected)
	case <-timer.C:
		return server.ResultData{}, fmt.Errorf("timeout waiting for %s result", typ)
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		// Waiters and subscriptions cannot be served without a connection
		_ = c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg server.Message
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

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage routes results to waiting requests and snapshots to
// subscriptions
func (c *Client) handleMessage(msg *server.Message) {
	c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)

	switch msg.Type {
	case server.MessageTypeResult:
		var res server.ResultData
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			c.logger.Error("Failed to parse result", "error", err)
			return
		}
		c.mu.RLock()
		ch, ok := c.pending[msg.RequestID]
		c.mu.RUnlock()
		if ok {
			ch <- res
		}

	case server.MessageTypeSnapshot:
		var data server.SnapshotData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.logger.Error("Failed to parse snapshot", "error", err)
			return
		}
		c.mu.RLock()
		box, ok := c.subs[data.SubscriptionID]
		c.mu.RUnlock()
		if ok {
			box.Offer(data.Snapshot)
		}

	case server.MessageTypeError:
		var data server.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.logger.Error("Failed to parse error", "error", err)
			return
		}
		c.logger.Warn("Server error", "code", data.Code, "message", data.Message)

	default:
		c.logger.Debug("No handler for message type", "type", msg.Type)
	}
}
