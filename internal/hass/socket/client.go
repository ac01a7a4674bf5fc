package socket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
	writeWait             = 10 * time.Second
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConnectionRecorder receives connection state changes. *metrics.Metrics satisfies it.
type ConnectionRecorder interface {
	SetSocketConnected(connected bool)
}

// EventHandler is invoked for every matching event.
//
// Events are delivered one at a time in arrival order on a delivery
// goroutine separate from the read loop, so a handler may call SendMessage
// and wait for its result. A slow handler delays later events only.
type EventHandler func(Event)

// Options configures a Client.
type Options struct {
	// URL is the socket endpoint, e.g. ws://hub.local:8123/api/websocket.
	URL string

	// Token is sent in the auth handshake.
	Token string

	// Mock disables dialing. The client reports disconnected and every
	// send returns (nil, nil).
	Mock bool

	// RequestTimeout bounds how long SendMessage waits for a result.
	RequestTimeout time.Duration

	// ReconnectDelay is the pause between reconnect attempts in Run.
	ReconnectDelay time.Duration

	Logger  Logger
	Metrics ConnectionRecorder

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client is a hub socket connection.
//
// Requests are correlated with results by a per-connection message id.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Event subscriptions are restored on reconnect.
type Client struct {
	opts   Options
	logger Logger

	connMu sync.RWMutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	connected atomic.Bool
	paused    atomic.Bool
	nextID    atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan result

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler

	// queue holds events awaiting delivery; delivering is true while a
	// deliver goroutine owns the queue.
	queueMu    sync.Mutex
	queue      []Event
	delivering bool

	// dropped receives a value whenever a read loop exits.
	dropped chan struct{}
}

// New creates a client. It does not connect.
func New(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		opts:     opts,
		logger:   logger,
		pending:  make(map[int64]chan result),
		handlers: make(map[string][]EventHandler),
		dropped:  make(chan struct{}, 1),
	}
}

// IsConnected reports whether the socket is connected and authenticated.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Paused reports whether outbound service calls are suspended.
func (c *Client) Paused() bool {
	return c.paused.Load()
}

// SetPaused suspends or resumes outbound service calls.
func (c *Client) SetPaused(paused bool) {
	c.paused.Store(paused)
	c.logger.Info("socket message pause changed", "paused", paused)
}

// Mock reports whether the client runs without a real connection.
func (c *Client) Mock() bool {
	return c.opts.Mock
}

// OnEvent registers handler for eventType and subscribes on the hub if
// connected. Subscriptions are re-sent after every reconnect.
func (c *Client) OnEvent(eventType string, handler EventHandler) {
	c.handlersMu.Lock()
	_, subscribed := c.handlers[eventType]
	c.handlers[eventType] = append(c.handlers[eventType], handler)
	c.handlersMu.Unlock()

	if !subscribed && c.IsConnected() {
		if err := c.subscribe(eventType); err != nil {
			c.logger.Warn("event subscription failed", "event_type", eventType, "error", err)
		}
	}
}

// Connect dials the hub, completes the auth handshake and starts the read loop.
//
// Parameters:
//   - ctx: Bounds the dial and handshake
//
// Returns:
//   - error: ErrConnectionFailed or ErrAuthFailed (wrapped)
func (c *Client) Connect(ctx context.Context) error {
	if c.opts.Mock {
		c.logger.Debug("mock socket enabled, not connecting")
		return nil
	}

	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close() //nolint:errcheck // handshake error takes precedence
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	c.setConnectedMetric(true)

	go c.readLoop(conn)

	c.handlersMu.RLock()
	types := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		types = append(types, t)
	}
	c.handlersMu.RUnlock()
	for _, t := range types {
		if err := c.subscribe(t); err != nil {
			c.logger.Warn("event subscription failed", "event_type", t, "error", err)
		}
	}

	c.logger.Info("socket connected", "url", c.opts.URL)
	return nil
}

// handshake runs the auth exchange synchronously before the read loop starts.
func (c *Client) handshake(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout)) //nolint:errcheck // best-effort deadline
	defer conn.SetReadDeadline(time.Time{})                //nolint:errcheck // clear deadline

	var msg inbound
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("%w: reading auth_required: %w", ErrConnectionFailed, err)
	}
	if msg.Type != TypeAuthRequired {
		return fmt.Errorf("%w: unexpected first message %q", ErrConnectionFailed, msg.Type)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // best-effort deadline
	if err := conn.WriteJSON(authMessage{Type: TypeAuth, AccessToken: c.opts.Token}); err != nil {
		return fmt.Errorf("%w: sending auth: %w", ErrConnectionFailed, err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("%w: reading auth result: %w", ErrConnectionFailed, err)
	}
	switch msg.Type {
	case TypeAuthOK:
		return nil
	case TypeAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthFailed, msg.Message)
	default:
		return fmt.Errorf("%w: unexpected auth reply %q", ErrConnectionFailed, msg.Type)
	}
}

// Run keeps the connection alive until ctx is cancelled, reconnecting after
// ReconnectDelay whenever the connection drops or a dial fails.
//
// Returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	if c.opts.Mock {
		<-ctx.Done()
		return nil
	}

	for {
		if !c.IsConnected() {
			if err := c.Connect(ctx); err != nil {
				c.logger.Warn("socket connect failed", "error", err, "retry_in", c.opts.ReconnectDelay)
				select {
				case <-ctx.Done():
					return c.Close()
				case <-time.After(c.opts.ReconnectDelay):
				}
				continue
			}
		}

		select {
		case <-ctx.Done():
			return c.Close()
		case <-c.dropped:
			c.logger.Warn("socket connection lost", "retry_in", c.opts.ReconnectDelay)
			select {
			case <-ctx.Done():
				return c.Close()
			case <-time.After(c.opts.ReconnectDelay):
			}
		}
	}
}

// SendMessage sends msg with a fresh id. msg must encode to a JSON object.
//
// With waitForAck the call blocks until the matching result arrives, the
// request timeout elapses, or ctx is cancelled, and returns the result
// payload. Without it the call returns (nil, nil) once the frame is written.
func (c *Client) SendMessage(ctx context.Context, msg any, waitForAck bool) (json.RawMessage, error) {
	if c.opts.Mock {
		return nil, nil
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	obj, err := toObject(msg)
	if err != nil {
		return nil, err
	}
	id := c.nextID.Add(1)
	obj["id"] = id

	var ch chan result
	if waitForAck {
		ch = make(chan result, 1)
		c.pendingMu.Lock()
		c.pending[id] = ch
		c.pendingMu.Unlock()
	}

	if err := c.write(obj); err != nil {
		c.forget(id)
		return nil, err
	}
	if !waitForAck {
		return nil, nil
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.payload, r.err
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("%w: id %d after %v", ErrTimeout, id, c.opts.RequestTimeout)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Close closes the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *Client) subscribe(eventType string) error {
	_, err := c.SendMessage(context.Background(), subscribeMessage{
		Type:      TypeSubscribeEvents,
		EventType: eventType,
	}, false)
	return err
}

func (c *Client) write(v any) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // best-effort deadline
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("socket: write: %w", err)
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop reads until the connection fails, then marks the client
// disconnected and fails every pending request.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		conn.Close() //nolint:errcheck // already failing

		c.connected.Store(false)
		c.setConnectedMetric(false)
		c.failPending()

		select {
		case c.dropped <- struct{}{}:
		default:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("socket read ended", "error", err)
			}
			return
		}

		// The hub may coalesce several messages into one array frame.
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
			var batch []inbound
			if err := json.Unmarshal(trimmed, &batch); err != nil {
				c.logger.Warn("invalid socket frame", "error", err)
				continue
			}
			for i := range batch {
				c.dispatch(&batch[i])
			}
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid socket frame", "error", err)
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *inbound) {
	switch msg.Type {
	case TypeResult:
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
		if !ok {
			return
		}
		if msg.Success != nil && !*msg.Success {
			code, text := "unknown_error", ""
			if msg.Error != nil {
				code, text = msg.Error.Code, msg.Error.Message
			}
			ch <- result{err: fmt.Errorf("%w: %s: %s", ErrCommandFailed, code, text)}
			return
		}
		ch <- result{payload: msg.Result}

	case TypeEvent:
		if msg.Event == nil {
			return
		}
		c.enqueue(*msg.Event)

	case TypePong:
		c.forget(msg.ID)

	default:
		c.logger.Debug("unhandled socket message", "type", msg.Type)
	}
}

// enqueue appends ev to the delivery queue and starts a deliver goroutine
// if none is running. It never blocks the read loop.
func (c *Client) enqueue(ev Event) {
	c.queueMu.Lock()
	c.queue = append(c.queue, ev)
	start := !c.delivering
	c.delivering = true
	c.queueMu.Unlock()

	if start {
		go c.deliver()
	}
}

// deliver drains the queue in order and exits once it is empty. At most one
// deliver goroutine runs at a time.
func (c *Client) deliver() {
	for {
		c.queueMu.Lock()
		if len(c.queue) == 0 {
			c.delivering = false
			c.queue = nil
			c.queueMu.Unlock()
			return
		}
		ev := c.queue[0]
		c.queue[0] = Event{}
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		c.handlersMu.RLock()
		handlers := slices.Clone(c.handlers[ev.EventType])
		c.handlersMu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- result{err: ErrClosed}
		delete(c.pending, id)
	}
}

func (c *Client) setConnectedMetric(connected bool) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.SetSocketConnected(connected)
	}
}

// toObject re-encodes msg as a generic JSON object so an id can be attached.
func toObject(msg any) (map[string]any, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, ErrInvalidMessage
	}
	return obj, nil
}
