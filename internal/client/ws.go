package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phonemulator/console/internal/clock"
	"github.com/phonemulator/console/internal/logfmt"
)

const (
	// DefaultReconnectDelay is the pause between a closure and the next
	// connection attempt.
	DefaultReconnectDelay = 5 * time.Second

	eventBuffer = 256
)

// State is the push-channel connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Conn is an established, receive-only push channel.
type Conn interface {
	// ReadMessage blocks for the next payload. A *websocket.CloseError
	// reports an orderly closure; any other error is a channel failure.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens push-channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSClient owns the single push-channel connection to the backend. It
// reconnects on its own after every closure until Stop is called, and
// publishes decoded log events on Events in arrival order.
type WSClient struct {
	url      string
	dialer   Dialer
	clock    clock.Clock
	delay    time.Duration
	logger   *slog.Logger
	observer func(State)
	events   chan logfmt.Event

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	conn    Conn
	gen     uint64 // bumped per connection attempt; stale callbacks compare against it
	timer   *clock.Timer
	stopped bool
}

// WSOption configures a WSClient.
type WSOption func(*WSClient)

// WithDialer replaces the gorilla/websocket transport.
func WithDialer(d Dialer) WSOption {
	return func(c *WSClient) { c.dialer = d }
}

// WithClock replaces the clock used for reconnect timers.
func WithClock(clk clock.Clock) WSOption {
	return func(c *WSClient) { c.clock = clk }
}

// WithReconnectDelay sets the delay between closure and reconnect.
// Non-positive values keep the default.
func WithReconnectDelay(d time.Duration) WSOption {
	return func(c *WSClient) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithWSLogger sets the diagnostics logger.
func WithWSLogger(l *slog.Logger) WSOption {
	return func(c *WSClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStateObserver registers fn to be called after every state change.
// fn runs on the goroutine that caused the change and must not block.
func WithStateObserver(fn func(State)) WSOption {
	return func(c *WSClient) { c.observer = fn }
}

// NewWSClient creates a client for the given WebSocket URL. It does not
// connect until Start.
func NewWSClient(url string, opts ...WSOption) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WSClient{
		url:    url,
		dialer: NewDialer(defaultPingInterval, defaultPongTimeout),
		clock:  clock.Real(),
		delay:  DefaultReconnectDelay,
		logger: slog.New(slog.DiscardHandler),
		events: make(chan logfmt.Event, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events delivers log events: decoded payloads and the client's own
// notices. The channel is never closed; stop reading after Stop.
func (c *WSClient) Events() <-chan logfmt.Event {
	return c.events
}

// State returns the current connection state.
func (c *WSClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins connecting. It is equivalent to Connect.
func (c *WSClient) Start() {
	c.Connect()
}

// Connect starts a connection attempt and reports whether it did. It is
// a no-op while a connection is being established or open, and after
// Stop.
func (c *WSClient) Connect() bool {
	c.mu.Lock()
	if c.stopped || c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.mu.Unlock()

	c.logger.Info("push channel connecting", "url", c.url)
	c.notify(StateConnecting)
	c.emit(logfmt.SystemNotice{Message: "Connecting to " + c.url + "..."})
	go c.run(gen)
	return true
}

// Stop closes the connection and cancels any pending reconnect. The
// client cannot be restarted.
func (c *WSClient) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.Close()
	}
	c.logger.Info("push channel stopped", "url", c.url)
	c.notify(StateClosed)
}

func (c *WSClient) run(gen uint64) {
	conn, err := c.dialer.Dial(c.ctx, c.url)
	if err != nil {
		c.handleError(gen, err)
		c.handleClose(gen, err)
		return
	}
	if !c.handleOpen(gen, conn) {
		conn.Close()
		return
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				c.handleError(gen, err)
			}
			c.handleClose(gen, err)
			conn.Close()
			return
		}
		c.handleMessage(gen, data)
	}
}

func (c *WSClient) handleOpen(gen uint64, conn Conn) bool {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.state = StateOpen
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("push channel open", "url", c.url)
	c.notify(StateOpen)
	c.emit(logfmt.SystemNotice{Message: "WebSocket connection established"})
	return true
}

func (c *WSClient) handleMessage(gen uint64, data []byte) {
	if !c.current(gen) {
		return
	}
	for _, e := range logfmt.Decode(data) {
		c.emit(e)
	}
}

// handleError reports a channel failure. The closure that follows it is
// what moves the state machine.
func (c *WSClient) handleError(gen uint64, err error) {
	if !c.current(gen) {
		return
	}
	c.logger.Warn("push channel error", "url", c.url, "error", err)
	c.emit(logfmt.SystemNotice{Message: "WebSocket error", Error: err.Error()})
}

func (c *WSClient) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.conn = nil
	c.timer = c.clock.AfterFunc(c.delay, func() { c.reconnect(gen) })
	c.mu.Unlock()

	c.logger.Info("push channel closed", "url", c.url, "reason", describeClose(err), "retry_in", c.delay)
	c.notify(StateClosed)
	c.emit(logfmt.SystemNotice{
		Message: fmt.Sprintf("WebSocket closed (%s). Reconnecting in %s...", describeClose(err), c.delay),
	})
}

func (c *WSClient) reconnect(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	c.Connect()
}

func (c *WSClient) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stopped && gen == c.gen
}

func (c *WSClient) notify(s State) {
	if c.observer != nil {
		c.observer(s)
	}
}

func (c *WSClient) emit(e logfmt.Event) {
	select {
	case c.events <- e:
	case <-c.ctx.Done():
	}
}

// describeClose renders the close code and reason. Failures without a
// close frame are reported as an abnormal closure.
func describeClose(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return fmt.Sprintf("code %d: %s", ce.Code, ce.Text)
		}
		return fmt.Sprintf("code %d", ce.Code)
	}
	return fmt.Sprintf("code %d", websocket.CloseAbnormalClosure)
}
