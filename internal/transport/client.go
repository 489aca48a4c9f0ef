// Package transport owns the single real-time connection to the chorus
// backend: the connect/disconnect/reconnect state machine, bounded
// exponential backoff, and the routing split between trigger-shaped inbound
// events and generic broadcasts.
package transport

import (
	"strings"
	"sync"
	"time"

	"github.com/chorus-dev/chorus/pkg/logger"
)

// TriggerConsumer receives inbound trigger-shaped events (result:* and
// error:trigger*).
type TriggerConsumer interface {
	HandleTriggerEvent(event string, payload map[string]any)
}

// BroadcastConsumer receives inbound generic "message" events.
type BroadcastConsumer interface {
	HandleBroadcast(payload map[string]any)
}

// Options configures a transport client.
type Options struct {
	// ServerURL is the base URL of the backend (no trailing slash).
	ServerURL string
	// Path is the Socket.IO endpoint path.
	Path string
	// Token is an opaque auth token passed in the connection handshake.
	Token string

	// MaxReconnectAttempts bounds consecutive failed attempts before the
	// client settles in the disconnected state.
	MaxReconnectAttempts int
	// ReconnectBaseDelay is the initial backoff interval; it doubles per
	// consecutive failure up to ReconnectMaxDelay.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Path == "" {
		o.Path = "/v1/stream"
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 10
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = 30 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
}

// Conn is the minimal surface of an established socket connection. The
// production implementation wraps a Socket.IO socket; tests substitute fakes.
type Conn interface {
	OnConnect(fn func())
	OnConnectError(fn func(err error))
	OnDisconnect(fn func(reason string))
	OnAnyEvent(fn func(event string, payload map[string]any))
	Connected() bool
	Emit(event string, payload map[string]any)
	Close()
}

// Dialer opens a new socket connection. The returned Conn may still be
// completing its handshake; OnConnect/OnConnectError report the outcome.
type Dialer func(opts Options) (Conn, error)

// Client owns exactly one logical real-time connection.
type Client struct {
	opts       Options
	dial       Dialer
	triggers   TriggerConsumer
	broadcasts BroadcastConsumer

	mu       sync.Mutex
	conn     Conn
	state    State
	attempts int
	lastErr  error
	// gen invalidates callbacks from sockets that have been superseded by a
	// later dial or an explicit Disconnect.
	gen            int64
	reconnectTimer *time.Timer
	connectTimer   *time.Timer
	observers      []func(ConnectionState)
}

// NewClient creates a transport client. Consumers are injected up front; the
// client never delivers events before Connect is called.
func NewClient(opts Options, triggers TriggerConsumer, broadcasts BroadcastConsumer) *Client {
	opts.applyDefaults()
	return &Client{
		opts:       opts,
		dial:       DialSocketIO,
		triggers:   triggers,
		broadcasts: broadcasts,
		state:      StateDisconnected,
	}
}

// SetDialer replaces the socket dialer. Intended for tests.
func (c *Client) SetDialer(dial Dialer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dial = dial
}

// OnStateChange registers an observer invoked on every connection state
// transition. Observers run on their own goroutine and must not call back
// into the client synchronously.
func (c *Client) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns a snapshot of the connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionState{State: c.state, Attempts: c.attempts, LastErr: c.lastErr}
}

// Connect starts the connection state machine. It is idempotent: calling it
// while connecting, connected, or reconnecting is a no-op. Connect does not
// block waiting for the handshake; observe completion via OnStateChange or
// WaitForConnected.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDisconnected {
		return
	}
	c.attempts = 0
	c.lastErr = nil
	c.setStateLocked(StateConnecting)
	c.dialLocked()
}

// Disconnect is the caller-initiated shutdown. It suppresses any pending
// reconnect timer and settles in the disconnected state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stopTimersLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.attempts = 0
	c.lastErr = nil
	c.setStateLocked(StateDisconnected)
}

// Send emits a named event. It returns ErrNotConnected when the connection
// is not established; nothing is silently dropped.
func (c *Client) Send(event string, payload map[string]any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	logger.Tracef("transport: send %s", event)
	conn.Emit(event, payload)
	return nil
}

// WaitForConnected polls until the client reports connected or the timeout
// elapses.
func (c *Client) WaitForConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State().State == StateConnected {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return c.State().State == StateConnected
}

// IsTriggerEvent reports whether an inbound event name is trigger-shaped.
func IsTriggerEvent(name string) bool {
	return strings.HasPrefix(name, "result:") || strings.HasPrefix(name, "error:trigger")
}

func (c *Client) dialLocked() {
	gen := c.gen + 1
	c.gen = gen

	conn, err := c.dial(c.opts)
	if err != nil {
		c.connectionFailedLocked(err)
		return
	}
	c.conn = conn

	conn.OnConnect(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen {
			return
		}
		c.stopTimersLocked()
		c.attempts = 0
		c.lastErr = nil
		c.setStateLocked(StateConnected)
		logger.Debugf("transport: connected to %s", c.opts.ServerURL)
	})
	conn.OnConnectError(func(err error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.state != StateConnecting {
			return
		}
		c.closeConnLocked()
		c.connectionFailedLocked(err)
	})
	conn.OnDisconnect(func(reason string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.state != StateConnected {
			return
		}
		logger.Warnf("transport: connection dropped: %s", reason)
		c.closeConnLocked()
		c.connectionFailedLocked(&DropError{Reason: reason})
	})

	// Inbound frames are routed by shape, not by an enumerated name list, so
	// new trigger kinds on the server need no client registration.
	conn.OnAnyEvent(func(event string, payload map[string]any) {
		switch {
		case IsTriggerEvent(event):
			logger.Tracef("transport: trigger event %s", event)
			if c.triggers != nil {
				c.triggers.HandleTriggerEvent(event, payload)
			}
		case event == "message":
			logger.Tracef("transport: broadcast message")
			if c.broadcasts != nil {
				c.broadcasts.HandleBroadcast(payload)
			}
		default:
			logger.Tracef("transport: ignoring event %s", event)
		}
	})

	// Bound the attempt: a handshake that neither connects nor errors within
	// the timeout counts as a failure.
	c.connectTimer = time.AfterFunc(c.opts.ConnectTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.state != StateConnecting {
			return
		}
		c.closeConnLocked()
		c.connectionFailedLocked(&TimeoutError{After: c.opts.ConnectTimeout})
	})

	// The socket may have completed its handshake before handlers were
	// registered.
	if conn.Connected() {
		c.stopTimersLocked()
		c.attempts = 0
		c.lastErr = nil
		c.setStateLocked(StateConnected)
	}
}

// connectionFailedLocked records a failed attempt and either schedules the
// next one or settles in the disconnected state once attempts are exhausted.
func (c *Client) connectionFailedLocked(err error) {
	c.attempts++
	c.lastErr = err

	if c.attempts >= c.opts.MaxReconnectAttempts {
		logger.Errorf("transport: giving up after %d attempts: %v", c.attempts, err)
		c.lastErr = ErrReconnectExhausted
		c.setStateLocked(StateDisconnected)
		return
	}

	delay := c.backoffLocked()
	logger.Debugf("transport: attempt %d failed (%v), retrying in %s", c.attempts, err, delay)
	c.setStateLocked(StateReconnecting)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != StateReconnecting {
			return
		}
		c.setStateLocked(StateConnecting)
		c.dialLocked()
	})
}

// backoffLocked doubles the base delay per consecutive failure, capped at the
// configured ceiling.
func (c *Client) backoffLocked() time.Duration {
	delay := c.opts.ReconnectBaseDelay
	for i := 1; i < c.attempts; i++ {
		delay *= 2
		if delay >= c.opts.ReconnectMaxDelay {
			return c.opts.ReconnectMaxDelay
		}
	}
	if delay > c.opts.ReconnectMaxDelay {
		return c.opts.ReconnectMaxDelay
	}
	return delay
}

func (c *Client) closeConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) stopTimersLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
}

func (c *Client) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.state = next
	snap := ConnectionState{State: c.state, Attempts: c.attempts, LastErr: c.lastErr}
	for _, fn := range c.observers {
		go fn(snap)
	}
}
