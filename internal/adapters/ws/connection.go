// Package ws is the outbound WebSocket connection used by chat sessions.
package ws

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// FrameHandler receives inbound text frames, one at a time and in arrival
// order, on the connection's read goroutine.
type FrameHandler func(core.Frame)

type Options struct {
	ConnectTimeout time.Duration
	CloseTimeout   time.Duration
	WriteWait      time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	ReadLimit      int64
	SendQueue      int
	// Greeting is sent as the first frame once open. Empty sends nothing.
	Greeting string
}

func OptionsFromConfig(c config.ConnConfig) Options {
	return Options{
		ConnectTimeout: c.ConnectTimeout,
		CloseTimeout:   c.CloseTimeout,
		WriteWait:      c.WriteWait,
		PingPeriod:     c.PingPeriod,
		PongWait:       c.PongWait,
		ReadLimit:      c.ReadLimit,
		SendQueue:      c.SendQueue,
		Greeting:       c.Greeting,
	}
}

type Connection struct {
	endpoint domain.Endpoint
	opts     Options

	mu      sync.Mutex
	state   State
	used    bool
	aborted bool
	handler FrameHandler
	hooks   []func()
	dialing []func()
	conn    *websocket.Conn
	send    chan core.Frame
	cancel  context.CancelFunc
	err     error

	pumps conc.WaitGroup
	done  chan struct{}
}

func NewConnection(endpoint domain.Endpoint, opts Options) *Connection {
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	return &Connection{
		endpoint: endpoint,
		opts:     opts,
		state:    StateClosed,
		done:     make(chan struct{}),
	}
}

func (c *Connection) Endpoint() domain.Endpoint { return c.endpoint }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnFrame sets the inbound handler. It must be called before Connect.
func (c *Connection) OnFrame(h FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// OnClose registers a hook run once when the connection leaves Open, before
// it reaches Closed. Hooks run in registration order.
func (c *Connection) OnClose(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// OnDial registers a hook run once Connect has claimed the connection and is
// about to dial. It never runs for a Connect that is refused up front.
func (c *Connection) OnDial(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialing = append(c.dialing, h)
}

// Done is closed once the connection has terminated, including after a
// failed Connect.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended. It is nil for a clean close and
// meaningful only after Done is closed.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connect performs the handshake and returns once it has succeeded or
// failed. Any failure leaves the connection Closed and wraps
// domain.ErrConnectFailed.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return domain.ErrAlreadyConnected
	}
	if c.used {
		c.mu.Unlock()
		return domain.ErrConnectionUsed
	}
	c.used = true
	c.state = StateConnecting
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	c.cancel = cancel
	dialing := slices.Clone(c.dialing)
	c.mu.Unlock()
	defer cancel()

	for _, h := range dialing {
		h()
	}

	log.Info().Str("module", "ws").Str("endpoint", c.endpoint.String()).Msg("connecting")
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, c.endpoint.URL(), nil)

	c.mu.Lock()
	if err == nil && c.aborted {
		_ = conn.Close()
		err = errors.New("aborted by disconnect")
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrConnectFailed, c.endpoint, err)
		c.state = StateClosed
		c.cancel = nil
		c.err = err
		c.mu.Unlock()
		close(c.done)
		log.Error().Err(err).Str("module", "ws").Msg("connect failed")
		return err
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	c.conn = conn
	c.cancel = stop
	c.send = make(chan core.Frame, c.opts.SendQueue)
	c.state = StateOpen
	if c.opts.Greeting != "" {
		c.send <- core.Frame(c.opts.Greeting)
	}
	c.mu.Unlock()

	c.configure(conn)
	c.pumps.Go(func() { c.readPump(runCtx) })
	c.pumps.Go(func() { c.writePump(runCtx) })
	go c.finish()

	log.Info().Str("module", "ws").Str("endpoint", c.endpoint.String()).Msg("connected")
	return nil
}

// Send queues f for the write goroutine without blocking.
func (c *Connection) Send(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return domain.ErrNotConnected
	}
	select {
	case c.send <- f:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

// Disconnect closes the connection and waits up to CloseTimeout for the
// peer to acknowledge. It is a no-op unless the connection is Connecting or
// Open, and may be called from any goroutine. A failing endpoint check still
// tears the connection down but reports domain.ErrBadDisconnect.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	switch c.state {
	case StateClosed, StateClosing:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.aborted = true
		cancel := c.cancel
		c.mu.Unlock()
		cancel()
		return nil
	}
	// Open: claim Closing in the same critical section as the endpoint
	// check, so a concurrent peer close cannot slip in between
	valid := c.endpoint.Valid()
	conn := c.conn
	hooks := c.closingLocked(nil)
	c.mu.Unlock()

	runHooks(hooks)
	c.stopPumps()
	deadline := time.Now().Add(c.opts.WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Debug().Err(err).Str("module", "ws").Msg("write close frame")
	}

	timer := time.NewTimer(c.opts.CloseTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		// a handler calling Disconnect holds the read goroutine, so the
		// pumps finish after we return
		log.Warn().Str("module", "ws").Str("endpoint", c.endpoint.String()).Msg("close handshake timed out")
		_ = conn.Close()
	}

	if !valid {
		return fmt.Errorf("%w: %q", domain.ErrBadDisconnect, c.endpoint.Raw())
	}
	return nil
}

// beginClose moves Open to Closing and runs the close hooks. Only the first
// caller wins; the rest get false.
func (c *Connection) beginClose(cause error) bool {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return false
	}
	hooks := c.closingLocked(cause)
	c.mu.Unlock()

	runHooks(hooks)
	return true
}

// closingLocked moves Open to Closing and returns the hooks to run once
// c.mu is released. c.mu must be held and the state must be Open.
func (c *Connection) closingLocked(cause error) []func() {
	c.state = StateClosing
	c.err = cause
	return slices.Clone(c.hooks)
}

func runHooks(hooks []func()) {
	for _, h := range hooks {
		h()
	}
}

func (c *Connection) stopPumps() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// fail tears the connection down after a transport error or a peer close.
func (c *Connection) fail(cause error) {
	if c.beginClose(cause) {
		log.Info().Err(cause).Str("module", "ws").Str("endpoint", c.endpoint.String()).Msg("connection lost")
	}
	c.stopPumps()
	_ = c.conn.Close()
}

func (c *Connection) finish() {
	c.pumps.Wait()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.state = StateClosed
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()
	close(c.done)
	log.Info().Str("module", "ws").Str("endpoint", c.endpoint.String()).Msg("closed")
}
