// Package push implements the client side of the platform's real-time
// notification channel: a single authenticated websocket per session with
// automatic reconnection, an application-level keep-alive, and a typed
// subscriber registry that hides transport churn from consumers.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reliefops/notify-agent/internal/domain/model"
)

var (
	// ErrNotConnected is returned by Send when no live transport exists.
	// Callers must not assume delivery.
	ErrNotConnected = errors.New("push: not connected")

	// ErrConnectTimeout is returned when neither open nor error fires within
	// the connection-open deadline.
	ErrConnectTimeout = errors.New("push: connect timeout")
)

// Announcer receives connection-state transitions for app-wide consumers
// (status indicator, dashboard) outside the subscriber registry.
type Announcer interface {
	AnnounceState(state model.ConnState)
}

// Conn owns at most one live transport per session and serializes all state
// transitions. A Connect call while the state is not disconnected is an
// idempotent no-op success.
type Conn struct {
	opts     options
	logger   *slog.Logger
	registry *Registry

	mu             sync.Mutex
	state          model.ConnState
	tr             Transport
	token          string
	attempts       int
	gen            uint64 // bumped on Disconnect to invalidate in-flight timers
	reconnectTimer *time.Timer
	stopKeepalive  chan struct{}

	lastPongAt atomic.Int64 // unix nanos
}

func NewConn(logger *slog.Logger, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Conn{
		opts:     o,
		logger:   logger,
		registry: NewRegistry(),
		state:    model.StateDisconnected,
	}
}

// State returns the tri-state connection indicator.
func (c *Conn) State() model.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers a handler for an inbound event type.
func (c *Conn) On(eventType string, fn Handler) Subscription {
	return c.registry.On(eventType, fn)
}

// Off removes a previously registered handler; unknown subscriptions are a
// silent no-op.
func (c *Conn) Off(sub Subscription) {
	c.registry.Off(sub)
}

// Connect opens the push channel. The single outcome (open, error, timeout)
// is decided exactly once by the dial; later transport failures go through
// the reconnection path instead.
func (c *Conn) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state != model.StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = model.StateConnecting
	c.token = token
	gen := c.gen
	c.mu.Unlock()
	c.announce(model.StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()

	tr, err := c.opts.dialer(dialCtx, c.opts.endpoint(token))
	if err != nil {
		c.mu.Lock()
		if c.gen == gen && c.state == model.StateConnecting {
			c.state = model.StateDisconnected
			// A failed dial counts as an abnormal closure: the retry chain
			// must survive attempts that never reach open.
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		c.announce(model.StateDisconnected)

		if errors.Is(err, context.DeadlineExceeded) {
			return ErrConnectTimeout
		}
		return fmt.Errorf("push: dial: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.state != model.StateConnecting {
		// Disconnect raced the dial; the fresh transport loses.
		c.mu.Unlock()
		_ = tr.Close(websocket.CloseNormalClosure, "superseded")
		return nil
	}
	c.tr = tr
	c.state = model.StateConnected
	c.attempts = 0
	c.lastPongAt.Store(time.Now().UnixNano())
	stop := make(chan struct{})
	c.stopKeepalive = stop
	c.mu.Unlock()

	go c.readLoop(tr)
	go c.keepalive(tr, stop)

	c.logger.Info("push: connected")
	c.announce(model.StateConnected)
	return nil
}

// Disconnect tears the channel down with a normal close code, which
// suppresses the automatic-reconnect path. The keep-alive loop, any pending
// reconnect timer, and the subscriber registry are cleared before returning.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.stopKeepalive != nil {
		close(c.stopKeepalive)
		c.stopKeepalive = nil
	}
	tr := c.tr
	c.tr = nil
	c.state = model.StateDisconnected
	c.attempts = 0
	c.mu.Unlock()

	if tr != nil {
		_ = tr.Close(websocket.CloseNormalClosure, "client disconnect")
	}
	c.registry.Clear()
	c.logger.Info("push: disconnected")
	c.announce(model.StateDisconnected)
}

// Reconnect is the single manual re-entry point for UI-triggered retries. It
// resets the attempt budget and delegates to Connect with the stored token.
// A no-op unless currently disconnected.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != model.StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.attempts = 0
	token := c.token
	c.mu.Unlock()

	return c.Connect(ctx, token)
}

// Send serializes {type, data, timestamp} and transmits it. When no live
// transport exists the call is dropped with a warning.
func (c *Conn) Send(eventType string, data any) error {
	c.mu.Lock()
	tr := c.tr
	connected := c.state == model.StateConnected
	c.mu.Unlock()

	if !connected || tr == nil {
		c.logger.Warn("push: send dropped, not connected", "type", eventType)
		return ErrNotConnected
	}

	payload, err := json.Marshal(model.OutboundFrame{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("push: marshal frame: %w", err)
	}
	if err := tr.WriteMessage(payload); err != nil {
		return fmt.Errorf("push: write: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(tr Transport) {
	for {
		data, err := tr.ReadMessage()
		if err != nil {
			c.handleClosure(tr, closeCode(err))
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one inbound frame and fans it out. Malformed frames are
// logged and dropped without touching the connection; pong frames only feed
// the keep-alive and never reach subscribers.
func (c *Conn) dispatch(data []byte) {
	var frame model.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn("push: malformed frame dropped", "err", err)
		return
	}
	if frame.Type == "" {
		c.logger.Warn("push: frame without type dropped")
		return
	}

	if frame.Type == model.EventPong {
		c.lastPongAt.Store(time.Now().UnixNano())
		return
	}

	c.registry.Dispatch(frame)
}

// handleClosure runs once per dead transport. Stale read loops (a transport
// already replaced or torn down) bail out on the identity check.
func (c *Conn) handleClosure(tr Transport, code int) {
	c.mu.Lock()
	if c.tr != tr {
		c.mu.Unlock()
		return
	}
	c.tr = nil
	if c.stopKeepalive != nil {
		close(c.stopKeepalive)
		c.stopKeepalive = nil
	}
	c.state = model.StateDisconnected

	if code == websocket.CloseNormalClosure {
		c.mu.Unlock()
		c.logger.Info("push: closed normally")
		c.announce(model.StateDisconnected)
		return
	}

	c.logger.Warn("push: abnormal closure", "close_code", code)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
	c.announce(model.StateDisconnected)
}

// scheduleReconnectLocked arms the next automatic retry with linear backoff.
// Beyond the attempt cap it gives up silently; the consumer observes the
// disconnected state and may call Reconnect manually.
func (c *Conn) scheduleReconnectLocked() {
	if c.attempts >= c.opts.maxReconnects {
		c.logger.Warn("push: reconnect budget exhausted, giving up", "attempts", c.opts.maxReconnects)
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := c.opts.reconnectInterval * time.Duration(attempt)
	gen := c.gen
	token := c.token
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if !c.genValid(gen) {
			return
		}
		if err := c.Connect(context.Background(), token); err != nil {
			// Swallowed: the next scheduled attempt, if any, tries again.
			c.logger.Warn("push: reconnect attempt failed", "attempt", attempt, "err", err)
		}
	})

	c.logger.Info("push: reconnect scheduled",
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
	)
}

func (c *Conn) genValid(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Conn) announce(state model.ConnState) {
	if c.opts.announcer != nil {
		c.opts.announcer.AnnounceState(state)
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
