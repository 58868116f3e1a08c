// Package stream maintains the push connection to the market service:
// connect, heartbeat, reconnect after unexpected closure, teardown.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/protocol"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
)

var (
	// ErrMalformedEndpoint is returned by Open when the URL cannot be used to
	// build a transport. No retry is scheduled for it.
	ErrMalformedEndpoint = errors.New("malformed stream endpoint")
	// ErrRetriesExhausted is recorded when the reconnect policy gives up.
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
	// ErrClosed is returned by a dial that lost the race with Close.
	ErrClosed = errors.New("stream client closed")
	// ErrShutdown is returned by Open after Shutdown.
	ErrShutdown = errors.New("stream client shut down")
)

// FrameHandler receives raw inbound frames, one at a time, in arrival order.
type FrameHandler interface {
	Dispatch(raw []byte)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(raw []byte)

func (f FrameHandlerFunc) Dispatch(raw []byte) { f(raw) }

// Client implements drepo.MarketStream over a gorilla WebSocket.
//
// All transport state lives under mu. Every connect attempt and every Close
// bumps gen; goroutines tied to an older generation (dial, read loop) find
// a mismatch and exit without touching state.
type Client struct {
	cfg     Config
	handler FrameHandler
	dialer  Dialer
	log     *logger.Logger
	metrics drepo.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	frames chan []byte

	mu         sync.Mutex
	state      models.ConnState
	conn       Conn
	gen        uint64
	closed     bool
	shutdown   bool
	timer      *time.Timer
	hbStop     chan struct{}
	bo         backoff.BackOff
	attempt    int
	lastErr    string
	lastOpened *time.Time
	nextRetry  *time.Time
	endpoint   string
	seq        uint64

	workerOnce sync.Once
	workerDone chan struct{}

	lmu       sync.Mutex
	listeners map[int]func(models.ConnStatus)
	nextID    int
	emitted   uint64
}

// statusEvent orders emissions; seq is assigned under mu.
type statusEvent struct {
	status models.ConnStatus
	seq    uint64
}

var _ drepo.MarketStream = (*Client)(nil)

// New creates a disconnected client. Nothing is dialed until Open.
func New(cfg Config, handler FrameHandler, opts ...Option) *Client {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		handler:    handler,
		log:        logger.Nop(),
		metrics:    metrics.Nop{},
		ctx:        ctx,
		cancel:     cancel,
		frames:     make(chan []byte, cfg.DispatchBuffer),
		state:      models.ConnDisconnected,
		bo:         cfg.Reconnect.NewBackOff(),
		workerDone: make(chan struct{}),
		listeners:  make(map[int]func(models.ConnStatus)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewWebsocketDialer(cfg.HandshakeTimeout)
	}
	return c
}

// Open establishes the transport unless one is already open or being
// established. It clears a previous explicit Close and supersedes any
// pending reconnect. A malformed endpoint is reported without scheduling a
// retry; a failed dial schedules one.
func (c *Client) Open(ctx context.Context) error {
	endpoint, err := parseEndpoint(c.cfg.URL)
	if err != nil {
		c.log.Error("stream endpoint rejected", logger.String("url", c.cfg.URL), logger.Error(err))
		c.metrics.RecordError("stream_endpoint")
		c.mu.Lock()
		c.lastErr = err.Error()
		ev := c.eventLocked()
		c.mu.Unlock()
		c.emit(ev)
		return err
	}

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ErrShutdown
	}
	c.closed = false
	if c.state == models.ConnConnecting || c.state == models.ConnOpen {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.bo.Reset()
	c.attempt = 0
	c.endpoint = endpoint
	gen := c.beginConnectLocked()
	ev := c.eventLocked()
	c.mu.Unlock()

	c.workerOnce.Do(func() { go c.dispatchLoop() })
	c.emit(ev)

	return c.connect(ctx, gen, endpoint)
}

// Close tears down the transport, cancels the pending reconnect and the
// heartbeat, and suppresses automatic reconnect until the next Open.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.stopHeartbeatLocked()
	c.gen++
	closeGen := c.gen

	conn := c.conn
	c.conn = nil
	var closing statusEvent
	hadConn := conn != nil || c.state != models.ConnDisconnected
	if hadConn {
		c.state = models.ConnClosing
		closing = c.eventLocked()
	}
	c.mu.Unlock()

	var err error
	if hadConn {
		c.emit(closing)
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}

	// an Open that ran while the close frame was written owns the state now
	c.mu.Lock()
	if c.gen != closeGen {
		c.mu.Unlock()
		return err
	}
	c.state = models.ConnDisconnected
	ev := c.eventLocked()
	c.mu.Unlock()
	c.emit(ev)

	if hadConn {
		c.log.Info("stream closed", logger.String("url", c.cfg.URL))
	}
	return err
}

// Shutdown closes the client for good and waits for the dispatch worker to
// finish the frame it is processing.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.Close()

	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()

	started := false
	c.workerOnce.Do(func() { close(c.workerDone) })
	select {
	case <-c.workerDone:
	default:
		started = true
	}
	c.cancel()

	if started {
		select {
		case <-c.workerDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// State returns the current connection state.
func (c *Client) State() models.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the observable connection state.
func (c *Client) Status() models.ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers fn for state changes. Listeners run on the goroutine
// that caused the change, outside the client lock, one at a time; they must
// not call Subscribe or a cancel func.
func (c *Client) Subscribe(fn func(models.ConnStatus)) (cancel func()) {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Client) connect(ctx context.Context, gen uint64, endpoint string) error {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	start := time.Now()
	conn, err := c.dialer.DialContext(dctx, endpoint, nil)
	cancel()
	c.metrics.RecordLatency("stream_dial", time.Since(start).Seconds())

	c.mu.Lock()
	if gen != c.gen || c.closed || c.shutdown {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}

	if err != nil {
		c.state = models.ConnDisconnected
		c.lastErr = err.Error()
		c.attempt++
		c.scheduleReconnectLocked()
		ev := c.eventLocked()
		c.mu.Unlock()

		c.log.Warn("stream dial failed",
			logger.String("url", endpoint),
			logger.Int("attempt", ev.status.Attempt),
			logger.Error(err))
		c.metrics.RecordError("stream_dial")
		c.emit(ev)
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	now := time.Now()
	c.conn = conn
	c.state = models.ConnOpen
	c.lastOpened = &now
	c.lastErr = ""
	c.attempt = 0
	c.nextRetry = nil
	c.bo.Reset()
	stop := make(chan struct{})
	c.hbStop = stop
	ev := c.eventLocked()
	c.mu.Unlock()

	go c.readLoop(gen, conn)
	go c.heartbeat(conn, stop)

	c.log.Info("stream connected", logger.String("url", endpoint))
	c.emit(ev)
	return nil
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, conn, err)
			return
		}
		if !c.current(gen) {
			return
		}
		select {
		case c.frames <- data:
		case <-c.ctx.Done():
			return
		}
	}
}

// handleDrop moves an open connection to Disconnected after an unexpected
// closure and schedules exactly one reconnect.
func (c *Client) handleDrop(gen uint64, conn Conn, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.stopHeartbeatLocked()
	c.conn = nil
	c.state = models.ConnDisconnected
	c.lastErr = cause.Error()
	c.scheduleReconnectLocked()
	ev := c.eventLocked()
	c.mu.Unlock()

	_ = conn.Close()
	c.log.Warn("stream connection lost", logger.String("url", c.cfg.URL), logger.Error(cause))
	c.metrics.RecordError("stream_closed")
	c.emit(ev)
}

func (c *Client) heartbeat(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, protocol.PingFrame); err != nil {
				// closure is detected by the read loop
				c.log.Debug("heartbeat write failed", logger.Error(err))
				c.metrics.RecordError("stream_heartbeat")
			}
		}
	}
}

func (c *Client) dispatchLoop() {
	defer close(c.workerDone)
	for {
		select {
		case data := <-c.frames:
			c.dispatch(data)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("frame handler panicked", logger.Any("panic", r))
			c.metrics.RecordError("dispatch_panic")
		}
	}()
	start := time.Now()
	c.handler.Dispatch(data)
	c.metrics.RecordLatency("dispatch", time.Since(start).Seconds())
}

// scheduleReconnectLocked arms the single reconnect timer unless one is
// already pending, the client was closed, or the policy is exhausted.
func (c *Client) scheduleReconnectLocked() {
	if c.closed || c.shutdown || c.timer != nil {
		return
	}
	delay := c.bo.NextBackOff()
	if delay == backoff.Stop {
		c.lastErr = fmt.Sprintf("%v: %s", ErrRetriesExhausted, c.lastErr)
		c.nextRetry = nil
		c.log.Error("stream reconnect abandoned", logger.String("url", c.cfg.URL), logger.Int("attempt", c.attempt))
		return
	}

	at := time.Now().Add(delay)
	c.nextRetry = &at
	var t *time.Timer
	t = time.AfterFunc(delay, func() { c.fireReconnect(t) })
	c.timer = t
}

func (c *Client) fireReconnect(t *time.Timer) {
	c.mu.Lock()
	if c.timer != t {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.nextRetry = nil
	if c.closed || c.shutdown || c.state != models.ConnDisconnected {
		c.mu.Unlock()
		return
	}
	gen := c.beginConnectLocked()
	endpoint := c.endpoint
	ev := c.eventLocked()
	c.mu.Unlock()

	c.metrics.RecordReconnect()
	c.log.Info("stream reconnecting", logger.String("url", endpoint), logger.Int("attempt", ev.status.Attempt))
	c.emit(ev)

	_ = c.connect(c.ctx, gen, endpoint)
}

func (c *Client) beginConnectLocked() uint64 {
	c.gen++
	c.state = models.ConnConnecting
	return c.gen
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.nextRetry = nil
}

func (c *Client) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Client) eventLocked() statusEvent {
	c.seq++
	return statusEvent{status: c.statusLocked(), seq: c.seq}
}

func (c *Client) statusLocked() models.ConnStatus {
	st := models.ConnStatus{
		State:       c.state,
		URL:         c.cfg.URL,
		LastError:   c.lastErr,
		Attempt:     c.attempt,
		ManualClose: c.closed,
		ChangedAt:   time.Now(),
	}
	if c.lastOpened != nil {
		t := *c.lastOpened
		st.LastOpenedAt = &t
	}
	if c.nextRetry != nil {
		t := *c.nextRetry
		st.NextRetryAt = &t
	}
	return st
}

// emit delivers ev to listeners unless a newer status was already
// delivered, so listeners never end on a stale state.
func (c *Client) emit(ev statusEvent) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	if ev.seq <= c.emitted {
		return
	}
	c.emitted = ev.seq
	c.metrics.RecordConnState(ev.status.State.String())
	for _, fn := range c.listeners {
		fn(ev.status)
	}
}

func parseEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("%w: scheme %q is not ws or wss", ErrMalformedEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrMalformedEndpoint)
	}
	return u.String(), nil
}
