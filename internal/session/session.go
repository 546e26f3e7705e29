package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"threadsync/internal/faults"
	"threadsync/internal/logging"
	"threadsync/internal/protocol"
	"threadsync/internal/threads"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeQueueDepth         = 256
	readyPollInterval       = 20 * time.Millisecond
	bufferedPollInterval    = 25 * time.Millisecond
)

// Options configures a Client. URL and Logger are required; zero
// timeouts fall back to conservative defaults.
type Options struct {
	URL              string
	Credential       string
	HandshakeTimeout time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	// BackoffMaxAttempts bounds the exponent: past it the delay
	// plateaus at the cap instead of growing, and reconnection is
	// never abandoned.
	BackoffMaxAttempts int
	BackoffJitter      float64
	// Stamps supplies the client's last-known per-thread version
	// stamps for the hello handshake. Optional.
	Stamps   func() map[string]threads.Stamp
	OnStatus func(StatusEvent)
	Logger   *slog.Logger
}

// Client is a persistent socket session. One socket is bound to one
// thread id at a time; Bind tears down the previous binding before the
// reconnect loop dials again for the new one.
type Client struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	threadID  string
	state     State
	running   bool
	closing   bool
	stop      chan struct{}
	link      *link
	listeners map[int]func(protocol.Envelope)
	nextSub   int

	buffered atomic.Int64
	rng      *rand.Rand
}

// link is the per-connection state. A new link is created for every
// dial; its done channel closing is the single teardown signal for the
// read loop, write loop, and pending reply waits.
type link struct {
	conn    *websocket.Conn
	writeCh chan []byte
	done    chan struct{}
	ready   chan struct{}

	readyOnce sync.Once
	downOnce  sync.Once

	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newLink(conn *websocket.Conn) *link {
	return &link{
		conn:    conn,
		writeCh: make(chan []byte, writeQueueDepth),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

func (l *link) markReady() {
	l.readyOnce.Do(func() { close(l.ready) })
}

func (l *link) shutdown() {
	l.downOnce.Do(func() {
		l.conn.Close()
		close(l.done)
	})
}

func (l *link) recordClose(err error) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return
	}
	l.mu.Lock()
	l.closeCode = ce.Code
	l.closeReason = ce.Text
	l.mu.Unlock()
}

func (l *link) closeInfo() (int, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCode, l.closeReason
}

// New builds a Client. Connect must be called before the session does
// anything.
func New(opts Options) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.BackoffMaxAttempts <= 0 {
		opts.BackoffMaxAttempts = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:      opts,
		log:       logger.With(logging.String("component", "session")),
		state:     StateDisconnected,
		stop:      make(chan struct{}),
		listeners: make(map[int]func(protocol.Envelope)),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Connect starts the reconnect loop. It is idempotent: a second call
// while the loop is running is a no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.closing = false
	c.stop = make(chan struct{})
	c.mu.Unlock()
	go c.run()
}

// Disconnect closes the session on user request, suppressing automatic
// reconnection and failing any pending reply waits.
func (c *Client) Disconnect(code int, reason string) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	close(c.stop)
	lk := c.link
	c.mu.Unlock()
	if lk != nil {
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(time.Second)
		_ = lk.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		lk.shutdown()
	}
}

// Bind points the session at a thread. Changing the binding tears down
// the current socket; the reconnect loop will dial again and handshake
// for the new thread.
func (c *Client) Bind(threadID string) {
	c.mu.Lock()
	if c.threadID == threadID {
		c.mu.Unlock()
		return
	}
	c.threadID = threadID
	lk := c.link
	c.mu.Unlock()
	if lk != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "rebinding")
		deadline := time.Now().Add(time.Second)
		_ = lk.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		lk.shutdown()
	}
}

// ThreadID returns the currently bound thread id.
func (c *Client) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send marshals and queues one outbound envelope. It returns false if
// the socket is not open; callers must surface that rather than assume
// delivery.
func (c *Client) Send(msgType string, payload any, requestID string) bool {
	c.mu.Lock()
	lk := c.link
	threadID := c.threadID
	open := lk != nil && (c.state == StateSocketOpen || c.state == StateReady)
	c.mu.Unlock()
	if !open {
		return false
	}
	env, err := protocol.NewEnvelope(msgType, threadID, payload, requestID)
	if err != nil {
		c.log.Error("failed to build envelope", logging.Args(logging.String("type", msgType), logging.Error(err))...)
		return false
	}
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Error("failed to marshal envelope", logging.Args(logging.String("type", msgType), logging.Error(err))...)
		return false
	}
	c.buffered.Add(int64(len(data)))
	select {
	case lk.writeCh <- data:
		return true
	case <-lk.done:
		c.buffered.Add(-int64(len(data)))
		return false
	}
}

// OnMessage subscribes to every inbound envelope. The returned
// function removes the subscription.
func (c *Client) OnMessage(fn func(protocol.Envelope)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// WaitForReady blocks until the socket is open and the handshake has
// been acknowledged, or the timeout elapses.
func (c *Client) WaitForReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		state, closing := c.state, c.closing
		c.mu.Unlock()
		if state == StateReady {
			return true
		}
		if closing || time.Now().After(deadline) {
			return false
		}
		time.Sleep(readyPollInterval)
	}
}

// WaitForReply blocks until an inbound envelope satisfies match, the
// timeout elapses, the context is cancelled, or the session is closed
// by the user.
func (c *Client) WaitForReply(ctx context.Context, match func(protocol.Envelope) bool, timeout time.Duration) (protocol.Envelope, error) {
	found := make(chan protocol.Envelope, 1)
	unsubscribe := c.OnMessage(func(env protocol.Envelope) {
		if match(env) {
			select {
			case found <- env:
			default:
			}
		}
	})
	defer unsubscribe()

	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-found:
		return env, nil
	case <-timer.C:
		return protocol.Envelope{}, faults.Wrap(faults.ErrProtocol, "session", "wait-reply", "timed out waiting for reply", nil)
	case <-ctx.Done():
		return protocol.Envelope{}, faults.Wrap(faults.ErrProtocol, "session", "wait-reply", "cancelled", ctx.Err())
	case <-stop:
		return protocol.Envelope{}, faults.Wrap(faults.ErrTransport, "session", "wait-reply", "session closed", nil)
	}
}

// BufferedAmount returns the bytes queued but not yet written to the
// socket.
func (c *Client) BufferedAmount() int64 {
	return c.buffered.Load()
}

// WaitForBufferedBelow blocks until the outbound buffer drops below
// maxBytes. It is the backpressure gate for bulk chunk sends.
func (c *Client) WaitForBufferedBelow(maxBytes int64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if c.buffered.Load() < maxBytes {
			return nil
		}
		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if closing {
			return faults.Wrap(faults.ErrTransport, "session", "backpressure", "session closed", nil)
		}
		if time.Now().After(deadline) {
			return faults.Wrap(faults.ErrTransport, "session", "backpressure", "buffered amount did not drain", nil)
		}
		time.Sleep(bufferedPollInterval)
	}
}

func (c *Client) run() {
	attempt := 0
	for {
		if c.userClosed() {
			break
		}
		c.setState(StateConnecting)
		c.emit(StatusEvent{State: StateConnecting, Attempt: attempt})
		conn, _, err := websocket.DefaultDialer.Dial(c.opts.URL, nil)
		if err != nil {
			wait := c.retryDelay(attempt)
			c.setState(StateError)
			c.emit(StatusEvent{State: StateError, Attempt: attempt, Wait: wait, Err: err})
			c.log.Warn("dial failed",
				logging.Args(logging.Int("attempt", attempt), logging.Duration("retry_in", wait), logging.Error(err))...)
			attempt++
			if !c.pause(wait) {
				break
			}
			continue
		}

		lk := newLink(conn)
		c.mu.Lock()
		c.link = lk
		c.state = StateSocketOpen
		c.mu.Unlock()
		c.emit(StatusEvent{State: StateSocketOpen, Attempt: attempt})

		go c.writeLoop(lk)
		go c.readLoop(lk)

		if err := c.handshake(lk); err != nil {
			lk.shutdown()
			wait := c.retryDelay(attempt)
			c.setState(StateError)
			c.emit(StatusEvent{State: StateError, Attempt: attempt, Wait: wait, Err: err})
			c.log.Warn("handshake failed",
				logging.Args(logging.Int("attempt", attempt), logging.Duration("retry_in", wait), logging.Error(err))...)
			attempt++
			c.clearLink(lk)
			if !c.pause(wait) {
				break
			}
			continue
		}

		attempt = 0
		c.emit(StatusEvent{State: StateReady})
		c.log.Info("session ready", logging.Args(logging.String("thread_id", c.ThreadID()))...)

		<-lk.done
		c.clearLink(lk)
		code, reason := lk.closeInfo()
		c.setState(StateDisconnected)
		c.emit(StatusEvent{State: StateDisconnected, CloseCode: code, CloseReason: reason})
		if c.userClosed() {
			break
		}
		wait := c.retryDelay(attempt)
		c.log.Info("connection lost",
			logging.Args(logging.Int("close_code", code), logging.String("close_reason", reason), logging.Duration("retry_in", wait))...)
		attempt++
		if !c.pause(wait) {
			break
		}
	}
	c.mu.Lock()
	c.running = false
	c.state = StateDisconnected
	c.mu.Unlock()
}

// handshake sends HELLO and waits for the acknowledgement. On timeout
// the caller force-closes the connection so the reconnect loop takes
// over.
func (c *Client) handshake(lk *link) error {
	payload := protocol.HelloPayload{Credential: c.opts.Credential}
	if c.opts.Stamps != nil {
		payload.Stamps = c.opts.Stamps()
	}
	if !c.Send(protocol.TypeHello, payload, "") {
		return faults.Wrap(faults.ErrTransport, "session", "handshake", "send failed", nil)
	}
	timer := time.NewTimer(c.opts.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-lk.ready:
		return nil
	case <-lk.done:
		return faults.Wrap(faults.ErrTransport, "session", "handshake", "connection closed before acknowledgement", nil)
	case <-timer.C:
		return faults.Wrap(faults.ErrProtocol, "session", "handshake", "acknowledgement timed out", nil)
	}
}

func (c *Client) readLoop(lk *link) {
	defer lk.shutdown()
	for {
		_, data, err := lk.conn.ReadMessage()
		if err != nil {
			lk.recordClose(err)
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("dropping malformed frame", logging.Args(logging.Error(err))...)
			continue
		}
		if env.Type == protocol.TypeHelloOK {
			lk.markReady()
			c.mu.Lock()
			if c.link == lk {
				c.state = StateReady
			}
			c.mu.Unlock()
		}
		c.dispatch(env)
	}
}

func (c *Client) writeLoop(lk *link) {
	for {
		select {
		case frame := <-lk.writeCh:
			err := lk.conn.WriteMessage(websocket.TextMessage, frame)
			c.buffered.Add(-int64(len(frame)))
			if err != nil {
				lk.recordClose(err)
				lk.shutdown()
				c.drain(lk)
				return
			}
		case <-lk.done:
			c.drain(lk)
			return
		}
	}
}

// drain empties the write queue after teardown so the buffered counter
// never leaks bytes for frames that were never written.
func (c *Client) drain(lk *link) {
	for {
		select {
		case frame := <-lk.writeCh:
			c.buffered.Add(-int64(len(frame)))
		default:
			return
		}
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	c.mu.Lock()
	fns := make([]func(protocol.Envelope), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
}

func (c *Client) emit(ev StatusEvent) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(ev)
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) clearLink(lk *link) {
	c.mu.Lock()
	if c.link == lk {
		c.link = nil
	}
	c.mu.Unlock()
}

func (c *Client) userClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// pause sleeps for the backoff wait, returning false if the user
// closed the session first.
func (c *Client) pause(wait time.Duration) bool {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}

// retryDelay doubles the base per attempt up to the cap, then applies
// symmetric jitter so reconnecting clients do not stampede.
func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt > c.opts.BackoffMaxAttempts {
		attempt = c.opts.BackoffMaxAttempts
	}
	delay := c.opts.BackoffBase << uint(attempt)
	if delay <= 0 || delay > c.opts.BackoffMax {
		delay = c.opts.BackoffMax
	}
	if jitter := c.opts.BackoffJitter; jitter > 0 {
		spread := float64(delay) * jitter
		c.mu.Lock()
		offset := (c.rng.Float64()*2 - 1) * spread
		c.mu.Unlock()
		delay = time.Duration(float64(delay) + offset)
		if delay < c.opts.BackoffBase {
			delay = c.opts.BackoffBase
		}
	}
	return delay
}
