// Package stream maintains a best-effort continuous read of the agent-run
// SSE endpoint. It recovers transparently from network blips, server
// restarts and silent stalls, and gives up cleanly when recovery is futile.
//
// One Connection owns one logical subscription. The lifecycle is an explicit
// state machine (connecting, open, backoff-wait, closed); closed is terminal
// and monotonic.
package stream

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"apex-client/internal/auth"
	"apex-client/internal/logging"
	"apex-client/internal/metrics"
)

// State is the connection lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateBackoffWait
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoffWait:
		return "backoff-wait"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks is the surface consumed by UI code. OnMessage receives raw
// payloads verbatim; the caller parses and renders. All callbacks are
// invoked from the connection's own goroutine, one at a time.
type Callbacks struct {
	OnMessage func(data string)
	OnError   func(err error)
	OnClose   func()
}

// Defaults mirror the web client's tuning.
const (
	DefaultMaxRetries        = 8
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultStabilityWindow   = 30 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
)

// Options tunes a Connection. The zero value of any field selects the
// default above.
type Options struct {
	// BaseURL is the platform API root, e.g. https://api.apex.build.
	BaseURL string

	// HTTPClient must not carry an overall timeout; the stream is long-lived.
	HTTPClient *http.Client

	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	StabilityWindow   time.Duration
	HeartbeatTimeout  time.Duration
	HeartbeatInterval time.Duration

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.StabilityWindow <= 0 {
		o.StabilityWindow = DefaultStabilityWindow
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.Logger == nil {
		o.Logger = logging.Named("stream")
	}
	return o
}

// Connection is one logical subscription to an agent run's event stream.
type Connection struct {
	runID  string
	tokens auth.TokenProvider
	cb     Callbacks
	opts   Options
	log    *zap.Logger
	policy *backoffPolicy

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu           sync.Mutex
	st           State
	retry        retryState
	lastMessage  time.Time
	staleTripped bool
	body         io.ReadCloser

	stop         chan struct{}
	stopOnce     sync.Once
	runDone      chan struct{}
	watchdogDone chan struct{}

	// dispatchDepth is nonzero while a callback is executing; Cancel called
	// from inside a callback must not wait for its own goroutine.
	dispatchDepth atomic.Int32
}

// Connect opens a subscription for runID and starts delivering frames. The
// credential provider is consulted fresh on every attempt so token rotation
// is respected. Call Cancel to tear down; after Cancel returns no callback
// fires and no timer remains pending.
func Connect(runID string, tokens auth.TokenProvider, cb Callbacks, opts Options) *Connection {
	o := opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		runID:        runID,
		tokens:       tokens,
		cb:           cb,
		opts:         o,
		log:          o.Logger.With(zap.String("run_id", runID)),
		policy:       newBackoffPolicy(o.BaseDelay, o.MaxDelay),
		ctx:          ctx,
		cancelCtx:    cancel,
		st:           StateConnecting,
		stop:         make(chan struct{}),
		runDone:      make(chan struct{}),
		watchdogDone: make(chan struct{}),
	}

	metrics.Get().StreamsActive.Inc()
	go c.run()
	go c.watchdog()
	return c
}

// Cancel deterministically stops all timers and the transport. Idempotent,
// safe after natural closure and safe from within a callback. After it
// returns no new callback starts; a callback already executing at the moment
// of the call may still finish concurrently.
func (c *Connection) Cancel() {
	c.shutdown(nil, false)
	if c.dispatchDepth.Load() > 0 {
		return
	}
	<-c.runDone
	<-c.watchdogDone
}

// State reports the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// ErrorCount reports the current error-burst counter.
func (c *Connection) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry.errorCount
}

// run is the connection's owner goroutine: it performs attempts, schedules
// reconnects and invokes every callback.
func (c *Connection) run() {
	defer close(c.runDone)

	for {
		streamErr := c.connectOnce()
		if streamErr == nil {
			return // closed, naturally or by Cancel
		}

		delay, retry := c.scheduleRetry(streamErr)
		if !retry {
			return
		}
		if !c.waitBackoff(delay) {
			return
		}
	}
}

// connectOnce performs one attempt: fetch a credential, open the stream and
// pump frames until the transport fails or the run ends. A nil return means
// the connection reached its terminal state.
func (c *Connection) connectOnce() *Error {
	c.mu.Lock()
	if c.st == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.st = StateConnecting
	c.mu.Unlock()

	metrics.Get().StreamConnectsTotal.Inc()

	tokenCtx, cancel := context.WithTimeout(c.ctx, 15*time.Second)
	token, err := c.tokens.Token(tokenCtx)
	cancel()
	if err != nil {
		if c.ctx.Err() != nil {
			return nil
		}
		return &Error{Class: ClassSetup, Message: "credential fetch failed", Err: err}
	}
	if token == "" {
		// An empty credential can never authenticate; fail hard, no retry.
		c.shutdown(&Error{Class: ClassAuth, Message: "empty credential"}, true)
		return nil
	}

	endpoint, err := c.streamURL(token)
	if err != nil {
		return &Error{Class: ClassSetup, Message: "invalid stream URL", Err: err}
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Class: ClassSetup, Message: "building stream request", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil
		}
		return &Error{Class: ClassTransient, Message: "connection failed", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := readErrorBody(resp.Body)
		resp.Body.Close()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{
			Class:   classifyHTTPStatus(resp.StatusCode),
			Message: msg,
			Status:  resp.StatusCode,
		}
	}

	c.mu.Lock()
	if c.st == StateClosed {
		c.mu.Unlock()
		resp.Body.Close()
		return nil
	}
	c.st = StateOpen
	c.retry.reset()
	c.staleTripped = false
	c.lastMessage = time.Now()
	c.body = resp.Body
	c.mu.Unlock()

	c.log.Debug("stream open")
	return c.readLoop(resp.Body)
}

// readLoop pumps frames off an open stream until it fails or the run ends.
func (c *Connection) readLoop(body io.ReadCloser) *Error {
	defer func() {
		c.mu.Lock()
		if c.body == body {
			c.body = nil
		}
		c.mu.Unlock()
		body.Close()
	}()

	er := newEventReader(body, c.touch)
	m := metrics.Get()

	for {
		data, err := er.next()
		if err != nil {
			if c.ctx.Err() != nil || c.State() == StateClosed {
				return nil
			}
			c.mu.Lock()
			stale := c.staleTripped
			c.mu.Unlock()
			if stale {
				return &Error{Class: ClassStale, Message: "no frames within heartbeat timeout"}
			}
			if err == io.EOF {
				return &Error{Class: ClassTransient, Message: "stream ended unexpectedly"}
			}
			return &Error{Class: ClassTransient, Message: "stream read failed", Err: err}
		}

		f := classifyFrame(data)
		m.StreamFramesTotal.WithLabelValues(f.kind.String()).Inc()

		switch f.kind {
		case framePing:
			// Heartbeat already refreshed by the reader's activity hook.
		case frameAppError:
			c.emitError(&AppError{Message: f.message})
		case frameTerminal:
			c.log.Info("run finished", zap.String("reason", f.message))
			c.shutdown(nil, true)
			return nil
		default:
			c.emitMessage(f.data)
		}
	}
}

// scheduleRetry classifies a failure and either transitions to backoff-wait
// (returning the delay) or performs the fatal shutdown.
func (c *Connection) scheduleRetry(e *Error) (time.Duration, bool) {
	c.mu.Lock()
	if c.st == StateClosed {
		c.mu.Unlock()
		return 0, false
	}

	if !e.Class.Retryable() {
		c.mu.Unlock()
		metrics.Get().StreamFatalErrorsTotal.WithLabelValues(e.Class.String()).Inc()
		c.log.Warn("fatal stream error", zap.String("class", e.Class.String()), zap.Error(e))
		c.shutdown(e, true)
		return 0, false
	}

	n := c.retry.record(time.Now(), c.opts.StabilityWindow)
	if n >= c.opts.MaxRetries {
		c.mu.Unlock()
		metrics.Get().StreamFatalErrorsTotal.WithLabelValues(ClassBudget.String()).Inc()
		c.shutdown(&Error{
			Class:   ClassBudget,
			Message: "connection lost after repeated failures; please refresh the page",
			Err:     e,
		}, true)
		return 0, false
	}
	c.st = StateBackoffWait
	c.mu.Unlock()

	delay := c.policy.delay(n)
	metrics.Get().StreamReconnectsTotal.WithLabelValues(e.Class.String()).Inc()
	metrics.Get().StreamBackoffSeconds.Observe(delay.Seconds())
	c.log.Debug("scheduling reconnect",
		zap.Int("error_count", n),
		zap.Duration("delay", delay),
		zap.String("class", e.Class.String()))

	// The very first retryable blip recovers silently; repeats are surfaced
	// so the UI can show a degraded-connection notice.
	if n > 1 {
		c.emitError(e)
	}
	return delay, true
}

// waitBackoff sleeps out the reconnect delay. Returns false when the
// connection closed during the wait.
func (c *Connection) waitBackoff(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return c.State() != StateClosed
	case <-c.stop:
		return false
	}
}

// watchdog detects silent stalls. It runs for the lifetime of the
// connection on a fixed interval, independent of message arrival.
func (c *Connection) watchdog() {
	defer close(c.watchdogDone)

	t := time.NewTicker(c.opts.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.mu.Lock()
			if c.st != StateOpen || time.Since(c.lastMessage) <= c.opts.HeartbeatTimeout {
				c.mu.Unlock()
				continue
			}
			c.staleTripped = true
			body := c.body
			c.mu.Unlock()

			metrics.Get().StreamHeartbeatTimeouts.Inc()
			c.log.Warn("heartbeat timeout; recycling connection")
			if body != nil {
				// Unblocks the reader, which classifies the failure as stale
				// and runs the normal backoff policy.
				body.Close()
			}
		}
	}
}

// touch records inbound activity for the heartbeat watchdog.
func (c *Connection) touch() {
	c.mu.Lock()
	c.lastMessage = time.Now()
	c.mu.Unlock()
}

// shutdown performs the single closed transition: stops timers, tears down
// the transport and, when emit is set, delivers the final onError/onClose
// pair. Later calls are no-ops.
func (c *Connection) shutdown(final *Error, emit bool) {
	c.mu.Lock()
	if c.st == StateClosed {
		c.mu.Unlock()
		return
	}
	c.st = StateClosed
	body := c.body
	c.body = nil
	c.mu.Unlock()

	c.cancelCtx()
	c.stopOnce.Do(func() { close(c.stop) })
	if body != nil {
		body.Close()
	}
	metrics.Get().StreamsActive.Dec()

	if !emit {
		return
	}
	if final != nil && c.cb.OnError != nil {
		c.invoke(func() { c.cb.OnError(final) })
	}
	if c.cb.OnClose != nil {
		c.invoke(func() { c.cb.OnClose() })
	}
}

func (c *Connection) emitMessage(data string) {
	if c.cb.OnMessage == nil || c.State() == StateClosed {
		return
	}
	c.invoke(func() { c.cb.OnMessage(data) })
}

func (c *Connection) emitError(err error) {
	if c.cb.OnError == nil || c.State() == StateClosed {
		return
	}
	c.invoke(func() { c.cb.OnError(err) })
}

func (c *Connection) invoke(f func()) {
	c.dispatchDepth.Add(1)
	defer c.dispatchDepth.Add(-1)
	f()
}

func (c *Connection) streamURL(token string) (string, error) {
	base := strings.TrimRight(c.opts.BaseURL, "/")
	// The EventSource transport cannot set headers, so the credential rides
	// the query string; the server accepts either.
	raw := base + "/agent-run/" + url.PathEscape(c.runID) + "/stream?token=" + url.QueryEscape(token)
	if _, err := url.ParseRequestURI(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(b))
}
