package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/iammusetouch/ariana/errors"
)

// Options configures a Conn. Callbacks may be nil.
type Options struct {
	// URL is the websocket URL of one vault, usually Endpoint.URL(id).
	URL              string
	ThrottleInterval time.Duration
	Dialer           *websocket.Dialer
	Logger           *slog.Logger
	Metrics          *Metrics

	// OnOpen fires once the handshake completes.
	OnOpen func()
	// OnBacklog receives the initial backlog immediately, bypassing the batcher.
	OnBacklog func([]Event)
	// OnBatch receives throttled increments.
	OnBatch func([]Event)
	// OnClose fires exactly once when the connection ends for any reason
	// other than Close. err is nil for a normal remote close.
	OnClose func(err error)
}

// Conn owns one receive-only websocket stream to one vault. It does not
// reconnect: once closed it is spent, and a new Conn must be opened.
type Conn struct {
	url     string
	opts    Options
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics *Metrics
	batcher *Batcher
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	ws     *websocket.Conn
	events []Event
	frames int

	closed     atomic.Bool
	finishOnce sync.Once
}

// Open starts connecting in the background and returns immediately. Every
// outcome, including a failed dial, is reported through the callbacks.
func Open(ctx context.Context, opts Options) *Conn {
	connCtx, cancel := context.WithCancel(ctx)

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 45 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		url:     opts.URL,
		opts:    opts,
		dialer:  dialer,
		logger:  logger.With("component", "stream", "url", opts.URL),
		metrics: opts.Metrics,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		ctx:     connCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.batcher = NewBatcher(opts.ThrottleInterval, c.deliverBatch)

	go c.run()
	return c
}

// URL returns the stream URL.
func (c *Conn) URL() string {
	return c.url
}

// Events returns a copy of the events received on this connection. The
// backlog replaces the view; later frames append to it.
func (c *Conn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Done is closed when the receive goroutine has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether the connection has ended.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close severs the socket and suppresses every later callback, OnClose
// included. It is safe to call more than once and does not wait for the
// receive goroutine.
func (c *Conn) Close() {
	if c.closed.Swap(true) {
		return
	}

	c.cancel()
	c.batcher.Stop()

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

func (c *Conn) run() {
	defer close(c.done)

	ws, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		c.metrics.connError("dial")
		c.finish(errors.WrapTransient(err, "stream", "run", "dial vault stream"))
		return
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	c.metrics.opened()
	defer c.metrics.closed()

	c.logger.Debug("Vault stream connected")
	if c.opts.OnOpen != nil && !c.closed.Load() {
		c.opts.OnOpen()
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.finish(nil)
				return
			}
			c.metrics.connError("read")
			c.finish(errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err), "stream", "run", "read frame"))
			return
		}
		c.handleFrame(data)
	}
}

// finish marks a remote or transport closure and reports it once.
func (c *Conn) finish(err error) {
	c.finishOnce.Do(func() {
		if c.closed.Swap(true) {
			return
		}
		c.cancel()
		c.batcher.Stop()

		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}

		if err != nil {
			c.logger.Info("Vault stream closed", "error", err)
		} else {
			c.logger.Info("Vault stream closed by server")
		}
		if c.opts.OnClose != nil {
			c.opts.OnClose(err)
		}
	})
}

func (c *Conn) handleFrame(data []byte) {
	events, isBatch, err := decodeFrame(data)
	if err != nil {
		c.metrics.decodeError()
		if c.limiter.Allow() {
			c.logger.Warn("Dropping undecodable frame", "error", err, "bytes", len(data))
		}
		return
	}

	c.mu.Lock()
	first := c.frames == 0
	c.frames++
	if first && isBatch {
		c.events = append([]Event(nil), events...)
		c.mu.Unlock()

		c.metrics.frame("backlog")
		if c.opts.OnBacklog != nil && !c.closed.Load() {
			c.opts.OnBacklog(events)
			c.metrics.delivered("backlog", len(events))
		}
		return
	}
	c.events = append(c.events, events...)
	c.mu.Unlock()

	if isBatch {
		c.metrics.frame("batch")
	} else {
		c.metrics.frame("record")
	}
	c.batcher.Enqueue(events)
}

func (c *Conn) deliverBatch(events []Event) {
	if c.closed.Load() || c.opts.OnBatch == nil {
		return
	}
	c.opts.OnBatch(events)
	c.metrics.delivered("batch", len(events))
}
