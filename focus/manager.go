package focus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/health"
	"github.com/iammusetouch/ariana/metric"
	"github.com/iammusetouch/ariana/stream"
	"github.com/iammusetouch/ariana/subscriber"
)

// maxConcurrentResolves bounds resolver calls in flight during one pass.
const maxConcurrentResolves = 8

// FocusListener receives the newly focused source after every switch or
// reconnect attempt. The source may not be connected yet.
type FocusListener func(*Source)

// BatchListener receives events for the focused source: the backlog once per
// connection, then throttled increments.
type BatchListener func([]stream.Event)

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithMetrics registers focus and stream metrics on registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) error {
		fm, err := newMetrics(registry, "focus")
		if err != nil {
			return err
		}
		sm, err := stream.NewMetrics(registry, "stream")
		if err != nil {
			return err
		}
		m.metrics = fm
		m.streamMetrics = sm
		return nil
	}
}

// WithDialer sets the websocket dialer used for vault streams.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Manager) error {
		m.dialer = dialer
		return nil
	}
}

// retryState is a scheduled reconnect. It is dropped at fire time unless
// source is still the focused source.
type retryState struct {
	id      string
	attempt int
	source  *Source
}

// Manager keeps the newest discovered vault in focus, streams its events and
// fans them out to listeners.
//
// All state changes happen under one mutex. Listeners are called outside it,
// one at a time and in the order the changes happened, so a listener may call
// back into the manager.
type Manager struct {
	cfg      Config
	endpoint stream.Endpoint
	roots    RootLister
	resolver Resolver

	logger        *slog.Logger
	metrics       *Metrics
	streamMetrics *stream.Metrics
	dialer        *websocket.Dialer

	focusListeners *subscriber.Registry[FocusListener]
	batchListeners *subscriber.Registry[BatchListener]
	dispatch       *dispatcher

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex
	loopDone    chan struct{}

	mu           sync.Mutex
	running      bool
	ctx          context.Context
	cancel       context.CancelFunc
	current      *Source
	lastAccepted int64
	retryTimer   *time.Timer
	gaveUp       bool
	lastErr      error
}

// NewManager creates a stopped manager.
func NewManager(cfg Config, roots RootLister, resolver Resolver, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if roots == nil || resolver == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "focus", "NewManager", "check roots and resolver")
	}

	endpoint, err := stream.NewEndpoint(cfg.Endpoint, cfg.PathTemplate)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:            cfg,
		endpoint:       endpoint,
		roots:          roots,
		resolver:       resolver,
		logger:         slog.Default(),
		focusListeners: subscriber.NewRegistry[FocusListener](),
		batchListeners: subscriber.NewRegistry[BatchListener](),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.WrapInvalid(err, "focus", "NewManager", "apply option")
		}
	}
	m.logger = m.logger.With("component", "focus")
	m.dispatch = newDispatcher(m.logger)

	return m, nil
}

// Start stops any running loop, runs one discovery pass, then repeats the
// pass every DiscoveryInterval until Stop is called. Cancelling ctx has the
// same effect as Stop.
//
// The newest-accepted timestamp is reset on every Start, so it only moves
// forward within one run: a restarted manager focuses the newest vault it
// finds, even one older than the vault focused before the restart.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "focus", "Start", "check context")
	}

	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.stop()

	loopCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.running = true
	m.ctx = loopCtx
	m.cancel = cancel
	m.lastAccepted = 0
	m.mu.Unlock()

	m.discover(loopCtx)

	done := make(chan struct{})
	m.loopDone = done
	go m.loop(loopCtx, done)

	m.logger.Info("Focus manager started",
		"endpoint", m.cfg.Endpoint,
		"discovery_interval", m.cfg.DiscoveryInterval)
	return nil
}

// Stop cancels discovery, closes the focused connection and clears the
// focus. Listeners are not notified, and batches still queued for the old
// source are discarded; a listener call already in progress may finish
// after Stop returns. It is safe to call more than once.
func (m *Manager) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	m.stop()
}

func (m *Manager) stop() {
	m.mu.Lock()
	wasRunning := m.shutdownLocked()
	m.mu.Unlock()

	if m.loopDone != nil {
		<-m.loopDone
		m.loopDone = nil
	}
	if wasRunning {
		m.logger.Info("Focus manager stopped")
	}
}

// shutdownLocked clears all running state and reports whether the manager
// was running.
func (m *Manager) shutdownLocked() bool {
	wasRunning := m.running
	m.running = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.current != nil {
		m.current.close()
		m.current = nil
	}
	m.gaveUp = false
	m.lastErr = nil
	m.metrics.setConnected(false)
	return wasRunning
}

// expire shuts the manager down once the context given to Start is done.
func (m *Manager) expire(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != ctx || !m.shutdownLocked() {
		return
	}
	m.logger.Info("Focus manager stopped", "reason", context.Cause(ctx))
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.expire(ctx)
			return
		case <-ticker.C:
			m.discover(ctx)
		}
	}
}

// discover resolves every root, picks the newest candidate and focuses it if
// it is newer than anything accepted before.
func (m *Manager) discover(ctx context.Context) {
	roots, err := m.roots.Roots(ctx)
	if err != nil {
		m.logger.Debug("Listing roots failed", "error", err)
		m.metrics.discoveryPass("empty")
		return
	}

	found := make([]*Candidate, len(roots))
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentResolves)
	for i, root := range roots {
		g.Go(func() error {
			c, err := m.resolver.Resolve(ctx, root)
			if err != nil {
				m.logger.Debug("Resolving root failed", "root", root, "error", err)
				return nil
			}
			if c != nil && c.ID != "" {
				found[i] = c
			}
			return nil
		})
	}
	_ = g.Wait()

	best := newest(found)
	if best == nil {
		m.metrics.discoveryPass("empty")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || ctx.Err() != nil {
		return
	}
	if best.CreatedAt <= m.lastAccepted {
		m.metrics.discoveryPass("stale")
		return
	}

	m.lastAccepted = best.CreatedAt
	m.metrics.discoveryPass("accepted")
	m.metrics.accepted(best.CreatedAt)
	m.logger.Info("Newer vault discovered", "vault", best.ID, "created_at", best.CreatedAt)
	m.selectLocked(best.ID, 0)
}

// SelectFocus focuses the vault id, opening a fresh connection. It does
// nothing if id is already focused over a live connection. retry is the
// reconnect attempt number; 0 for a regular switch.
func (m *Manager) SelectFocus(id string, retry int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		m.logger.Debug("Ignoring focus request while stopped", "vault", id)
		return
	}
	m.selectLocked(id, retry)
}

func (m *Manager) selectLocked(id string, retry int) {
	prev := m.current
	if prev != nil && prev.id == id && prev.live() {
		return
	}
	if prev != nil {
		prev.close()
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if prev == nil || prev.id != id {
		m.metrics.switched()
	}
	m.gaveUp = false
	m.metrics.setConnected(false)

	src := newSource(id, retry, m.cfg.MaxEvents, func(n int) {
		m.metrics.eventsEvicted(n)
		m.logger.Debug("Event log full, dropped oldest events", "vault", id, "dropped", n)
	})
	m.current = src
	src.conn = stream.Open(m.ctx, stream.Options{
		URL:              m.endpoint.URL(id),
		ThrottleInterval: m.cfg.ThrottleInterval,
		Dialer:           m.dialer,
		Logger:           m.logger.With("vault", id),
		Metrics:          m.streamMetrics,
		OnOpen:           func() { m.handleOpen(src) },
		OnBacklog:        func(evs []stream.Event) { m.handleEvents(src, evs) },
		OnBatch:          func(evs []stream.Event) { m.handleEvents(src, evs) },
		OnClose:          func(err error) { m.handleClose(src, err) },
	})

	m.notifyFocusLocked(src)
}

func (m *Manager) handleOpen(src *Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != src {
		return
	}
	src.connected.Store(true)
	m.lastErr = nil
	m.metrics.setConnected(true)
	m.logger.Debug("Focused vault connected", "vault", src.id, "retry", src.retry)
}

func (m *Manager) handleEvents(src *Source, events []stream.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != src {
		return
	}
	src.events.Append(events...)

	batch := append([]stream.Event(nil), events...)
	m.dispatch.enqueue(func() {
		if !m.isCurrent(src) {
			return
		}
		m.batchListeners.Notify(func(l BatchListener) { l(batch) })
	})
}

func (m *Manager) isCurrent(src *Source) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == src
}

func (m *Manager) handleClose(src *Source, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.current != src || m.ctx.Err() != nil {
		return
	}
	src.connected.Store(false)
	m.metrics.setConnected(false)
	if err != nil {
		m.lastErr = err
	} else {
		m.lastErr = errors.ErrConnectionLost
	}

	attempt := src.retry + 1
	if !m.cfg.Reconnect.Allow(attempt) {
		m.gaveUp = true
		m.metrics.reconnectExhausted()
		m.logger.Warn("Giving up on vault stream",
			"vault", src.id,
			"attempts", src.retry,
			"error", errors.WrapFatal(errors.ErrMaxRetriesExceeded, "focus", "handleClose", "schedule reconnect"))
		m.notifyFocusLocked(src)
		return
	}

	delay := m.cfg.Reconnect.Delay(src.retry)
	state := retryState{id: src.id, attempt: attempt, source: src}
	m.retryTimer = time.AfterFunc(delay, func() { m.fireRetry(state) })
	m.metrics.reconnectScheduled()
	m.logger.Info("Vault stream closed, reconnecting",
		"vault", src.id,
		"attempt", attempt,
		"delay", delay,
		"error", err)
}

func (m *Manager) fireRetry(state retryState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.current != state.source || m.ctx.Err() != nil {
		m.logger.Debug("Dropping stale reconnect", "vault", state.id, "attempt", state.attempt)
		return
	}
	m.retryTimer = nil
	m.selectLocked(state.id, state.attempt)
}

func (m *Manager) notifyFocusLocked(src *Source) {
	m.dispatch.enqueue(func() {
		m.focusListeners.Notify(func(l FocusListener) { l(src) })
	})
}

// CurrentEvents returns the focused source's events, or an empty slice.
func (m *Manager) CurrentEvents() []stream.Event {
	m.mu.Lock()
	src := m.current
	m.mu.Unlock()

	if src == nil {
		return []stream.Event{}
	}
	return src.Events()
}

// CurrentFocus returns the focused source, or nil.
func (m *Manager) CurrentFocus() *Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnFocusChange registers l and returns a function that removes it. After
// the returned function has returned, l is not called again.
func (m *Manager) OnFocusChange(l FocusListener) (unsubscribe func()) {
	key := m.focusListeners.Subscribe(l)
	return func() { m.focusListeners.Unsubscribe(key) }
}

// OnBatchEvents registers l and returns a function that removes it. After
// the returned function has returned, l is not called again.
func (m *Manager) OnBatchEvents(l BatchListener) (unsubscribe func()) {
	key := m.batchListeners.Subscribe(l)
	return func() { m.batchListeners.Unsubscribe(key) }
}

// Health describes the manager for health endpoints.
type Health struct {
	Running      bool   `json:"running"`
	Vault        string `json:"vault,omitempty"`
	Connected    bool   `json:"connected"`
	Retry        int    `json:"retry"`
	Events       int    `json:"events"`
	LastAccepted int64  `json:"last_accepted"`
	GaveUp       bool   `json:"gave_up,omitempty"`
	Dropped      uint64 `json:"dropped,omitempty"`
	// LastError is the sanitized cause of the last stream loss, cleared
	// once a connection opens.
	LastError string `json:"last_error,omitempty"`
}

// Health returns a snapshot of the manager state. A running manager with a
// focused vault is healthy only while connected.
func (m *Manager) Health() (bool, Health) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Health{Running: m.running, LastAccepted: m.lastAccepted, GaveUp: m.gaveUp}
	if src := m.current; src != nil {
		h.Vault = src.id
		h.Connected = src.Connected()
		h.Retry = src.retry
		h.Events = src.EventCount()
		h.Dropped = src.DroppedEvents()
	}
	if m.lastErr != nil {
		h.LastError = health.Sanitize(m.lastErr.Error())
	}
	healthy := m.running && (m.current == nil || h.Connected)
	return healthy, h
}

// HealthStatus maps Health onto the three-state model: degraded while the
// focused stream is connecting or reconnecting, unhealthy once stopped or
// out of retries.
func (m *Manager) HealthStatus() health.Status {
	_, h := m.Health()

	var s health.Status
	switch {
	case !h.Running:
		s = health.FromError("focus", errors.ErrNotStarted)
	case h.Vault == "":
		s = health.NewHealthy("focus", "waiting for a vault")
	case h.Connected:
		s = health.NewHealthy("focus", "streaming")
	case h.GaveUp:
		s = health.NewUnhealthy("focus", "gave up reconnecting")
	default:
		s = health.NewDegraded("focus", "connecting")
	}
	s = s.WithDetail("vault", h.Vault).
		WithDetail("retry", h.Retry).
		WithDetail("events", h.Events)
	if h.LastError != "" {
		s = s.WithDetail("last_error", h.LastError)
	}
	return s
}
