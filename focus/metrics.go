package focus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iammusetouch/ariana/metric"
)

// Metrics holds Prometheus metrics for the focus manager.
type Metrics struct {
	switches          prometheus.Counter
	reconnects        prometheus.Counter
	reconnectsAborted prometheus.Counter
	discoveryPasses   *prometheus.CounterVec
	connected         prometheus.Gauge
	lastAccepted      prometheus.Gauge
	eventsDropped     prometheus.Counter
}

// newMetrics creates and registers focus metrics. A nil registry returns
// nil; every method on a nil *Metrics is a no-op.
func newMetrics(registry *metric.MetricsRegistry, component string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		switches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "focus",
			Name:      "focus_switches_total",
			Help:      "Times the focus moved to a newer vault",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "focus",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a stream closed",
		}),
		reconnectsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "focus",
			Name:      "reconnects_exhausted_total",
			Help:      "Stream closures not retried because the retry cap was reached",
		}),
		discoveryPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "focus",
			Name:      "discovery_passes_total",
			Help:      "Discovery passes by outcome (empty, stale, accepted)",
		}, []string{"outcome"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "focus",
			Name:      "connected",
			Help:      "1 while the focused vault stream is open",
		}),
		lastAccepted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "focus",
			Name:      "last_accepted_created_at",
			Help:      "Creation timestamp of the most recently accepted vault",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "focus",
			Name:      "focus_events_dropped_total",
			Help:      "Events evicted from the focused log by the max_events cap",
		}),
	}

	if err := registry.RegisterCounter(component, "focus_switches", m.switches); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "reconnects_scheduled", m.reconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "reconnects_exhausted", m.reconnectsAborted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "discovery_passes", m.discoveryPasses); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "connected", m.connected); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "last_accepted", m.lastAccepted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "events_dropped", m.eventsDropped); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) discoveryPass(outcome string) {
	if m != nil {
		m.discoveryPasses.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) accepted(createdAt int64) {
	if m != nil {
		m.lastAccepted.Set(float64(createdAt))
	}
}

func (m *Metrics) switched() {
	if m != nil {
		m.switches.Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) reconnectExhausted() {
	if m != nil {
		m.reconnectsAborted.Inc()
	}
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) eventsEvicted(n int) {
	if m != nil {
		m.eventsDropped.Add(float64(n))
	}
}
