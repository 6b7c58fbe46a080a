package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iammusetouch/ariana/metric"
)

// Metrics holds Prometheus metrics shared by every connection of one manager.
type Metrics struct {
	framesReceived   *prometheus.CounterVec
	decodeErrors     prometheus.Counter
	batchesFlushed   prometheus.Counter
	eventsDelivered  *prometheus.CounterVec
	connectionsOpen  prometheus.Gauge
	connectionErrors *prometheus.CounterVec
}

// NewMetrics creates and registers stream metrics. A nil registry returns
// nil, and every method on a nil *Metrics is a no-op.
func NewMetrics(registry *metric.MetricsRegistry, component string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Frames received by kind (backlog, batch, record)",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "decode_errors_total",
			Help:      "Frames dropped because they failed to decode",
		}),
		batchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "batches_flushed_total",
			Help:      "Throttled batches delivered",
		}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "events_delivered_total",
			Help:      "Events delivered by discipline (backlog, batch)",
		}, []string{"discipline"}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "connections_open",
			Help:      "Open vault stream connections",
		}),
		connectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "stream",
			Name:      "connection_errors_total",
			Help:      "Connection failures by stage (dial, read)",
		}, []string{"stage"}),
	}

	if err := registry.RegisterCounterVec(component, "frames_received", m.framesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "decode_errors", m.decodeErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "batches_flushed", m.batchesFlushed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "events_delivered", m.eventsDelivered); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "connections_open", m.connectionsOpen); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(component, "connection_errors", m.connectionErrors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) frame(kind string) {
	if m != nil {
		m.framesReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) delivered(discipline string, n int) {
	if m == nil {
		return
	}
	if discipline == "batch" {
		m.batchesFlushed.Inc()
	}
	m.eventsDelivered.WithLabelValues(discipline).Add(float64(n))
}

func (m *Metrics) opened() {
	if m != nil {
		m.connectionsOpen.Inc()
	}
}

func (m *Metrics) closed() {
	if m != nil {
		m.connectionsOpen.Dec()
	}
}

func (m *Metrics) connError(stage string) {
	if m != nil {
		m.connectionErrors.WithLabelValues(stage).Inc()
	}
}
