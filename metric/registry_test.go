package metric

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammusetouch/ariana/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "test_counter_total",
		Help:      "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("focus", "test_counter", counter))
	counter.Inc()

	assert.True(t, gatheredNames(t, registry)["ariana_test_counter_total"])
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	require.NoError(t, registry.RegisterGauge("focus", "dup", gauge))

	err := registry.RegisterGauge("focus", "dup", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	err = registry.RegisterGauge("stream", "dup", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "prometheus conflict should be invalid")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "frames_total", Help: "frames"}, []string{"kind"})
	require.NoError(t, registry.RegisterCounterVec("stream", "frames", vec))
	vec.WithLabelValues("backlog").Inc()

	assert.True(t, registry.Unregister("stream", "frames"))
	assert.False(t, registry.Unregister("stream", "frames"))
	assert.False(t, gatheredNames(t, registry)["frames_total"])

	require.NoError(t, registry.RegisterCounterVec("stream", "frames", vec))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "batch_size", Help: "size"})
	require.NoError(t, registry.RegisterHistogram("stream", "batch_size", hist))
	hist.Observe(3)

	var unhealthy atomic.Bool
	srv := NewServer("127.0.0.1:0", "", registry, func() (bool, any) {
		return !unhealthy.Load(), map[string]string{"focus": "vault-a"}
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "batch_size")

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var payload struct {
		Healthy bool              `json:"healthy"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.True(t, payload.Healthy)
	assert.Equal(t, "vault-a", payload.Details["focus"])

	unhealthy.Store(true)
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
