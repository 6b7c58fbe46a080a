// Package metric wraps a private prometheus registry for the focus daemon.
//
// Components build their collectors with the ariana namespace and register
// them under a component name so duplicate registrations surface as
// classified errors instead of panics:
//
//	registry := metric.NewMetricsRegistry()
//	switches := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Subsystem: "focus",
//	    Name:      "switches_total",
//	    Help:      "Focus switches",
//	})
//	_ = registry.RegisterCounter("focus", "switches_total", switches)
//
// Server exposes the registry on /metrics together with a JSON /healthz.
package metric
