// Package health provides a three-state health model and aggregation for the
// daemon's /healthz endpoint.
//
// # Health States
//
//   - Healthy: operating normally
//   - Degraded: still serving, but recovering (for example, reconnecting to a
//     vault stream)
//   - Unhealthy: not functioning
//
// Aggregate combines component statuses: any unhealthy part makes the whole
// unhealthy; otherwise any degraded part makes it degraded.
//
//	report := health.Aggregate("ariana-focus", []health.Status{
//	    manager.HealthStatus(),
//	    publisher.HealthStatus(),
//	})
package health
