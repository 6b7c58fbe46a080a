// Package buffer stores the events accumulated for the focused vault.
//
// The default Log never compacts: every event received for a vault stays in
// memory until the focus moves to another vault. Long-lived vaults can grow
// without limit, so deployments with a memory budget pass a capacity to
// NewLog, turning it into a ring that evicts the oldest events:
//
//	events := buffer.NewLog[stream.Event](10000,
//	    buffer.WithDropCallback(func(dropped []stream.Event) {
//	        droppedTotal.Add(float64(len(dropped)))
//	    }))
//
// Capping is opt-in; consumers that render the full history should leave it
// at zero.
package buffer
