// Package ariana keeps a single vault in focus and streams its trace events
// to in-process listeners.
//
// # Overview
//
// Several vaults may exist on a machine at once. The focus manager scans a
// set of roots, picks the most recently created vault, and holds a websocket
// connection to its event stream. When a newer vault appears it switches over;
// when the stream drops it reconnects with exponential backoff.
//
// Listeners attach to two channels:
//
//   - focus changes, carrying the newly focused source, including the
//     disconnected state while a reconnect is pending
//   - event batches, flushed at most once per throttle interval
//
// The backlog a server sends on connect is delivered to batch listeners at
// once, bypassing the throttle. Every delivered event is also kept on the
// focused source, so CurrentEvents returns the full log.
//
// # Packages
//
//   - focus: Manager, Source, discovery and reconnect state
//   - stream: websocket connection, frame decoding, event batcher
//   - subscriber: listener registry keyed by generated IDs
//   - vault: filesystem resolver for vault marker files
//   - publish: republishes focus changes and batches to NATS
//   - config: layered JSON/YAML configuration with env overrides
//   - metric, health: prometheus registry and health reporting
//   - errors: classified errors (transient, invalid, fatal)
//
// # Running
//
//	ariana-focus --endpoint https://vaults.example.com/api --roots '~/work/*'
//
// See cmd/ariana-focus for the full flag list.
package ariana
