// Package stream owns the receive-only websocket connection to a single
// vault.
//
// A vault server pushes text frames, each holding one JSON event object or an
// array of them. The first frame after a connection opens is the backlog when
// it is an array: it replaces the connection's event view and is handed to
// OnBacklog at once. Every other frame is appended and routed through a
// Batcher, which coalesces increments into one OnBatch call per throttle
// window.
//
// A Conn never reconnects. When the socket ends for any reason other than
// Close, OnClose fires exactly once and the Conn is spent; the caller decides
// whether to open a new one.
//
// Basic usage:
//
//	ep, err := stream.NewEndpoint("http://localhost:8080", stream.DefaultPathTemplate)
//	if err != nil {
//	    return err
//	}
//	conn := stream.Open(ctx, stream.Options{
//	    URL:       ep.URL(vaultID),
//	    OnBacklog: func(evs []stream.Event) { ... },
//	    OnBatch:   func(evs []stream.Event) { ... },
//	    OnClose:   func(err error) { ... },
//	})
//	defer conn.Close()
package stream
