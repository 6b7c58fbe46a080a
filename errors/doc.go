// Package errors classifies failures raised by the focus daemon.
//
// # Classes
//
//   - Transient: dial failures, dropped sockets, timeouts. The focus manager
//     answers these with a backoff-scheduled reconnect.
//   - Invalid: malformed frames and bad configuration values. Frames are
//     dropped and logged; the connection stays open.
//   - Fatal: configuration that cannot be used at all. Only the CLI acts on
//     these, by refusing to start.
//
// Nothing inside the focus manager escalates to a process-fatal condition.
//
// # Usage
//
//	if err := conn.ReadMessage(); err != nil {
//	    return errors.WrapTransient(err, "stream", "readLoop", "read frame")
//	}
//
//	if errors.IsInvalid(err) {
//	    // drop the frame
//	}
package errors
