// Package focus keeps one vault in focus and streams its events to
// listeners.
//
// A Manager periodically asks a Resolver for the vault behind every root,
// picks the candidate with the greatest creation time and switches to it when
// it is newer than anything accepted before. The focus never moves back to an
// older vault, even if that vault is reported again.
//
// Switching closes the previous stream, starts a Source with an empty event
// log and opens a new stream.Conn. The backlog and every throttled batch are
// appended to the log and handed to OnBatchEvents listeners. Focus listeners
// are told about every switch and every reconnect attempt; Source.Connected
// tells them whether the stream is up yet.
//
// # Reconnects
//
// When the focused stream closes, the manager schedules SelectFocus for the
// same vault with the attempt number raised by one, after
// Config.Reconnect.Delay. The attempt is dropped when it fires if the focus
// has moved on or the manager has stopped. Retries are unbounded unless
// Config.Reconnect.MaxRetries is set.
//
// # Concurrency
//
// State changes are serialized by one mutex. Listeners run outside it on a
// single dispatch goroutine, in the order the changes happened, so they may
// call CurrentEvents or CurrentFocus. A listener that unsubscribes while a
// notification is in flight may still receive that notification; once the
// unsubscribe function returns it receives nothing further.
//
// Example:
//
//	m, err := focus.NewManager(focus.DefaultConfig("http://localhost:8080"),
//	    vault.DirRoots(roots), vault.NewResolver())
//	if err != nil {
//	    return err
//	}
//	unsubscribe := m.OnBatchEvents(func(evs []stream.Event) { render(evs) })
//	defer unsubscribe()
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//	defer m.Stop()
package focus
