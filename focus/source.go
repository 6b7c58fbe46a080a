package focus

import (
	"sync/atomic"

	"github.com/iammusetouch/ariana/pkg/buffer"
	"github.com/iammusetouch/ariana/stream"
)

// Source is the focused vault: its identifier, the events received since it
// was focused and the state of its connection. A Source is replaced, never
// reused, when the manager switches or reconnects.
type Source struct {
	id     string
	retry  int
	events *buffer.Log[stream.Event]

	// conn always targets id. Guarded by the manager's mutex.
	conn      *stream.Conn
	connected atomic.Bool
}

// newSource creates a source whose log keeps at most maxEvents events when
// maxEvents > 0. onDrop, if set, receives the number of events evicted.
func newSource(id string, retry, maxEvents int, onDrop func(n int)) *Source {
	var opts []buffer.Option[stream.Event]
	if onDrop != nil {
		opts = append(opts, buffer.WithDropCallback[stream.Event](func(dropped []stream.Event) {
			onDrop(len(dropped))
		}))
	}
	return &Source{
		id:     id,
		retry:  retry,
		events: buffer.NewLog(maxEvents, opts...),
	}
}

// ID returns the vault identifier.
func (s *Source) ID() string {
	return s.id
}

// Retry returns the reconnect attempt that created this source; 0 for a
// fresh switch.
func (s *Source) Retry() int {
	return s.retry
}

// Connected reports whether the stream handshake has completed and the
// connection has not closed since.
func (s *Source) Connected() bool {
	return s.connected.Load()
}

// Events returns a copy of the accumulated events in arrival order.
func (s *Source) Events() []stream.Event {
	return s.events.Snapshot()
}

// EventCount returns the number of accumulated events.
func (s *Source) EventCount() int {
	return s.events.Len()
}

// DroppedEvents returns how many events the max_events cap has evicted.
func (s *Source) DroppedEvents() uint64 {
	return s.events.Dropped()
}

// close severs the connection without triggering a reconnect.
func (s *Source) close() {
	s.connected.Store(false)
	if s.conn != nil {
		s.conn.Close()
	}
}

// live reports whether the connection is dialing or open.
func (s *Source) live() bool {
	return s.conn != nil && !s.conn.Closed()
}
