package stream

import (
	"sync"
	"time"
)

// DefaultThrottleInterval is the batching window for incremental events.
const DefaultThrottleInterval = 800 * time.Millisecond

// Batcher buffers incremental events and flushes them on a leading-edge
// timer: the first Enqueue in a quiet period arms a timer for one interval,
// and every event enqueued before it fires is delivered in a single call.
type Batcher struct {
	interval time.Duration
	deliver  func([]Event)

	// flushMu orders deliveries when a slow callback overlaps the next window.
	flushMu sync.Mutex

	mu      sync.Mutex
	pending []Event
	timer   *time.Timer
	stopped bool
}

// NewBatcher creates a batcher. interval <= 0 uses DefaultThrottleInterval.
func NewBatcher(interval time.Duration, deliver func([]Event)) *Batcher {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &Batcher{
		interval: interval,
		deliver:  deliver,
	}
}

// Enqueue appends events to the pending buffer and arms the flush timer if
// it is not already armed.
func (b *Batcher) Enqueue(events []Event) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.pending = append(b.pending, events...)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.flush)
	}
}

// Pending returns the number of events waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop disarms the timer and discards pending events. Later Enqueue calls
// are ignored.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
}

func (b *Batcher) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	b.timer = nil
	batch := b.pending
	b.pending = nil
	stopped := b.stopped
	b.mu.Unlock()

	if stopped || len(batch) == 0 {
		return
	}
	b.deliver(batch)
}
