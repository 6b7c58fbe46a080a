package focus

import (
	"log/slog"
	"sync"
)

// dispatcher runs listener notifications one at a time, in the order they
// were enqueued, on a goroutine that exists only while work is queued.
// Enqueue never blocks, so the manager can enqueue while holding its lock.
type dispatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	running bool
	idle    *sync.Cond
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{logger: logger}
	d.idle = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain()
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.idle.Broadcast()
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.call(fn)
	}
}

func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Listener panicked", "panic", r)
		}
	}()
	fn()
}

// wait blocks until the queue is empty. It must not be called from a
// listener.
func (d *dispatcher) wait() {
	d.mu.Lock()
	for d.running {
		d.idle.Wait()
	}
	d.mu.Unlock()
}
