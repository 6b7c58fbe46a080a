// Package buffer provides the event log held by a focused vault.
//
// A Log is append-only. With capacity zero it grows without bound; with a
// positive capacity it becomes a ring that drops the oldest entries once full.
package buffer

import (
	"sync"
)

// DropCallback is called with items evicted by a capped Log.
type DropCallback[T any] func(dropped []T)

// Option configures a Log.
type Option[T any] func(*Log[T])

// WithDropCallback registers a callback for evicted items. It runs outside
// the log's lock.
func WithDropCallback[T any](cb DropCallback[T]) Option[T] {
	return func(l *Log[T]) {
		l.onDrop = cb
	}
}

// Log is a thread-safe, ordered, append-only sequence.
type Log[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	head     int // index of the oldest item when capped
	size     int
	dropped  uint64
	onDrop   DropCallback[T]
}

// NewLog creates a log. capacity <= 0 means unbounded.
func NewLog[T any](capacity int, options ...Option[T]) *Log[T] {
	if capacity < 0 {
		capacity = 0
	}
	l := &Log[T]{capacity: capacity}
	if capacity > 0 {
		l.items = make([]T, capacity)
	}
	for _, opt := range options {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Append adds items in order.
func (l *Log[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}

	l.mu.Lock()
	var evicted []T
	if l.capacity == 0 {
		l.items = append(l.items, items...)
		l.size = len(l.items)
	} else {
		for _, item := range items {
			if l.size == l.capacity {
				if l.onDrop != nil {
					evicted = append(evicted, l.items[l.head])
				}
				l.items[l.head] = item
				l.head = (l.head + 1) % l.capacity
				l.dropped++
				continue
			}
			l.items[(l.head+l.size)%l.capacity] = item
			l.size++
		}
	}
	cb := l.onDrop
	l.mu.Unlock()

	if cb != nil && len(evicted) > 0 {
		cb(evicted)
	}
}

// Snapshot returns a copy of the retained items, oldest first.
func (l *Log[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, l.size)
	if l.capacity == 0 {
		copy(out, l.items)
		return out
	}
	for i := 0; i < l.size; i++ {
		out[i] = l.items[(l.head+i)%l.capacity]
	}
	return out
}

// Len returns the number of retained items.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Dropped returns how many items have been evicted.
func (l *Log[T]) Dropped() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}
