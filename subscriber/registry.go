// Package subscriber provides a keyed listener registry with snapshot
// notification.
package subscriber

import (
	"sync"

	"github.com/google/uuid"
)

type entry[T any] struct {
	key      string
	listener T
}

// Registry maps generated keys to listeners. Insertion order is not kept.
//
// Notify iterates a snapshot taken when it starts. A listener removed while a
// notification is in flight may or may not receive that notification; once
// Unsubscribe has returned, no notification started afterwards reaches it.
type Registry[T any] struct {
	mu        sync.RWMutex
	listeners map[string]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{listeners: make(map[string]T)}
}

// Subscribe stores listener and returns its key.
func (r *Registry[T]) Subscribe(listener T) string {
	key := uuid.NewString()

	r.mu.Lock()
	r.listeners[key] = listener
	r.mu.Unlock()

	return key
}

// Unsubscribe removes the listener stored under key. It reports whether the
// key was present.
func (r *Registry[T]) Unsubscribe(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[key]; !ok {
		return false
	}
	delete(r.listeners, key)
	return true
}

// Len returns the number of listeners.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Notify calls fn for every listener in the current snapshot. Listeners that
// were unsubscribed after the snapshot was taken are skipped.
func (r *Registry[T]) Notify(fn func(T)) {
	for _, e := range r.snapshot() {
		if !r.has(e.key) {
			continue
		}
		fn(e.listener)
	}
}

func (r *Registry[T]) snapshot() []entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entry[T], 0, len(r.listeners))
	for k, l := range r.listeners {
		out = append(out, entry[T]{key: k, listener: l})
	}
	return out
}

func (r *Registry[T]) has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.listeners[key]
	return ok
}
