// Package notification provides an in-process watcher: enforcers sharing a
// hub see each other's policy mutations and reload. It is the local
// stand-in for cross-process watcher transports.
package notification

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans update notifications out to every subscribed watcher except the
// one that published.
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{watchers: map[string]*Watcher{}}
}

// NewWatcher subscribes a new watcher to the hub.
func (h *Hub) NewWatcher() *Watcher {
	w := &Watcher{id: uuid.New().String(), hub: h}
	h.mu.Lock()
	h.watchers[w.id] = w
	h.mu.Unlock()
	return w
}

func (h *Hub) publish(from string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, w := range h.watchers {
		if id == from {
			// The publisher already holds the change locally.
			continue
		}
		w.notify()
	}
}

// Watcher implements the driven.Watcher port over a Hub.
type Watcher struct {
	id  string
	hub *Hub

	mu       sync.Mutex
	callback func()
}

// SetUpdateCallback registers the function invoked when another watcher on
// the hub publishes an update.
func (w *Watcher) SetUpdateCallback(fn func()) error {
	w.mu.Lock()
	w.callback = fn
	w.mu.Unlock()
	return nil
}

// Update publishes a local mutation to the other watchers on the hub.
func (w *Watcher) Update() error {
	w.hub.publish(w.id)
	return nil
}

// Close unsubscribes the watcher from the hub.
func (w *Watcher) Close() error {
	w.hub.mu.Lock()
	delete(w.hub.watchers, w.id)
	w.hub.mu.Unlock()
	return nil
}

func (w *Watcher) notify() {
	w.mu.Lock()
	fn := w.callback
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}
