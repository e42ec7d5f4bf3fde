package transport

import (
	"context"
	"sync"
)

// InFlightRegistry maps response IDs to cancel functions so a DELETE
// can abort a streaming response that is still running. Safe for
// concurrent use.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]context.CancelFunc)}
}

// Register tracks an in-flight response. Its cancel function runs if
// the response is explicitly cancelled before completing.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.entries[id] = cancel
	r.mu.Unlock()
}

// Cancel aborts the response with the given ID. It reports false when
// the ID is unknown, meaning the response already finished or never
// existed.
func (r *InFlightRegistry) Cancel(id string) bool {
	cancel := r.take(id)
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Remove drops a completed response from the registry without
// cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.take(id)
}

// take removes and returns the cancel function for id, or nil.
func (r *InFlightRegistry) take(id string) context.CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel := r.entries[id]
	delete(r.entries, id)
	return cancel
}
