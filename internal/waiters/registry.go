// Package waiters parks HTTP requests against a key until a later feed
// observation fulfills them. At most one waiter may be pending per key:
// registering a new one cancels the old one.
package waiters

import (
	"sync"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/openbroker/internal/metrics"
)

type waiter struct {
	ch chan map[string]interface{}
}

// Registry maps keys to at most one pending waiter each.
type Registry struct {
	name    string
	mu      sync.Mutex
	waiters map[string]*waiter
}

// NewRegistry creates an empty registry. The name labels log lines and
// metrics (two keyspaces share this contract: opportunity ids and order
// expressions).
func NewRegistry(name string) *Registry {
	return &Registry{
		name:    name,
		waiters: make(map[string]*waiter),
	}
}

// Register parks a new waiter for key and returns its delivery channel. An
// existing waiter for the same key is cancelled: its channel is closed
// without a payload so the superseded request can finish empty.
func (r *Registry) Register(key string) <-chan map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.waiters[key]; ok {
		close(old.ch)
		log.Debug().
			Str("registry", r.name).
			Str("key", key).
			Msg("Superseding existing waiter")
		metrics.RecordWaiter(r.name, "superseded")
	}

	w := &waiter{ch: make(chan map[string]interface{}, 1)}
	r.waiters[key] = w
	metrics.RecordWaiter(r.name, "registered")
	return w.ch
}

// Fulfill delivers payload to the waiter for key and removes it. An unknown
// key is a no-op: the observation is simply of no interest to any pending
// caller.
func (r *Registry) Fulfill(key string, payload map[string]interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[key]
	if !ok {
		return false
	}
	delete(r.waiters, key)
	w.ch <- payload
	close(w.ch)
	metrics.RecordWaiter(r.name, "fulfilled")
	return true
}

// Has reports whether a waiter is pending for key.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waiters[key]
	return ok
}

// Release removes the waiter for key if ch is still the current one. Used
// when the parked HTTP request goes away before fulfillment.
func (r *Registry) Release(key string, ch <-chan map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.waiters[key]; ok && w.ch == ch {
		delete(r.waiters, key)
		metrics.RecordWaiter(r.name, "released")
	}
}

// Pending returns the number of parked waiters.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
