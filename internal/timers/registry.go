// Package timers schedules per-entity delayed callbacks such as online
// status expiry and restriction expiry.
package timers

import (
	"time"
)

// Registry holds at most one pending timeout per key. Callbacks are handed to
// post, which is expected to run them on the cache's owner goroutine; a
// timeout that was replaced or cancelled after being posted is dropped there.
//
// Registry itself is not safe for concurrent use: Set, Cancel and the posted
// callbacks must all run on the owner goroutine.
type Registry[K comparable] struct {
	clock   Clock
	post    func(func())
	onFire  func(K)
	entries map[K]*entry
	gen     uint64
}

type entry struct {
	at    time.Time
	gen   uint64
	timer Timer
}

// NewRegistry creates a registry calling onFire for each expired key.
func NewRegistry[K comparable](clock Clock, post func(func()), onFire func(K)) *Registry[K] {
	return &Registry[K]{
		clock:   clock,
		post:    post,
		onFire:  onFire,
		entries: make(map[K]*entry),
	}
}

// Set arms the timeout for key to fire at the given moment, replacing any
// earlier one. A moment in the past fires on the next loop turn.
func (r *Registry[K]) Set(key K, at time.Time) {
	if e, ok := r.entries[key]; ok {
		if e.at.Equal(at) {
			return
		}
		e.timer.Stop()
	}
	r.gen++
	gen := r.gen
	d := at.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	e := &entry{at: at, gen: gen}
	e.timer = r.clock.AfterFunc(d, func() {
		r.post(func() { r.fire(key, gen) })
	})
	r.entries[key] = e
}

// SetIfEarlier arms the timeout only if none is pending or the pending one
// fires later than at.
func (r *Registry[K]) SetIfEarlier(key K, at time.Time) {
	if e, ok := r.entries[key]; ok && !e.at.After(at) {
		return
	}
	r.Set(key, at)
}

// Cancel drops the pending timeout for key, if any.
func (r *Registry[K]) Cancel(key K) {
	if e, ok := r.entries[key]; ok {
		e.timer.Stop()
		delete(r.entries, key)
	}
}

// Has reports whether a timeout is pending for key.
func (r *Registry[K]) Has(key K) bool {
	_, ok := r.entries[key]
	return ok
}

// Deadline returns when the pending timeout for key fires.
func (r *Registry[K]) Deadline(key K) (time.Time, bool) {
	e, ok := r.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

// Len returns the number of pending timeouts.
func (r *Registry[K]) Len() int {
	return len(r.entries)
}

// Stop cancels every pending timeout.
func (r *Registry[K]) Stop() {
	for k, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, k)
	}
}

func (r *Registry[K]) fire(key K, gen uint64) {
	e, ok := r.entries[key]
	if !ok || e.gen != gen {
		return
	}
	delete(r.entries, key)
	r.onFire(key)
}
