package notify

import (
	"context"
	"sync"
)

// Hub fans updates out to subscribers. Each subscriber has its own unbounded
// queue, so a slow reader never blocks the cache or loses updates.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is a queue of updates for one reader.
type Subscription struct {
	hub    *Hub
	mu     sync.Mutex
	queue  []Update
	signal chan struct{}
	closed bool
}

// Subscribe registers a new reader. Updates published before the call are
// not delivered.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, signal: make(chan struct{}, 1)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(u)
	}
}

func (s *Subscription) push(u Update) {
	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next blocks until an update is available, the subscription is closed or
// ctx is done.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			u := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return u, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, context.Canceled
		}

		select {
		case <-s.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close unregisters the subscription and wakes any blocked Next.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Recorder is a Sink that keeps every update, for inspection.
type Recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *Recorder) Publish(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

// Updates returns a copy of everything published so far.
func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

// Reset forgets recorded updates.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = nil
}

// Fanout publishes to several sinks in order.
type Fanout []Sink

func (f Fanout) Publish(u Update) {
	for _, s := range f {
		s.Publish(u)
	}
}
