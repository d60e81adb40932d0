// Package loader resolves ids to records through a chain of tiers (memory,
// then persistent storage, then network), coalescing concurrent requests for
// the same id.
package loader

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is reported when the last tier completed without
	// producing the record.
	ErrNotFound = errors.New("not found")
	// ErrClosed is reported to callers still waiting when the loader shuts
	// down.
	ErrClosed = errors.New("loader closed")
)

// Fetch runs off the owner goroutine and returns a function that applies
// its result on the owner goroutine. A nil apply with a nil error means the
// tier had nothing.
type Fetch[K comparable] func(ctx context.Context, key K) (apply func(), err error)

// Tier is one level of the lookup chain. Skip and Start run on the owner
// goroutine: Skip passes the key to the next tier without fetching, Start
// runs just before Fetch is launched.
type Tier[K comparable] struct {
	Name  string
	Fetch Fetch[K]
	Skip  func(key K) bool
	Start func(key K)
}

// Callback receives the outcome of a load on the owner goroutine.
type Callback[V any] func(V, error)

// Loader is not safe for concurrent use: Load, Close and the completions
// delivered through post must run on one goroutine.
type Loader[K comparable, V any] struct {
	get    func(K) (V, bool)
	tiers  []Tier[K]
	post   func(func())
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	pending map[K]*request[V]
	fetches []int
	closed  bool
}

type request[V any] struct {
	waiters []Callback[V]
	tries   int
	tier    int
}

// New creates a loader. get is the memory tier and never does I/O; tiers are
// consulted in order after it. post schedules a function on the owner
// goroutine.
func New[K comparable, V any](get func(K) (V, bool), post func(func()), logger *zap.Logger, tiers ...Tier[K]) *Loader[K, V] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader[K, V]{
		get:     get,
		tiers:   tiers,
		post:    post,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[K]*request[V]),
		fetches: make([]int, len(tiers)),
	}
}

// Load resolves key and calls done exactly once. If the record is in memory,
// done runs before Load returns. tries bounds how many times the last tier
// is asked when it succeeds without producing the record.
func (l *Loader[K, V]) Load(key K, tries int, done Callback[V]) {
	if v, ok := l.get(key); ok {
		done(v, nil)
		return
	}
	if l.closed {
		var zero V
		done(zero, ErrClosed)
		return
	}
	if r, ok := l.pending[key]; ok {
		r.waiters = append(r.waiters, done)
		return
	}
	if tries < 1 {
		tries = 1
	}
	r := &request[V]{waiters: []Callback[V]{done}, tries: tries}
	l.pending[key] = r
	l.run(key, r, 0)
}

// Reload skips the memory check and starts at the last tier. Callers joining
// an outstanding request share it.
func (l *Loader[K, V]) Reload(key K, done Callback[V]) {
	if l.closed {
		var zero V
		done(zero, ErrClosed)
		return
	}
	if r, ok := l.pending[key]; ok {
		r.waiters = append(r.waiters, done)
		return
	}
	r := &request[V]{waiters: []Callback[V]{done}, tries: 1}
	l.pending[key] = r
	l.run(key, r, len(l.tiers)-1)
}

func (l *Loader[K, V]) run(key K, r *request[V], tier int) {
	if tier >= len(l.tiers) {
		var zero V
		l.resolve(key, r, zero, ErrNotFound)
		return
	}
	t := l.tiers[tier]
	if t.Skip != nil && tier < len(l.tiers)-1 && t.Skip(key) {
		l.run(key, r, tier+1)
		return
	}
	r.tier = tier
	l.fetches[tier]++
	if t.Start != nil {
		t.Start(key)
	}
	fetch := t.Fetch
	ctx := l.ctx
	go func() {
		apply, err := fetch(ctx, key)
		l.post(func() { l.complete(key, r, tier, apply, err) })
	}()
}

func (l *Loader[K, V]) complete(key K, r *request[V], tier int, apply func(), err error) {
	if l.pending[key] != r {
		// Resolved by Close.
		return
	}
	if apply != nil {
		apply()
	}
	if v, ok := l.get(key); ok {
		l.resolve(key, r, v, nil)
		return
	}

	last := len(l.tiers) - 1
	if tier < last {
		if err != nil {
			l.logger.Debug("Tier failed, falling through",
				zap.String("tier", l.tiers[tier].Name), zap.Any("key", key), zap.Error(err))
		}
		l.run(key, r, tier+1)
		return
	}

	if err == nil && r.tries > 1 {
		r.tries--
		l.run(key, r, last)
		return
	}
	if err == nil {
		err = ErrNotFound
	}
	var zero V
	l.resolve(key, r, zero, err)
}

func (l *Loader[K, V]) resolve(key K, r *request[V], v V, err error) {
	delete(l.pending, key)
	for _, cb := range r.waiters {
		cb(v, err)
	}
}

// Pending reports whether a load for key is outstanding.
func (l *Loader[K, V]) Pending(key K) bool {
	_, ok := l.pending[key]
	return ok
}

// Waiters returns how many callers are waiting on key.
func (l *Loader[K, V]) Waiters(key K) int {
	if r, ok := l.pending[key]; ok {
		return len(r.waiters)
	}
	return 0
}

// Fetches returns how many times the named tier was consulted.
func (l *Loader[K, V]) Fetches(name string) int {
	for i, t := range l.tiers {
		if t.Name == name {
			return l.fetches[i]
		}
	}
	return 0
}

// Close fails every outstanding load with reason (ErrClosed if nil) and
// cancels the tiers' context.
func (l *Loader[K, V]) Close(reason error) {
	if reason == nil {
		reason = ErrClosed
	}
	l.closed = true
	l.cancel()
	pending := l.pending
	l.pending = make(map[K]*request[V])
	var zero V
	for _, r := range pending {
		for _, cb := range r.waiters {
			cb(zero, reason)
		}
	}
}
