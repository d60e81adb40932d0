package persist

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// WriteBack records every change twice: a synchronous append to the pending
// log, then an asynchronous commit of the full value that also drops the log
// entry. At most one commit per key is in flight; a change arriving during a
// commit is queued and written once that commit finishes, with intermediate
// changes collapsed into the latest.
//
// Save, Replay and the completions delivered through post must all run on
// the same goroutine.
type WriteBack struct {
	storage    Storage
	post       func(func())
	logger     *zap.Logger
	newBackOff func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	keys map[string]*keyState
}

type keyState struct {
	saving   bool
	inflight uint64
	queued   bool
	value    []byte
	seq      int64

	written    uint64
	hasWritten bool
}

// WriteBackOption configures a WriteBack.
type WriteBackOption func(*WriteBack)

// WithBackOff sets the retry policy for failed commits.
func WithBackOff(f func() backoff.BackOff) WriteBackOption {
	return func(w *WriteBack) { w.newBackOff = f }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// NewWriteBack creates a write-back queue over storage. post schedules a
// function on the owner goroutine.
func NewWriteBack(storage Storage, post func(func()), logger *zap.Logger, opts ...WriteBackOption) *WriteBack {
	ctx, cancel := context.WithCancel(context.Background())
	w := &WriteBack{
		storage:    storage,
		post:       post,
		logger:     logger,
		newBackOff: defaultBackOff,
		ctx:        ctx,
		cancel:     cancel,
		keys:       make(map[string]*keyState),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *WriteBack) state(key string) *keyState {
	st, ok := w.keys[key]
	if !ok {
		st = &keyState{}
		w.keys[key] = st
	}
	return st
}

// Save persists value under key. A nil value deletes the key. Saving the
// value that was last committed is a no-op.
func (w *WriteBack) Save(key string, value []byte) {
	if w.ctx.Err() != nil {
		return
	}
	st := w.state(key)
	sum := xxhash.Sum64(value)
	if st.queued {
		if bytes.Equal(st.value, value) {
			return
		}
	} else if st.saving && st.inflight == sum {
		return
	} else if !st.saving && st.hasWritten && st.written == sum {
		return
	}

	seq, err := w.storage.AppendLog(w.ctx, key, value)
	if err != nil {
		// The commit below still runs; only crash safety is lost.
		w.logger.Warn("Failed to append pending log", zap.String("key", key), zap.Error(err))
	} else {
		st.seq = seq
	}

	if st.saving {
		st.queued = true
		st.value = value
		return
	}
	w.start(key, st, value)
}

func (w *WriteBack) start(key string, st *keyState, value []byte) {
	st.saving = true
	st.inflight = xxhash.Sum64(value)
	upTo := st.seq
	ctx := w.ctx

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := backoff.Retry(func() error {
			err := w.storage.Commit(ctx, key, value, upTo)
			if err != nil && ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(w.newBackOff(), ctx))
		w.post(func() { w.finish(key, value, err) })
	}()
}

func (w *WriteBack) finish(key string, value []byte, err error) {
	st := w.state(key)
	st.saving = false
	if err != nil {
		st.hasWritten = false
		w.logger.Error("Failed to write record", zap.String("key", key), zap.Error(err))
	} else {
		st.written = xxhash.Sum64(value)
		st.hasWritten = true
	}

	if !st.queued {
		return
	}
	next := st.value
	st.queued = false
	st.value = nil
	w.start(key, st, next)
}

// Saving reports whether a commit for key is in flight.
func (w *WriteBack) Saving(key string) bool {
	st, ok := w.keys[key]
	return ok && st.saving
}

// Busy returns the number of keys with a commit in flight.
func (w *WriteBack) Busy() int {
	n := 0
	for _, st := range w.keys {
		if st.saving {
			n++
		}
	}
	return n
}

// Replay returns the latest unconfirmed change of every key, in log order.
// It must run before anything else touches the keys it returns.
func (w *WriteBack) Replay(ctx context.Context) ([]LogEntry, error) {
	entries, err := w.storage.PendingLog(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read pending log")
	}
	latest := make(map[string]LogEntry, len(entries))
	for _, e := range entries {
		if cur, ok := latest[e.Key]; !ok || e.Seq > cur.Seq {
			latest[e.Key] = e
		}
	}
	out := make([]LogEntry, 0, len(latest))
	for _, e := range latest {
		w.state(e.Key).seq = e.Seq
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Close stops accepting changes and waits for in-flight commits until ctx
// expires. Unfinished changes stay in the pending log for the next Replay.
func (w *WriteBack) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}
