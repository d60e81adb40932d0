package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedStorage blocks every commit until the test releases it.
type gatedStorage struct {
	*MemoryStorage
	gate    chan struct{}
	mu      sync.Mutex
	started []string
}

func (g *gatedStorage) Commit(ctx context.Context, key string, value []byte, upTo int64) error {
	g.mu.Lock()
	g.started = append(g.started, string(value))
	g.mu.Unlock()
	<-g.gate
	return g.MemoryStorage.Commit(ctx, key, value, upTo)
}

type loop struct {
	tasks chan func()
}

func newLoop() *loop {
	return &loop{tasks: make(chan func(), 64)}
}

func (l *loop) post(f func()) { l.tasks <- f }

func (l *loop) runOne(t *testing.T) {
	t.Helper()
	select {
	case f := <-l.tasks:
		f()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestWriteBack_CommitsAndClearsLog(t *testing.T) {
	mem := NewMemoryStorage()
	l := newLoop()
	w := NewWriteBack(mem, l.post, zap.NewNop())

	w.Save("us1", []byte("v1"))
	assert.True(t, w.Saving("us1"))
	l.runOne(t)

	assert.False(t, w.Saving("us1"))
	assert.Equal(t, 1, mem.Commits("us1"))
	assert.Zero(t, mem.LogLen())
}

func TestWriteBack_UnchangedValueWrittenOnce(t *testing.T) {
	mem := NewMemoryStorage()
	l := newLoop()
	w := NewWriteBack(mem, l.post, zap.NewNop())

	w.Save("gr1", []byte("same"))
	l.runOne(t)
	w.Save("gr1", []byte("same"))

	assert.False(t, w.Saving("gr1"))
	assert.Equal(t, 1, mem.Commits("gr1"))
	assert.Zero(t, mem.LogLen())
}

func TestWriteBack_SameValueDuringSaveNotQueued(t *testing.T) {
	g := &gatedStorage{MemoryStorage: NewMemoryStorage(), gate: make(chan struct{})}
	l := newLoop()
	w := NewWriteBack(g, l.post, zap.NewNop())

	w.Save("us7", []byte("v"))
	w.Save("us7", []byte("v"))
	assert.Equal(t, 1, g.LogLen())

	g.gate <- struct{}{}
	l.runOne(t)
	assert.False(t, w.Saving("us7"))
	assert.Equal(t, 1, g.Commits("us7"))
}

func TestWriteBack_ChangesDuringSaveCoalesce(t *testing.T) {
	g := &gatedStorage{MemoryStorage: NewMemoryStorage(), gate: make(chan struct{})}
	l := newLoop()
	w := NewWriteBack(g, l.post, zap.NewNop())

	w.Save("ch1", []byte("a"))
	w.Save("ch1", []byte("b"))
	w.Save("ch1", []byte("c"))
	assert.Equal(t, 3, g.LogLen())

	g.gate <- struct{}{} // finish "a"
	l.runOne(t)
	assert.True(t, w.Saving("ch1"), "exactly one follow-up save expected")

	g.gate <- struct{}{} // finish "c"
	l.runOne(t)
	assert.False(t, w.Saving("ch1"))

	g.mu.Lock()
	assert.Equal(t, []string{"a", "c"}, g.started)
	g.mu.Unlock()
	assert.Equal(t, 2, g.Commits("ch1"))
	assert.Zero(t, g.LogLen())

	v, err := g.Get(context.Background(), "ch1")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), v)
}

func TestWriteBack_FailedCommitKeepsLogForReplay(t *testing.T) {
	mem := NewMemoryStorage()
	mem.FailCommit = func(string) error { return errors.New("disk full") }
	l := newLoop()
	w := NewWriteBack(mem, l.post, zap.NewNop(), WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}))

	w.Save("us7", []byte("x"))
	l.runOne(t)
	assert.Equal(t, 1, mem.LogLen())

	restarted := NewWriteBack(mem, l.post, zap.NewNop())
	entries, err := restarted.Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "us7", entries[0].Key)
	assert.Equal(t, []byte("x"), entries[0].Value)
}

func TestWriteBack_ReplayKeepsLatestPerKey(t *testing.T) {
	mem := NewMemoryStorage()
	ctx := context.Background()
	_, _ = mem.AppendLog(ctx, "us1", []byte("1"))
	_, _ = mem.AppendLog(ctx, "gr2", []byte("2"))
	_, _ = mem.AppendLog(ctx, "us1", []byte("3"))

	w := NewWriteBack(mem, newLoop().post, zap.NewNop())
	entries, err := w.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "gr2", entries[0].Key)
	assert.Equal(t, "us1", entries[1].Key)
	assert.Equal(t, []byte("3"), entries[1].Value)
}

func TestWriteBack_CloseWaitsForCommits(t *testing.T) {
	g := &gatedStorage{MemoryStorage: NewMemoryStorage(), gate: make(chan struct{})}
	l := newLoop()
	w := NewWriteBack(g, l.post, zap.NewNop())

	w.Save("us1", []byte("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(g.gate)
	}()
	err := w.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Closed queues drop new changes.
	w.Save("us2", []byte("b"))
	assert.False(t, w.Saving("us2"))
}
