package timers_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgcache/internal/timers"
)

func newRegistry(t *testing.T) (*timers.Registry[int64], *timers.ManualClock, *[]int64) {
	t.Helper()
	clock := timers.NewManualClock(time.Unix(1_000_000, 0))
	var fired []int64
	r := timers.NewRegistry(clock, func(f func()) { f() }, func(id int64) {
		fired = append(fired, id)
	})
	return r, clock, &fired
}

func TestRegistry_FiresAtDeadline(t *testing.T) {
	r, clock, fired := newRegistry(t)

	r.Set(42, clock.Now().Add(10*time.Second))
	require.True(t, r.Has(42))

	clock.Advance(9 * time.Second)
	assert.Empty(t, *fired)

	clock.Advance(time.Second)
	assert.Equal(t, []int64{42}, *fired)
	assert.False(t, r.Has(42))
}

func TestRegistry_SetReplaces(t *testing.T) {
	r, clock, fired := newRegistry(t)

	r.Set(1, clock.Now().Add(5*time.Second))
	r.Set(1, clock.Now().Add(20*time.Second))

	clock.Advance(10 * time.Second)
	assert.Empty(t, *fired)
	assert.Equal(t, 1, r.Len())

	clock.Advance(10 * time.Second)
	assert.Equal(t, []int64{1}, *fired)
}

func TestRegistry_SetIfEarlier(t *testing.T) {
	r, clock, _ := newRegistry(t)

	at := clock.Now().Add(5 * time.Second)
	r.Set(7, at)
	r.SetIfEarlier(7, clock.Now().Add(time.Minute))

	got, ok := r.Deadline(7)
	require.True(t, ok)
	assert.True(t, got.Equal(at))

	earlier := clock.Now().Add(time.Second)
	r.SetIfEarlier(7, earlier)
	got, _ = r.Deadline(7)
	assert.True(t, got.Equal(earlier))
}

func TestRegistry_Cancel(t *testing.T) {
	r, clock, fired := newRegistry(t)

	r.Set(3, clock.Now().Add(time.Second))
	r.Cancel(3)
	clock.Advance(time.Minute)

	assert.Empty(t, *fired)
	assert.Zero(t, r.Len())
}

func TestRegistry_StaleCallbackDropped(t *testing.T) {
	clock := timers.NewManualClock(time.Unix(0, 0))
	var queued []func()
	var fired []int64
	r := timers.NewRegistry(clock, func(f func()) { queued = append(queued, f) }, func(id int64) {
		fired = append(fired, id)
	})

	r.Set(5, clock.Now().Add(time.Second))
	clock.Advance(time.Second)
	require.Len(t, queued, 1)

	// Re-armed before the posted callback ran on the owner loop.
	r.Set(5, clock.Now().Add(time.Hour))
	queued[0]()

	assert.Empty(t, fired)
	assert.True(t, r.Has(5))
}

func TestRegistry_PastDeadlineFiresImmediately(t *testing.T) {
	r, clock, fired := newRegistry(t)

	r.Set(9, clock.Now().Add(-time.Minute))
	clock.Advance(0)

	assert.Equal(t, []int64{9}, *fired)
}
