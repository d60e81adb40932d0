package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/notify"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/telegram"
)

func TestAccount_MissesMemoryAndStoreThenFetches(t *testing.T) {
	h := newHarness(t)
	h.ft.update(func(f *fakeTransport) {
		f.accounts[42] = domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada"}
	})

	a, err := h.m.Account(h.ctx(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Ada", a.FirstName)
	assert.Equal(t, 1, h.store.Gets(persist.EntityKey(domain.AccountRef(42))))
	assert.Equal(t, 1, h.ft.count("GetAccounts"))

	ups := h.updatesFor(domain.AccountRef(42))
	require.NotEmpty(t, ups)
	assert.IsType(t, notify.AccountUpdated{}, ups[0])

	// A second read is answered from memory, synchronously.
	h.do(func() {
		answered := false
		h.m.accountLoader.Load(42, 1, func(got domain.Account, err error) {
			answered = true
			assert.NoError(t, err)
			assert.Equal(t, int64(4242), got.AccessHash)
		})
		assert.True(t, answered)
	})
	assert.Equal(t, 1, h.store.Gets(persist.EntityKey(domain.AccountRef(42))))
	assert.Equal(t, 1, h.ft.count("GetAccounts"))
}

func TestAccount_ConcurrentReadsShareOneFetch(t *testing.T) {
	h := newHarness(t)
	h.ft.update(func(f *fakeTransport) {
		f.accounts[42] = domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada"}
	})
	gate := h.ft.gate("GetAccounts")

	const n = 8
	var wg sync.WaitGroup
	got := make([]domain.Account, n)
	errs := make([]error, n)
	ctx := h.ctx()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = h.m.Account(ctx, 42)
		}(i)
	}
	h.eventually(func() bool { return h.m.accountLoader.Waiters(42) == n })
	close(gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, got[0], got[i])
	}
	assert.Equal(t, 1, h.ft.count("GetAccounts"))
	assert.Equal(t, 1, h.store.Gets(persist.EntityKey(domain.AccountRef(42))))
}

func TestAccount_AbsentEverywhereIsNotFound(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.LoadTries = 2 })

	_, err := h.m.Account(h.ctx(), 43)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, h.ft.count("GetAccounts"))
}

func TestAccount_ServedFromStoreWithoutNetwork(t *testing.T) {
	store := persist.NewMemoryStorage()
	a := domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada", CacheVersion: accountCacheVersion}
	store.Put(persist.EntityKey(domain.AccountRef(42)), persist.EncodeAccount(&a))
	h := startHarness(t, newFakeTransport(), store)

	got, err := h.m.Account(h.ctx(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Zero(t, h.ft.count("GetAccounts"))
}

func TestAccount_CorruptStoredRecordFallsThrough(t *testing.T) {
	store := persist.NewMemoryStorage()
	store.Put(persist.EntityKey(domain.AccountRef(42)), []byte{0xff, 0x01})
	ft := newFakeTransport()
	ft.accounts[42] = domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada"}
	h := startHarness(t, ft, store)

	got, err := h.m.Account(h.ctx(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, 1, h.ft.count("GetAccounts"))
}

func TestAccountFull_StaleServedWhileRefreshing(t *testing.T) {
	h := newHarness(t)
	h.ft.update(func(f *fakeTransport) {
		f.accounts[42] = domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada"}
	})

	first, err := h.m.AccountFull(h.ctx(), 42, false)
	require.NoError(t, err)
	assert.Equal(t, "about Ada", first.About)
	assert.Equal(t, 1, h.ft.count("GetAccountFull"))

	// Fresh: no fetch.
	_, err = h.m.AccountFull(h.ctx(), 42, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.ft.count("GetAccountFull"))

	h.clock.Advance(2 * h.m.opts.FullInfoTTL)
	gate := h.ft.gate("GetAccountFull")
	stale, err := h.m.AccountFull(h.ctx(), 42, false)
	require.NoError(t, err)
	assert.Equal(t, first.ExpiresAt, stale.ExpiresAt)
	close(gate)
	h.eventually(func() bool {
		r := h.m.accountFulls[42]
		return !r.IsExpired(h.m.now())
	})
	assert.Equal(t, 2, h.ft.count("GetAccountFull"))
}

func TestBasicGroupFull_NonMemberIsInaccessible(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.do(func() {
		h.m.ingest(&telegram.Entities{BasicGroups: []telegram.BasicGroupSnapshot{{
			Group: domain.BasicGroup{ID: 9, Title: "left", Status: domain.LeftStatus(), Version: 1},
		}}})
	})

	_, err := h.m.BasicGroupFull(h.ctx(), 9, false)
	require.ErrorIs(t, err, ErrInaccessible)
	assert.Zero(t, h.ft.count("GetBasicGroupFull"))
}

func TestShutdown_PendingCallsUnavailable(t *testing.T) {
	h := newHarness(t)
	gate := h.ft.gate("GetAccounts")
	defer close(gate)

	errc := make(chan error, 1)
	go func() {
		_, err := h.m.Account(context.Background(), 42)
		errc <- err
	}()
	h.eventually(func() bool { return h.m.accountLoader.Waiters(42) == 1 })

	h.m.Close()
	require.ErrorIs(t, <-errc, ErrUnavailable)

	_, err := h.m.Channel(context.Background(), 7)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestAccountFull_ExpiredInMemorySkipsStore(t *testing.T) {
	h := newHarness(t)
	h.ft.update(func(f *fakeTransport) {
		f.accounts[42] = domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada"}
	})
	_, err := h.m.AccountFull(h.ctx(), 42, false)
	require.NoError(t, err)
	fullKey := persist.FullKey(domain.AccountRef(42))
	require.Equal(t, 1, h.store.Gets(fullKey))

	h.clock.Advance(2 * time.Hour)
	done := make(chan error, 1)
	h.do(func() {
		h.m.accountFullLoader.Load(42, 1, func(_ domain.AccountFull, err error) { done <- err })
	})
	require.NoError(t, <-done)

	assert.Equal(t, 1, h.store.Gets(fullKey))
	assert.Equal(t, 2, h.ft.count("GetAccountFull"))
}
