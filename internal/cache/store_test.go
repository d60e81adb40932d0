package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/notify"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/telegram"
)

func TestCommit_UnchangedRecordSavedAndAnnouncedOnce(t *testing.T) {
	h := newHarness(t)
	a := domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada"}
	h.do(func() {
		h.m.applyAccount(a)
		h.m.applyAccount(a)
	})
	h.flushSaves()
	h.do(func() { h.m.applyAccount(a) })
	h.flushSaves()

	assert.Equal(t, 1, h.store.Commits(persist.EntityKey(domain.AccountRef(42))))
	var accounts int
	for _, u := range h.updatesFor(domain.AccountRef(42)) {
		if _, ok := u.(notify.AccountUpdated); ok {
			accounts++
		}
	}
	assert.Equal(t, 1, accounts)

	a.LastName = "Lovelace"
	h.do(func() { h.m.applyAccount(a) })
	h.flushSaves()
	assert.Equal(t, 2, h.store.Commits(persist.EntityKey(domain.AccountRef(42))))
}

func TestRestart_ReplaysPendingLog(t *testing.T) {
	store := persist.NewMemoryStorage()
	a := domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada", CacheVersion: accountCacheVersion}
	key := persist.EntityKey(domain.AccountRef(42))
	// A change that was logged but never written.
	_, err := store.AppendLog(context.Background(), key, persist.EncodeAccount(&a))
	require.NoError(t, err)

	h := startHarness(t, newFakeTransport(), store)
	got, err := h.m.Account(h.ctx(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Zero(t, h.ft.count("GetAccounts"))

	h.flushSaves()
	assert.Zero(t, store.LogLen())
	v, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, persist.EncodeAccount(&a), v)
}

func TestRestart_SelfIDRestored(t *testing.T) {
	ft := newFakeTransport()
	store := persist.NewMemoryStorage()
	h := startHarness(t, ft, store)
	h.login()
	h.m.Close()

	h2 := startHarness(t, ft, store)
	id, err := h2.m.SelfID(h2.ctx())
	require.NoError(t, err)
	assert.Equal(t, selfID, id)
}

func TestRestart_OutdatedRecordRepaired(t *testing.T) {
	store := persist.NewMemoryStorage()
	old := domain.Account{ID: 42, AccessHash: 4242, FirstName: "Old", CacheVersion: accountCacheVersion - 1}
	store.Put(persist.EntityKey(domain.AccountRef(42)), persist.EncodeAccount(&old))
	ft := newFakeTransport()
	ft.accounts[42] = domain.Account{ID: 42, AccessHash: 4242, FirstName: "New"}
	h := startHarness(t, ft, store, func(o *Options) { o.RepairDelay = time.Second })

	got, err := h.m.Account(h.ctx(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Old", got.FirstName)

	h.clock.Advance(time.Second)
	h.eventually(func() bool { return h.m.accounts[42].FirstName == "New" })
	assert.Equal(t, 1, ft.count("GetAccounts"))
}

func TestPresence_OnlineExpires(t *testing.T) {
	h := newHarness(t)
	expires := int32(epoch.Add(30 * time.Second).Unix())
	h.do(func() {
		h.m.applyAccount(domain.Account{ID: 50, AccessHash: 5, FirstName: "Eve"})
	})
	h.m.OnAccountPresence(50, domain.OnlinePresence(expires))
	h.do(func() { assert.True(t, h.m.presenceTimers.Has(50)) })

	h.clock.Advance(30 * time.Second)
	h.eventually(func() bool {
		return h.m.accounts[50].Presence == domain.OfflinePresence(expires)
	})

	var statuses []domain.Presence
	for _, u := range h.updatesFor(domain.AccountRef(50)) {
		if s, ok := u.(notify.AccountStatusUpdated); ok {
			statuses = append(statuses, s.Presence)
		}
	}
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.OfflinePresence(expires), statuses[len(statuses)-1])
}

func TestPresence_SelfNeverExpiresLocally(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.m.OnAccountPresence(selfID, domain.OnlinePresence(int32(epoch.Add(time.Minute).Unix())))
	h.do(func() {
		assert.False(t, h.m.presenceTimers.Has(selfID))
		assert.Equal(t, int32(epoch.Add(time.Minute).Unix()), h.m.selfOnline)
	})
}

func TestEvents_RoutedToTheLoop(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.m.OnEntities(&telegram.Entities{Accounts: []domain.Account{{ID: 60, AccessHash: 6, FirstName: "Fay"}}})
	h.m.OnAccountName(60, "Faye", "Smith", "faye")
	h.m.OnAccountPhone(60, "15550060")
	h.m.OnAccountPhoto(60, domain.Photo{ID: 77})
	h.m.OnSecretChat(domain.SecretChat{ID: 8, UserID: 60, State: domain.SecretChatActive})
	h.m.OnSecretChat(domain.SecretChat{ID: 8, UserID: 60, State: domain.SecretChatActive, TTL: 30})

	a, err := h.m.Account(h.ctx(), 60)
	require.NoError(t, err)
	assert.Equal(t, "Faye", a.FirstName)
	assert.Equal(t, "faye", a.Username)
	assert.Equal(t, "15550060", a.Phone)
	assert.Equal(t, int64(77), a.Photo.ID)

	s, err := h.m.SecretChat(h.ctx(), 8)
	require.NoError(t, err)
	assert.Equal(t, int32(30), s.TTL)

	snap, err := h.m.Snapshot(h.ctx())
	require.NoError(t, err)
	require.Len(t, snap.Accounts, 2)
	assert.Equal(t, selfID, snap.Accounts[0].ID)
	require.Len(t, snap.SecretChats, 1)
}
