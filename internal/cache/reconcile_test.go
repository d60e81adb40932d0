package cache

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

func TestReconcileDelta(t *testing.T) {
	for _, tt := range []struct {
		current, version int32
		want             outcome
	}{
		{5, 4, outcomeDuplicate},
		{5, 5, outcomeDuplicate},
		{5, 6, outcomeApply},
		{5, 7, outcomeGap},
		{0, 1, outcomeApply},
	} {
		assert.Equal(t, tt.want, reconcileDelta(tt.current, tt.version), "%d -> %d", tt.current, tt.version)
	}
}

func TestReconcileSnapshot(t *testing.T) {
	assert.Equal(t, outcomeStale, reconcileSnapshot(5, 4))
	assert.Equal(t, outcomeApply, reconcileSnapshot(5, 5))
	assert.Equal(t, outcomeApply, reconcileSnapshot(5, 9))
}

func groupSnapshot(id domain.ChatID, version, count int32) telegram.BasicGroupSnapshot {
	return telegram.BasicGroupSnapshot{Group: domain.BasicGroup{
		ID:               id,
		Title:            "group",
		ParticipantCount: count,
		Status:           domain.RegularStatus(),
		IsActive:         true,
		Version:          version,
	}}
}

func TestBasicGroup_GapAppliedThenRepaired(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.RepairDelay = time.Second })
	h.login()
	const gid domain.ChatID = 500
	ref := domain.BasicGroupRef(gid)

	h.do(func() { h.m.applyGroupSnapshot(groupSnapshot(gid, 5, 3)) })
	h.ft.update(func(f *fakeTransport) {
		f.groups[gid] = groupSnapshot(gid, 9, 5)
		f.groupFulls[gid] = domain.BasicGroupFull{Version: 9, CreatorUserID: 100, Members: regularMembers(5, 100)}
	})

	h.m.OnBasicGroupMemberAdded(gid, 200, 100, 1, 7)
	h.do(func() {
		r := h.m.groups[gid]
		assert.Equal(t, int32(7), r.Version)
		assert.Equal(t, int32(4), r.ParticipantCount, "a gap is applied best effort")
		assert.True(t, h.m.repairTimers.Has(ref))
	})

	h.clock.Advance(time.Second)
	h.eventually(func() bool { return h.m.groups[gid].Version == 9 })

	// Superseded by the repair.
	h.m.OnBasicGroupMemberRemoved(gid, 200, 6)
	h.do(func() {
		r := h.m.groups[gid]
		assert.Equal(t, int32(9), r.Version)
		assert.Equal(t, int32(5), r.ParticipantCount)
		assert.Len(t, h.m.groupFulls[gid].Members, 5)
	})
	assert.Equal(t, 1, h.ft.count("GetBasicGroupFull"))
}

func TestBasicGroup_VersionNeverDecreases(t *testing.T) {
	h := newHarness(t)
	h.login()
	const gid domain.ChatID = 501
	rng := rand.New(rand.NewSource(1))

	h.do(func() {
		m := h.m
		m.applyGroupSnapshot(groupSnapshot(gid, 1, 10))
		r := m.groups[gid]
		for i := 0; i < 500; i++ {
			before, count := r.Version, r.ParticipantCount
			v := before + int32(rng.Intn(6)) - 2
			user := domain.UserID(1000 + rng.Intn(50))
			isDelta := true
			switch rng.Intn(4) {
			case 0:
				m.onGroupMemberAdded(gid, user, selfID, 1, v)
			case 1:
				m.onGroupMemberRemoved(gid, user, v)
			case 2:
				m.onGroupMemberAdmin(gid, user, rng.Intn(2) == 0, v)
			default:
				isDelta = false
				m.applyGroupSnapshot(groupSnapshot(gid, v, int32(rng.Intn(20))))
			}
			require.GreaterOrEqual(t, r.Version, before, "step %d", i)
			require.GreaterOrEqual(t, r.ParticipantCount, int32(0))
			if isDelta && v <= before {
				require.Equal(t, before, r.Version, "step %d", i)
				require.Equal(t, count, r.ParticipantCount, "duplicate delta changed count at step %d", i)
			}
		}
	})
}

func TestBasicGroup_StaleSnapshotRejected(t *testing.T) {
	h := newHarness(t)
	h.login()
	const gid domain.ChatID = 502

	h.do(func() {
		h.m.applyGroupSnapshot(groupSnapshot(gid, 8, 4))
		old := groupSnapshot(gid, 6, 2)
		old.Group.Title = "old title"
		h.m.applyGroupSnapshot(old)

		r := h.m.groups[gid]
		assert.Equal(t, int32(8), r.Version)
		assert.Equal(t, "group", r.Title)
		assert.True(t, h.m.repairTimers.Has(domain.BasicGroupRef(gid)))
	})
}

func TestBasicGroup_FacetVersionsIndependent(t *testing.T) {
	h := newHarness(t)
	h.login()
	const gid domain.ChatID = 503
	perms := func(invite bool) domain.Permissions {
		p := domain.AllPermissions()
		p.CanInviteUsers = invite
		return p
	}

	h.do(func() {
		m := h.m
		m.applyGroupSnapshot(groupSnapshot(gid, 5, 3))
		r := m.groups[gid]

		m.onGroupDefaultPermissions(gid, perms(false), 2)
		assert.Equal(t, int32(2), r.DefaultPermissionsVersion)
		assert.False(t, r.DefaultPermissions.CanInviteUsers)

		m.onGroupDefaultPermissions(gid, perms(true), 1)
		assert.False(t, r.DefaultPermissions.CanInviteUsers, "older facet change ignored")

		m.onGroupMemberAdded(gid, 300, selfID, 1, 6)
		assert.Equal(t, int32(6), r.Version)
		assert.Equal(t, int32(2), r.DefaultPermissionsVersion, "general version does not move the facet")

		m.onGroupPinned(gid, 77, 3)
		m.onGroupPinned(gid, 66, 2)
		assert.Equal(t, int32(3), r.PinnedMessageVersion)
	})
}

func TestBasicGroup_MigrationCreatesChannelReference(t *testing.T) {
	h := newHarness(t)
	h.login()
	const gid domain.ChatID = 504

	h.do(func() {
		h.m.applyGroupSnapshot(groupSnapshot(gid, 2, 3))
		s := groupSnapshot(gid, 3, 3)
		s.Group.MigratedTo = 9000
		s.MigratedToAccessHash = 90
		h.m.applyGroupSnapshot(s)

		r := h.m.groups[gid]
		assert.True(t, r.IsMigrated())
		assert.False(t, r.IsActive)
		c, ok := h.m.channels[9000]
		require.True(t, ok)
		assert.False(t, c.received, "the successor is a placeholder until fetched")
		assert.Equal(t, int64(90), h.m.hashes.get(domain.ChannelRef(9000)))
	})
}

func TestChannel_MinSnapshotKeepsFullData(t *testing.T) {
	h := newHarness(t)
	h.do(func() {
		h.m.applyChannelSnapshot(telegram.ChannelSnapshot{Channel: domain.Channel{
			ID: 70, AccessHash: 7, Title: "news", Username: "news", Status: domain.RegularStatus(), Version: 4, ParticipantCount: 9,
		}})
		h.m.applyChannelSnapshot(telegram.ChannelSnapshot{Channel: domain.Channel{
			ID: 70, Title: "news!", IsMin: true,
		}})
		r := h.m.channels[70]
		assert.Equal(t, "news!", r.Title)
		assert.Equal(t, int64(7), r.AccessHash)
		assert.Equal(t, int32(4), r.Version)
		assert.Equal(t, domain.MemberRegular, r.Status.Kind)
		assert.False(t, r.IsMin)
	})
}

func TestChannel_BanExpires(t *testing.T) {
	h := newHarness(t)
	until := int32(epoch.Add(time.Hour).Unix())
	h.do(func() {
		h.m.applyChannelSnapshot(telegram.ChannelSnapshot{Channel: domain.Channel{
			ID: 71, AccessHash: 7, Title: "c", Status: domain.RestrictedStatus(true, until, domain.Permissions{}),
		}})
		assert.True(t, h.m.statusTimers.Has(domain.ChannelRef(71)))
	})

	h.clock.Advance(time.Hour)
	h.eventually(func() bool { return h.m.channels[71].Status.Kind == domain.MemberRegular })
}

func TestSecretChat_ClosedNeverReopens(t *testing.T) {
	h := newHarness(t)
	h.do(func() {
		m := h.m
		m.applySecretChat(domain.SecretChat{ID: 3, UserID: 42, State: domain.SecretChatWaiting, Layer: 46})
		m.applySecretChat(domain.SecretChat{ID: 3, State: domain.SecretChatActive, Layer: 73})
		m.applySecretChat(domain.SecretChat{ID: 3, Layer: 50})
		r := m.secrets[3]
		assert.Equal(t, domain.SecretChatActive, r.State)
		assert.Equal(t, int32(73), r.Layer)

		m.applySecretChat(domain.SecretChat{ID: 3, State: domain.SecretChatClosed})
		m.applySecretChat(domain.SecretChat{ID: 3, State: domain.SecretChatActive})
		m.applySecretChat(domain.SecretChat{ID: 3, TTL: 60})
		assert.Equal(t, domain.SecretChatClosed, r.State)
		assert.Zero(t, r.TTL)
	})
}

func TestBasicGroup_PinnedMessageVersionedSeparately(t *testing.T) {
	h := newHarness(t)
	const gid domain.ChatID = 505
	ownedGroup(t, h, gid)
	setPinned := func(id int32) {
		h.ft.update(func(f *fakeTransport) {
			full := f.groupFulls[gid]
			full.PinnedMessageID = id
			f.groupFulls[gid] = full
		})
	}
	pinned := func() (id, version int32) {
		h.do(func() { id, version = h.m.groupFulls[gid].PinnedMessageID, h.m.groups[gid].PinnedMessageVersion })
		return id, version
	}

	// A pin arriving while a full snapshot is in flight beats the snapshot.
	setPinned(10)
	gate := h.ft.gate("GetBasicGroupFull")
	h.do(func() { h.m.invalidateGroupFull(gid, true) })
	require.Eventually(t, func() bool { return h.ft.count("GetBasicGroupFull") == 2 }, 5*time.Second, 5*time.Millisecond)
	h.m.OnBasicGroupPinned(gid, []int32{15, 20}, true, 100)
	h.eventually(func() bool { return h.m.groups[gid].PinnedMessageVersion == 100 })
	close(gate)
	h.eventually(func() bool { return !h.m.groupFulls[gid].IsExpired(h.m.now()) })
	id, version := pinned()
	assert.Equal(t, int32(20), id)
	assert.Equal(t, int32(100), version)

	// With no pin in between, the snapshot is current.
	setPinned(30)
	h.do(func() { h.m.invalidateGroupFull(gid, true) })
	h.eventually(func() bool { return h.m.groupFulls[gid].PinnedMessageID == 30 })

	h.m.OnBasicGroupPinned(gid, []int32{7}, false, 101)
	id, _ = pinned()
	assert.Equal(t, int32(30), id, "unpinning another message keeps the current one")

	h.m.OnBasicGroupPinned(gid, []int32{30}, false, 100)
	id, version = pinned()
	assert.Equal(t, int32(30), id, "older pin update ignored")
	assert.Equal(t, int32(101), version)

	h.m.OnBasicGroupPinned(gid, []int32{30}, false, 102)
	id, _ = pinned()
	assert.Zero(t, id)
	h.do(func() { assert.Equal(t, int32(1), h.m.groups[gid].Version, "general version untouched") })
}
