package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

func TestAdjust_NeverNegative(t *testing.T) {
	assert.Equal(t, int32(0), decrement(0))
	assert.Equal(t, int32(0), adjust(1, -3))
	assert.Equal(t, int32(4), adjust(3, 1))
}

func TestExpectations_ConfirmConsumesEvents(t *testing.T) {
	var e expectations
	op := uuid.New()
	e.expect(5, false, 2, op)

	assert.False(t, e.confirm(5, true), "wrong direction")
	assert.True(t, e.confirm(5, false))
	assert.True(t, e.confirm(5, false))
	assert.False(t, e.confirm(5, false), "both events consumed")

	e.expect(6, true, 1, op)
	e.forget(op)
	assert.False(t, e.confirm(6, true))
}

// ownedGroup sets up a basic group of ten members created by the current
// account, with its member list loaded.
func ownedGroup(t *testing.T, h *harness, gid domain.ChatID) {
	t.Helper()
	h.login()
	snap := groupSnapshot(gid, 1, 10)
	snap.Group.Status = domain.CreatorStatus("", false, true)
	full := domain.BasicGroupFull{
		Version:       1,
		CreatorUserID: selfID,
		Members: append([]domain.Member{member(selfID, domain.CreatorStatus("", false, true))},
			regularMembers(9, 100)...),
	}
	h.ft.update(func(f *fakeTransport) {
		f.groups[gid] = snap
		f.groupFulls[gid] = full
		f.accounts[300] = domain.Account{ID: 300, AccessHash: 3, FirstName: "Newcomer"}
	})
	h.do(func() { h.m.applyGroupSnapshot(snap) })
	got, err := h.m.BasicGroupFull(h.ctx(), gid, false)
	require.NoError(t, err)
	require.Len(t, got.Members, 10)
}

func TestAddMember_RejectionCorrectedByRefresh(t *testing.T) {
	h := newHarness(t)
	const gid domain.ChatID = 600
	ownedGroup(t, h, gid)

	gate := h.ft.gate("AddBasicGroupMember")
	h.ft.fail("AddBasicGroupMember", errors.Wrap(telegram.ErrPrivacy, "USER_PRIVACY_RESTRICTED"))
	ctx := h.ctx()
	errc := make(chan error, 1)
	go func() { errc <- h.m.AddMember(ctx, domain.BasicGroupRef(gid), 300, 100) }()

	h.eventually(func() bool {
		return h.m.groups[gid].ParticipantCount == 11 && len(h.m.groupFulls[gid].Members) == 11
	})
	close(gate)
	require.ErrorIs(t, <-errc, telegram.ErrPrivacy)

	h.eventually(func() bool {
		f := h.m.groupFulls[gid]
		return f.received && !f.IsExpired(h.m.now()) && h.ft.count("GetBasicGroupFull") == 2
	})
	h.do(func() {
		assert.Equal(t, int32(10), h.m.groups[gid].ParticipantCount)
		assert.Len(t, h.m.groupFulls[gid].Members, 10)
		assert.Less(t, h.m.groupFulls[gid].FindMember(300), 0)
		assert.Empty(t, h.m.groups[gid].expected)
	})
}

func TestAddMember_ConfirmationNotCountedTwice(t *testing.T) {
	h := newHarness(t)
	const gid domain.ChatID = 601
	ownedGroup(t, h, gid)

	require.NoError(t, h.m.AddMember(h.ctx(), domain.BasicGroupRef(gid), 300, 100))
	h.do(func() {
		assert.Equal(t, int32(11), h.m.groups[gid].ParticipantCount)
		assert.True(t, h.m.groupFulls[gid].IsExpired(h.m.now()), "confirmed change leaves the full record stale")
	})

	h.m.OnBasicGroupMemberAdded(gid, 300, selfID, 2, 2)
	h.do(func() {
		r := h.m.groups[gid]
		assert.Equal(t, int32(2), r.Version)
		assert.Equal(t, int32(11), r.ParticipantCount)
		assert.Len(t, h.m.groupFulls[gid].Members, 11)
	})
}

func TestAddMember_SnapshotDuringChangeKeepsPendingCount(t *testing.T) {
	h := newHarness(t)
	const gid domain.ChatID = 603
	ownedGroup(t, h, gid)

	gate := h.ft.gate("AddBasicGroupMember")
	ctx := h.ctx()
	errc := make(chan error, 1)
	go func() { errc <- h.m.AddMember(ctx, domain.BasicGroupRef(gid), 300, 100) }()
	h.eventually(func() bool { return h.m.groups[gid].ParticipantCount == 11 })

	// Taken by the server before it applied the addition.
	before := groupSnapshot(gid, 1, 10)
	before.Group.Status = domain.CreatorStatus("", false, true)
	h.m.OnEntities(&telegram.Entities{BasicGroups: []telegram.BasicGroupSnapshot{before}})
	h.do(func() { assert.Equal(t, int32(11), h.m.groups[gid].ParticipantCount) })

	h.m.OnBasicGroupMemberAdded(gid, 300, selfID, 2, 2)
	close(gate)
	require.NoError(t, <-errc)
	h.do(func() {
		r := h.m.groups[gid]
		assert.Equal(t, int32(2), r.Version)
		assert.Equal(t, int32(11), r.ParticipantCount)
		assert.Empty(t, r.expected)
	})
}

func TestAddChannelMember_SnapshotDuringChangeRepaired(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.RepairDelay = time.Second })
	const id domain.ChannelID = 702
	ownedChannel(t, h, id)
	h.ft.update(func(f *fakeTransport) {
		f.accounts[500] = domain.Account{ID: 500, AccessHash: 5, FirstName: "Joiner"}
	})

	gate := h.ft.gate("InviteToChannel")
	ctx := h.ctx()
	errc := make(chan error, 1)
	go func() { errc <- h.m.AddMember(ctx, domain.ChannelRef(id), 500, 0) }()
	h.eventually(func() bool { return h.m.channels[id].ParticipantCount == 3 })

	before := telegram.ChannelSnapshot{Channel: domain.Channel{
		ID: id, AccessHash: 7, Title: "chat", Status: domain.CreatorStatus("", false, true),
		ParticipantCount: 2,
	}}
	h.m.OnEntities(&telegram.Entities{Channels: []telegram.ChannelSnapshot{before}})
	h.eventually(func() bool { return h.m.channels[id].countUnsure })

	h.ft.update(func(f *fakeTransport) {
		snap := f.channels[id]
		snap.Channel.ParticipantCount = 3
		f.channels[id] = snap
		full := f.channelFulls[id]
		full.ParticipantCount = 3
		f.channelFulls[id] = full
	})
	h.m.OnChannelMember(id, 500, domain.LeftStatus(), domain.RegularStatus(), 3)
	close(gate)
	require.NoError(t, <-errc)

	require.Eventually(t, func() bool {
		h.clock.Advance(200 * time.Millisecond)
		ok := false
		_ = h.m.exec(context.Background(), func() {
			c := h.m.channels[id]
			ok = c.ParticipantCount == 3 && !c.countUnsure
		})
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAddMember_PreconditionNeverReachesNetwork(t *testing.T) {
	h := newHarness(t)
	h.login()
	const gid domain.ChatID = 602
	snap := groupSnapshot(gid, 1, 3)
	h.ft.update(func(f *fakeTransport) {
		f.accounts[300] = domain.Account{ID: 300, AccessHash: 3}
	})
	h.do(func() { h.m.applyGroupSnapshot(snap) })

	err := h.m.AddMember(h.ctx(), domain.BasicGroupRef(gid), 300, 0)
	require.ErrorIs(t, err, ErrPrecondition)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "not allowed")
	assert.Zero(t, h.ft.count("AddBasicGroupMember"))
	h.do(func() { assert.Equal(t, int32(3), h.m.groups[gid].ParticipantCount) })
}

// ownedChannel sets up a megagroup created by the current account with two
// members, its full record and member list loaded.
func ownedChannel(t *testing.T, h *harness, id domain.ChannelID) {
	t.Helper()
	h.login()
	snap := telegram.ChannelSnapshot{Channel: domain.Channel{
		ID: id, AccessHash: 7, Title: "chat", Status: domain.CreatorStatus("", false, true),
		ParticipantCount: 2, Version: 1,
	}}
	h.ft.update(func(f *fakeTransport) {
		f.channels[id] = snap
		f.channelFulls[id] = domain.ChannelFull{ParticipantCount: 2, AdminCount: 1, Version: 1, CanGetParticipants: true}
		f.members[id] = []domain.Member{
			member(selfID, domain.CreatorStatus("", false, true)),
			member(400, domain.RegularStatus()),
		}
		f.accounts[400] = domain.Account{ID: 400, AccessHash: 4, FirstName: "Member"}
	})
	_, err := h.m.ChannelFull(h.ctx(), id, false)
	require.NoError(t, err)
	ms, total, err := h.m.Members(h.ctx(), domain.ChannelRef(id), telegram.MembersRecent, 0, 200)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	require.Equal(t, int32(2), total)
}

func TestSetMemberStatus_RemovalBansFirst(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DemoteDelay = time.Second })
	const id domain.ChannelID = 700
	ownedChannel(t, h, id)

	gate := h.ft.gate("EditChannelBanned")
	ctx := h.ctx()
	errc := make(chan error, 1)
	go func() { errc <- h.m.SetMemberStatus(ctx, domain.ChannelRef(id), 400, domain.LeftStatus()) }()

	h.eventually(func() bool { return h.m.channels[id].ParticipantCount == 1 })
	require.Eventually(t, func() bool { return h.ft.count("EditChannelBanned") == 1 }, 5*time.Second, 5*time.Millisecond)

	// Time passing while the ban is unconfirmed does not start step two.
	h.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.ft.count("EditChannelBanned"))

	close(gate)
	require.Eventually(t, func() bool {
		h.clock.Advance(200 * time.Millisecond)
		return len(h.ft.calledInOrder()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"banned:400:banned", "banned:400:left"}, h.ft.calledInOrder())

	// Both server events were predicted.
	h.m.OnChannelMember(id, 400, domain.RegularStatus(), domain.BannedStatus(0), 5)
	h.m.OnChannelMember(id, 400, domain.BannedStatus(0), domain.LeftStatus(), 6)
	h.do(func() {
		assert.Equal(t, int32(1), h.m.channels[id].ParticipantCount)
		assert.Empty(t, h.m.channels[id].expected)
		assert.Less(t, h.m.channelFulls[id].FindMember(400), 0)
	})
}

func TestSetMemberStatus_FailedBanStopsRemoval(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DemoteDelay = time.Second })
	const id domain.ChannelID = 701
	ownedChannel(t, h, id)

	h.ft.fail("EditChannelBanned", errors.New("CHAT_ADMIN_REQUIRED"))
	err := h.m.SetMemberStatus(h.ctx(), domain.ChannelRef(id), 400, domain.LeftStatus())
	require.Error(t, err)

	h.eventually(func() bool {
		f := h.m.channelFulls[id]
		return h.ft.count("GetChannelFull") == 2 && f.received && !f.IsExpired(h.m.now())
	})
	h.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, h.ft.count("EditChannelBanned"))
	assert.Empty(t, h.ft.calledInOrder())
	h.do(func() {
		assert.Empty(t, h.m.channels[id].expected)
		assert.Nil(t, h.m.channelFulls[id].Members)
		assert.Equal(t, int32(2), h.m.channelFulls[id].ParticipantCount)
	})
}

func TestSetMemberStatus_PromoteNeedsRights(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.ft.update(func(f *fakeTransport) {
		f.accounts[400] = domain.Account{ID: 400, AccessHash: 4}
	})
	h.do(func() {
		h.m.applyChannelSnapshot(telegram.ChannelSnapshot{Channel: domain.Channel{
			ID: 701, AccessHash: 7, Title: "chat", Status: domain.RegularStatus(), ParticipantCount: 5,
		}})
	})

	err := h.m.SetMemberStatus(h.ctx(), domain.ChannelRef(701), 400,
		domain.AdministratorStatus(domain.FullAdminRights(), "", true))
	require.ErrorIs(t, err, ErrPrecondition)
	assert.Zero(t, h.ft.count("EditChannelAdmin"))
}

func TestJoinChannel_FailureReloadsChannel(t *testing.T) {
	h := newHarness(t)
	h.login()
	left := telegram.ChannelSnapshot{Channel: domain.Channel{
		ID: 702, AccessHash: 7, Title: "open", Status: domain.LeftStatus(), ParticipantCount: 3, Version: 1,
	}}
	h.ft.update(func(f *fakeTransport) { f.channels[702] = left })
	h.do(func() { h.m.applyChannelSnapshot(left) })
	h.ft.fail("JoinChannel", errors.Wrap(telegram.ErrInaccessible, "CHANNEL_PRIVATE"))

	err := h.m.JoinChannel(h.ctx(), 702)
	require.ErrorIs(t, err, ErrInaccessible)
	h.eventually(func() bool { return h.ft.count("GetChannels") == 1 })
	h.eventually(func() bool {
		r := h.m.channels[702]
		return r.Status.Kind == domain.MemberLeft && r.ParticipantCount == 3
	})
}

func TestSetTitle_AppliedAfterSuccess(t *testing.T) {
	h := newHarness(t)
	const gid domain.ChatID = 603
	ownedGroup(t, h, gid)

	require.ErrorIs(t, h.m.SetTitle(h.ctx(), domain.BasicGroupRef(gid), "  "), ErrPrecondition)
	require.NoError(t, h.m.SetTitle(h.ctx(), domain.BasicGroupRef(gid), "Renamed"))
	g, err := h.m.BasicGroup(h.ctx(), gid)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", g.Title)
	assert.Equal(t, 1, h.ft.count("EditTitle"))
}

func TestBlock_SpeculativeAndInvalidatedOnFailure(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.ft.update(func(f *fakeTransport) {
		f.accounts[42] = domain.Account{ID: 42, AccessHash: 4242, FirstName: "Ada"}
	})
	_, err := h.m.AccountFull(h.ctx(), 42, false)
	require.NoError(t, err)

	gate := h.ft.gate("SetBlocked")
	h.ft.fail("SetBlocked", errors.New("FLOOD_WAIT_5"))
	errc := make(chan error, 1)
	go func() { errc <- h.m.Block(context.Background(), 42) }()
	h.eventually(func() bool { return h.m.accountFulls[42].Blocked })
	close(gate)
	require.Error(t, <-errc)

	h.eventually(func() bool {
		f := h.m.accountFulls[42]
		return !f.Blocked && h.ft.count("GetAccountFull") == 2
	})
	require.ErrorIs(t, h.m.Block(h.ctx(), selfID), ErrPrecondition)
}
