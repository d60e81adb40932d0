package cache

import (
	"slices"

	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

// outcome is the verdict on a versioned change.
type outcome uint8

const (
	// outcomeApply: the change is the next one expected.
	outcomeApply outcome = iota
	// outcomeGap: changes were missed. The change is applied anyway and a
	// repair is scheduled.
	outcomeGap
	// outcomeDuplicate: the change is already reflected; nothing happens.
	outcomeDuplicate
	// outcomeStale: a snapshot older than the local state; rejected and
	// repaired.
	outcomeStale
	// outcomeUnknown: the entity has no data yet to reconcile against.
	outcomeUnknown
)

func (o outcome) String() string {
	switch o {
	case outcomeApply:
		return "apply"
	case outcomeGap:
		return "gap"
	case outcomeDuplicate:
		return "duplicate"
	case outcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// reconcileDelta decides what to do with a delta carrying version against
// the local counter current.
func reconcileDelta(current, version int32) outcome {
	switch {
	case version <= current:
		return outcomeDuplicate
	case version == current+1:
		return outcomeApply
	default:
		return outcomeGap
	}
}

// reconcileSnapshot decides what to do with a full snapshot. Snapshots may
// jump forward but never move a counter back.
func reconcileSnapshot(current, version int32) outcome {
	if version < current {
		return outcomeStale
	}
	return outcomeApply
}

// reconcileFacet decides on changes to an independently versioned facet
// (default permissions, pinned message). A facet carries its whole value,
// so any newer version applies and no repair is needed.
func reconcileFacet(current, version int32) outcome {
	if version <= current {
		return outcomeDuplicate
	}
	return outcomeApply
}

// Basic groups

func (m *Manager) applyGroupSnapshot(s telegram.BasicGroupSnapshot) {
	in := s.Group
	if in.ID == 0 {
		return
	}
	r := m.addOrGetGroup(in.ID)
	ref := domain.BasicGroupRef(in.ID)

	if s.Forbidden {
		first := !r.received
		r.Title = in.Title
		r.Status = domain.BannedStatus(0)
		r.IsActive = false
		if first {
			r.CacheVersion = basicGroupCacheVersion
		}
		r.received, r.changed, r.dirty = true, true, true
		m.dropGroupFull(in.ID)
		m.commitGroup(r)
		return
	}

	if r.received {
		if o := reconcileSnapshot(r.Version, in.Version); o == outcomeStale {
			m.logger.Debug("Rejected stale basic group snapshot",
				zap.Stringer("ref", ref), zap.Int32("local", r.Version), zap.Int32("incoming", in.Version))
			m.scheduleRepair(ref)
			return
		}
	}

	wasMember := r.Status.IsMemberNow()
	prevVersion := r.Version

	r.Title = in.Title
	r.Photo = in.Photo
	r.ParticipantCount = in.ParticipantCount
	r.Date = in.Date
	r.Status = in.Status
	r.IsActive = in.IsActive
	r.IsCallActive = in.IsCallActive
	r.Version = in.Version
	// The snapshot's permissions are as of its version; a newer dedicated
	// update must not be overwritten by them.
	if !r.received || in.Version >= r.DefaultPermissionsVersion {
		r.DefaultPermissions = in.DefaultPermissions
	}
	if !r.received {
		r.DefaultPermissionsVersion = -1
		r.PinnedMessageVersion = -1
	}
	r.CacheVersion = basicGroupCacheVersion
	r.received, r.changed, r.dirty = true, true, true
	if in.Version > prevVersion {
		r.expected.clear()
	} else if d := r.expected.netMembers(); d != 0 {
		// The snapshot predates the server events of changes still expected,
		// so it does not count them yet.
		r.ParticipantCount = adjust(r.ParticipantCount, d)
	}

	if in.MigratedTo != 0 && r.MigratedTo == 0 {
		r.MigratedTo = in.MigratedTo
		r.IsActive = false
		c := m.addOrGetChannel(in.MigratedTo)
		if c.AccessHash == 0 {
			c.AccessHash = s.MigratedToAccessHash
		}
		m.commitChannel(c)
		m.invalidateGroupFull(in.ID, false)
	}

	switch {
	case wasMember && !r.Status.IsMemberNow():
		m.dropGroupFull(in.ID)
	case in.Version > prevVersion:
		// Members changed on the server since the cached list was taken.
		if f, ok := m.groupFulls[in.ID]; ok && f.received && f.Version < in.Version {
			m.invalidateGroupFull(in.ID, false)
		}
	}
	m.commitGroup(r)
}

// groupDelta reconciles a versioned membership change and advances the
// counter. It reports whether the change should be applied.
func (m *Manager) groupDelta(r *basicGroupRecord, version int32, what string) bool {
	ref := domain.BasicGroupRef(r.ID)
	if !r.received {
		m.logger.Debug("Delta for unknown basic group", zap.Stringer("ref", ref), zap.String("delta", what))
		m.scheduleRepair(ref)
		return false
	}
	o := reconcileDelta(r.Version, version)
	switch o {
	case outcomeDuplicate:
		return false
	case outcomeGap:
		m.logger.Info("Basic group version gap, repairing",
			zap.Stringer("ref", ref), zap.String("delta", what),
			zap.Int32("local", r.Version), zap.Int32("incoming", version))
		m.scheduleRepair(ref)
	}
	r.Version = version
	r.dirty = true
	if f, ok := m.groupFulls[r.ID]; ok && f.received {
		if o == outcomeApply && f.Version == version-1 {
			f.Version = version
		}
		f.dirty = true
	}
	return true
}

func (m *Manager) onGroupMemberAdded(id domain.ChatID, user, inviter domain.UserID, date, version int32) {
	r := m.addOrGetGroup(id)
	if !m.groupDelta(r, version, "member added") {
		return
	}
	speculated := r.expected.confirm(user, true)
	if !speculated {
		r.ParticipantCount++
		r.changed = true
	}
	if user == m.selfID && !r.Status.IsMemberNow() {
		r.Status = domain.RegularStatus()
		r.IsActive = true
		r.changed = true
	}
	if f, ok := m.groupFulls[id]; ok && f.received {
		if i := f.FindMember(user); i < 0 {
			f.Members = append(f.Members, domain.Member{
				UserID:        user,
				InviterUserID: inviter,
				JoinedDate:    date,
				Status:        domain.RegularStatus(),
			})
			f.changed = true
		} else {
			f.Members[i].JoinedDate = date
			f.Members[i].InviterUserID = inviter
		}
		m.commitGroupFull(id, f)
	}
	m.commitGroup(r)
}

func (m *Manager) onGroupMemberRemoved(id domain.ChatID, user domain.UserID, version int32) {
	r := m.addOrGetGroup(id)
	if !m.groupDelta(r, version, "member removed") {
		return
	}
	speculated := r.expected.confirm(user, false)
	if !speculated {
		r.ParticipantCount = decrement(r.ParticipantCount)
		r.changed = true
	}
	if user == m.selfID {
		r.Status = domain.LeftStatus()
		r.IsActive = false
		r.changed = true
		m.dropGroupFull(id)
	} else if f, ok := m.groupFulls[id]; ok && f.received {
		if i := f.FindMember(user); i >= 0 {
			f.Members = append(f.Members[:i], f.Members[i+1:]...)
			f.changed = true
		}
		m.commitGroupFull(id, f)
	}
	m.commitGroup(r)
}

func (m *Manager) onGroupMemberAdmin(id domain.ChatID, user domain.UserID, isAdmin bool, version int32) {
	r := m.addOrGetGroup(id)
	if !m.groupDelta(r, version, "member admin") {
		return
	}
	status := domain.RegularStatus()
	if isAdmin {
		status = basicGroupAdminStatus()
	}
	if user == m.selfID && r.Status.Kind != domain.MemberCreator {
		r.Status = status
		r.changed = true
	}
	if f, ok := m.groupFulls[id]; ok && f.received {
		if i := f.FindMember(user); i >= 0 && f.Members[i].Status.Kind != domain.MemberCreator {
			f.Members[i].Status = status
			f.changed = true
		}
		m.commitGroupFull(id, f)
	}
	m.commitGroup(r)
}

// onGroupMembers installs a complete member list. It behaves like a full
// snapshot: the version may jump but never move back.
func (m *Manager) onGroupMembers(id domain.ChatID, creator domain.UserID, members []domain.Member, version int32) {
	r := m.addOrGetGroup(id)
	ref := domain.BasicGroupRef(id)
	if !r.received {
		m.scheduleRepair(ref)
		return
	}
	if reconcileSnapshot(r.Version, version) == outcomeStale {
		m.scheduleRepair(ref)
		return
	}
	r.Version = version
	r.ParticipantCount = int32(len(members))
	r.expected.clear()
	for _, mem := range members {
		if mem.UserID == m.selfID {
			r.Status = mem.Status
		}
	}
	r.changed, r.dirty = true, true

	if f, ok := m.groupFulls[id]; ok && f.received {
		f.Members = append([]domain.Member(nil), members...)
		f.CreatorUserID = creator
		f.Version = version
		f.changed, f.dirty = true, true
		m.commitGroupFull(id, f)
	}
	m.commitGroup(r)
}

func (m *Manager) onGroupDefaultPermissions(id domain.ChatID, perms domain.Permissions, version int32) {
	r := m.addOrGetGroup(id)
	if !r.received {
		m.scheduleRepair(domain.BasicGroupRef(id))
		return
	}
	if reconcileFacet(r.DefaultPermissionsVersion, version) != outcomeApply {
		return
	}
	r.DefaultPermissionsVersion = version
	r.DefaultPermissions = perms
	r.changed, r.dirty = true, true
	m.commitGroup(r)
}

func (m *Manager) onGroupPinned(id domain.ChatID, messageID, version int32) {
	r := m.addOrGetGroup(id)
	if !r.received {
		return
	}
	if reconcileFacet(r.PinnedMessageVersion, version) != outcomeApply {
		return
	}
	r.PinnedMessageVersion = version
	r.dirty = true
	if f, ok := m.groupFulls[id]; ok && f.received && f.PinnedMessageID != messageID {
		f.PinnedMessageID = messageID
		f.changed, f.dirty = true, true
		m.commitGroupFull(id, f)
	}
	m.commitGroup(r)
}

// onGroupPinnedMessages applies a pin or unpin of ids. Pinning makes the
// newest of them the pinned message; unpinning clears it only when the
// current one is among ids.
func (m *Manager) onGroupPinnedMessages(id domain.ChatID, ids []int32, pinned bool, version int32) {
	var current int32
	if f, ok := m.groupFulls[id]; ok && f.received {
		current = f.PinnedMessageID
	}
	next := current
	switch {
	case pinned:
		for _, msg := range ids {
			next = max(next, msg)
		}
	case slices.Contains(ids, current):
		next = 0
	}
	m.onGroupPinned(id, next, version)
}

// Channels

func (m *Manager) applyChannelSnapshot(s telegram.ChannelSnapshot) {
	in := s.Channel
	if in.ID == 0 {
		return
	}
	r := m.addOrGetChannel(in.ID)

	if s.Forbidden {
		r.Title = in.Title
		r.IsBroadcast = in.IsBroadcast
		if in.AccessHash != 0 {
			r.AccessHash = in.AccessHash
		}
		r.Status = domain.BannedStatus(in.Status.Until)
		if !r.received {
			r.CacheVersion = channelCacheVersion
		}
		r.received, r.changed, r.dirty = true, true, true
		m.dropChannelFull(in.ID)
		m.commitChannel(r)
		return
	}

	if in.IsMin && r.received && !r.IsMin {
		// Only the rendering fields of a min snapshot are trustworthy.
		r.Title = in.Title
		r.Photo = in.Photo
		if in.Username != "" {
			r.Username = in.Username
		}
		r.changed, r.dirty = true, true
		m.commitChannel(r)
		return
	}

	wasMember := r.Status.IsMemberNow()
	next := in
	if next.AccessHash == 0 {
		next.AccessHash = r.AccessHash
	}
	if next.Version < r.Version {
		next.Version = r.Version
	}
	if next.ParticipantCount == 0 {
		next.ParticipantCount = r.ParticipantCount
	}
	next.Status = next.Status.Updated(m.now())
	next.CacheVersion = channelCacheVersion
	if in.ParticipantCount != 0 && (len(r.expected) > 0 || m.ops[domain.ChannelRef(in.ID)] > 0) {
		// Channel snapshots carry no version, so whether the count includes
		// the changes in flight is unknown until they are confirmed.
		r.countUnsure = true
	}
	r.Channel = next
	r.received, r.changed, r.dirty = true, true, true

	if wasMember && !next.Status.IsMemberNow() {
		m.invalidateChannelFull(in.ID, false)
	}
	m.commitChannel(r)
}

// onChannelMember applies a membership change reported by the server. The
// change carries no channel version; speculative changes already counted
// are confirmed instead of counted twice.
func (m *Manager) onChannelMember(id domain.ChannelID, user domain.UserID, old, next domain.MemberStatus, date int32) {
	r, ok := m.channel(id)
	if !ok {
		return
	}
	speculated := r.expected.confirm(user, next.IsMemberNow())
	if speculated && r.countUnsure {
		m.scheduleRepair(domain.ChannelRef(id))
	}
	f, hasFull := m.channelFulls[id]
	hasFull = hasFull && f.received

	if !speculated {
		if delta := memberDelta(old, next); delta != 0 {
			r.ParticipantCount = adjust(r.ParticipantCount, delta)
			r.changed, r.dirty = true, true
			if hasFull {
				f.ParticipantCount = adjust(f.ParticipantCount, delta)
			}
		}
		if hasFull {
			adjustStatusCounts(&f.ChannelFull, old, next)
			f.changed, f.dirty = true, true
		}
	}
	if hasFull && f.Members != nil {
		setCachedMember(&f.ChannelFull, domain.Member{UserID: user, JoinedDate: date, Status: next})
		f.changed = true
	}
	if user == m.selfID {
		wasMember := r.Status.IsMemberNow()
		r.Status = next.Updated(m.now())
		r.changed, r.dirty = true, true
		if wasMember && !r.Status.IsMemberNow() {
			m.invalidateChannelFull(id, false)
			hasFull = false
		}
	}
	if hasFull {
		m.commitChannelFull(id, f)
	}
	m.commitChannel(r)
}

// Secret chats

func (m *Manager) applySecretChat(in domain.SecretChat) {
	if in.ID == 0 {
		return
	}
	r := m.addOrGetSecretChat(in.ID)
	if r.received && r.State == domain.SecretChatClosed {
		return
	}
	next := r.SecretChat
	if !r.received {
		next = in
	} else {
		if in.State > next.State {
			next.State = in.State
		}
		if in.AccessHash != 0 {
			next.AccessHash = in.AccessHash
		}
		if len(in.KeyHash) > 0 {
			next.KeyHash = in.KeyHash
		}
		if in.UserID != 0 {
			next.UserID = in.UserID
		}
		if in.Date != 0 {
			next.Date = in.Date
		}
		if in.Layer > next.Layer {
			next.Layer = in.Layer
		}
		if in.TTL != 0 {
			next.TTL = in.TTL
		}
	}
	r.SecretChat = next
	r.received, r.changed, r.dirty = true, true, true
	m.commitSecretChat(r)

	if next.UserID != 0 {
		if _, ok := m.account(next.UserID); !ok {
			m.addOrGetAccount(next.UserID)
			m.accountLoader.Load(next.UserID, 1, func(domain.Account, error) {})
		}
	}
}

// Counters

func decrement(v int32) int32 {
	return adjust(v, -1)
}

// adjust applies delta, never going below zero.
func adjust(v, delta int32) int32 {
	v += delta
	if v < 0 {
		return 0
	}
	return v
}

// memberDelta is the change in member count caused by a status change.
func memberDelta(old, next domain.MemberStatus) int32 {
	switch was, is := old.IsMemberNow(), next.IsMemberNow(); {
	case !was && is:
		return 1
	case was && !is:
		return -1
	default:
		return 0
	}
}

func adjustStatusCounts(f *domain.ChannelFull, old, next domain.MemberStatus) {
	if old.Kind == next.Kind {
		return
	}
	switch old.Kind {
	case domain.MemberAdministrator, domain.MemberCreator:
		f.AdminCount = decrement(f.AdminCount)
	case domain.MemberRestricted:
		f.RestrictedCount = decrement(f.RestrictedCount)
	case domain.MemberBanned:
		f.BannedCount = decrement(f.BannedCount)
	}
	switch next.Kind {
	case domain.MemberAdministrator, domain.MemberCreator:
		f.AdminCount++
	case domain.MemberRestricted:
		f.RestrictedCount++
	case domain.MemberBanned:
		f.BannedCount++
	}
}

// setCachedMember updates, inserts or removes user in the cached list.
func setCachedMember(f *domain.ChannelFull, mem domain.Member) {
	i := f.FindMember(mem.UserID)
	switch {
	case i >= 0 && !mem.Status.IsMemberNow() && mem.Status.Kind != domain.MemberRestricted && mem.Status.Kind != domain.MemberBanned:
		f.Members = append(f.Members[:i], f.Members[i+1:]...)
	case i >= 0:
		if mem.JoinedDate == 0 {
			mem.JoinedDate = f.Members[i].JoinedDate
		}
		if mem.InviterUserID == 0 {
			mem.InviterUserID = f.Members[i].InviterUserID
		}
		f.Members[i] = mem
	case mem.Status.IsMemberNow():
		f.Members = append(f.Members, mem)
	}
}

func basicGroupAdminStatus() domain.MemberStatus {
	rights := domain.AdminRights{
		CanChangeInfo:     true,
		CanDeleteMessages: true,
		CanBanUsers:       true,
		CanInviteUsers:    true,
		CanPinMessages:    true,
		CanManageCalls:    true,
	}
	return domain.AdministratorStatus(rights, "", true)
}
