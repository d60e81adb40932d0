package cache

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

// expectation is a membership change applied speculatively whose server
// events must not be counted again.
type expectation struct {
	member bool
	events int
	op     uuid.UUID
}

type expectations map[domain.UserID]expectation

func (e *expectations) expect(user domain.UserID, member bool, events int, op uuid.UUID) {
	if *e == nil {
		*e = make(expectations)
	}
	(*e)[user] = expectation{member: member, events: events, op: op}
}

// confirm consumes one expected event for user. It reports whether the event
// was already reflected.
func (e expectations) confirm(user domain.UserID, member bool) bool {
	x, ok := e[user]
	if !ok || x.member != member {
		return false
	}
	x.events--
	if x.events <= 0 {
		delete(e, user)
	} else {
		e[user] = x
	}
	return true
}

// netMembers is the member count change still awaiting server events,
// assuming every expectation is a join or a removal.
func (e expectations) netMembers() int32 {
	var d int32
	for _, x := range e {
		if x.member {
			d++
		} else {
			d--
		}
	}
	return d
}

func (e expectations) forget(op uuid.UUID) {
	for user, x := range e {
		if x.op == op {
			delete(e, user)
		}
	}
}

func (e *expectations) clear() {
	*e = nil
}

func (m *Manager) beginOp(ref domain.Ref, what string) uuid.UUID {
	op := uuid.New()
	m.ops[ref]++
	m.logger.Debug("Speculative change", zap.Stringer("ref", ref), zap.String("op", what), zap.Stringer("id", op))
	return op
}

func (m *Manager) endOp(ref domain.Ref) {
	if m.ops[ref]--; m.ops[ref] <= 0 {
		delete(m.ops, ref)
	}
}

// speculationFailed discards the speculative state of ref by invalidating
// its full record and member list and re-fetching them.
func (m *Manager) speculationFailed(ref domain.Ref, op uuid.UUID, err error) {
	m.logger.Info("Speculative change rejected, refreshing",
		zap.Stringer("ref", ref), zap.Stringer("id", op), zap.Error(err))
	switch ref.Kind {
	case domain.KindAccount:
		m.invalidateAccountFull(domain.UserID(ref.ID), true)
	case domain.KindBasicGroup:
		id := domain.ChatID(ref.ID)
		if r, ok := m.groups[id]; ok {
			r.expected.forget(op)
		}
		m.invalidateGroupFull(id, true)
	case domain.KindChannel:
		id := domain.ChannelID(ref.ID)
		if r, ok := m.channels[id]; ok {
			r.expected.forget(op)
		}
		m.channelLoader.Reload(id, refreshed[domain.Channel](m, ref))
		m.invalidateChannelFull(id, true)
	}
}

// speculationConfirmed marks the full record of ref stale: the server's
// version of it now differs from what was cached.
func (m *Manager) speculationConfirmed(ref domain.Ref) {
	switch ref.Kind {
	case domain.KindAccount:
		m.invalidateAccountFull(domain.UserID(ref.ID), false)
	case domain.KindBasicGroup:
		m.invalidateGroupFull(domain.ChatID(ref.ID), false)
	case domain.KindChannel:
		// The speculatively edited member list stays.
		id := domain.ChannelID(ref.ID)
		if c, ok := m.channels[id]; ok && c.countUnsure {
			m.scheduleRepair(ref)
		}
		if r, ok := m.channelFulls[id]; ok && r.received {
			r.ExpiresAt = time.Time{}
			r.dirty = true
			m.commitChannelFull(id, r)
		}
	}
}

// Loading prerequisites

func (m *Manager) withAccount(id domain.UserID, done func(error), f func(*accountRecord)) {
	m.accountLoader.Load(id, m.opts.LoadTries, func(_ domain.Account, err error) {
		if err != nil {
			done(classify(err))
			return
		}
		r, _ := m.account(id)
		f(r)
	})
}

func (m *Manager) withGroup(id domain.ChatID, done func(error), f func(*basicGroupRecord)) {
	m.groupLoader.Load(id, m.opts.LoadTries, func(_ domain.BasicGroup, err error) {
		if err != nil {
			done(classify(err))
			return
		}
		r, _ := m.group(id)
		f(r)
	})
}

func (m *Manager) withChannel(id domain.ChannelID, done func(error), f func(*channelRecord)) {
	m.channelLoader.Load(id, m.opts.LoadTries, func(_ domain.Channel, err error) {
		if err != nil {
			done(classify(err))
			return
		}
		r, _ := m.channel(id)
		f(r)
	})
}

func canInvite(status domain.MemberStatus, defaults domain.Permissions) bool {
	switch status.Kind {
	case domain.MemberCreator, domain.MemberAdministrator:
		return status.CanInviteUsers()
	case domain.MemberRegular:
		return defaults.CanInviteUsers
	case domain.MemberRestricted:
		return status.IsMember && defaults.CanInviteUsers && status.Restrictions.CanInviteUsers
	default:
		return false
	}
}

func canChangeChannelInfo(c *domain.Channel) bool {
	if c.IsBroadcast && !c.Status.IsAdministrator() {
		return false
	}
	return c.Status.CanChangeInfo(c.DefaultPermissions)
}

// Members

func (m *Manager) addMember(ref domain.Ref, user domain.UserID, forwardLimit int, done func(error)) {
	if ref.Kind == domain.KindChannel && user == m.selfID {
		m.withChannel(domain.ChannelID(ref.ID), done, func(r *channelRecord) { m.joinChannel(r, done) })
		return
	}
	m.withAccount(user, done, func(a *accountRecord) {
		switch ref.Kind {
		case domain.KindBasicGroup:
			m.withGroup(domain.ChatID(ref.ID), done, func(r *basicGroupRecord) {
				m.addGroupMember(r, a.ID, forwardLimit, done)
			})
		case domain.KindChannel:
			m.withChannel(domain.ChannelID(ref.ID), done, func(r *channelRecord) {
				m.addChannelMember(r, a.ID, done)
			})
		default:
			done(precondition("%s has no members", ref))
		}
	})
}

func (m *Manager) addGroupMember(r *basicGroupRecord, user domain.UserID, forwardLimit int, done func(error)) {
	id := r.ID
	switch {
	case !r.IsActive || r.IsMigrated():
		done(precondition("basic group %d is not active", id))
		return
	case !r.Status.IsMemberNow():
		done(precondition("not a member of basic group %d", id))
		return
	case !canInvite(r.Status, r.DefaultPermissions):
		done(precondition("not allowed to add members to basic group %d", id))
		return
	}
	f, hasFull := m.groupFulls[id]
	hasFull = hasFull && f.received
	if hasFull && f.FindMember(user) >= 0 {
		done(precondition("account %d is already a member of basic group %d", user, id))
		return
	}

	ref := domain.BasicGroupRef(id)
	op := m.beginOp(ref, "add member")
	r.expected.expect(user, true, 1, op)
	r.ParticipantCount++
	r.changed = true
	if hasFull {
		f.Members = append(f.Members, domain.Member{
			UserID:        user,
			InviterUserID: m.selfID,
			JoinedDate:    int32(m.now().Unix()),
			Status:        domain.RegularStatus(),
		})
		f.changed = true
		m.commitGroupFull(id, f)
	}
	m.commitGroup(r)

	input := m.inputAccount(user)
	var res *telegram.InviteResult
	m.goRequest(func(ctx context.Context) (err error) {
		res, err = m.transport.AddBasicGroupMember(ctx, id, input, forwardLimit)
		return err
	}, func(err error) {
		m.endOp(ref)
		if err == nil && len(res.Missing) > 0 {
			err = errors.Wrapf(telegram.ErrPrivacy, "account %d cannot be added", user)
		}
		if err != nil {
			m.speculationFailed(ref, op, err)
			done(classify(err))
			return
		}
		m.ingest(&res.Entities)
		m.speculationConfirmed(ref)
		done(nil)
	})
}

func (m *Manager) addChannelMember(r *channelRecord, user domain.UserID, done func(error)) {
	id := r.ID
	allowed := r.Status.CanInviteUsers()
	if !r.IsBroadcast {
		allowed = canInvite(r.Status, r.DefaultPermissions)
	}
	if !allowed {
		done(precondition("not allowed to add members to channel %d", id))
		return
	}
	f, hasFull := m.channelFulls[id]
	hasFull = hasFull && f.received
	if hasFull {
		if i := f.FindMember(user); i >= 0 && f.Members[i].Status.IsMemberNow() {
			done(precondition("account %d is already a member of channel %d", user, id))
			return
		}
	}

	ref := domain.ChannelRef(id)
	op := m.beginOp(ref, "add member")
	r.expected.expect(user, true, 1, op)
	r.ParticipantCount++
	r.changed = true
	if hasFull {
		f.ParticipantCount++
		if f.Members != nil {
			setCachedMember(&f.ChannelFull, domain.Member{
				UserID:        user,
				InviterUserID: m.selfID,
				JoinedDate:    int32(m.now().Unix()),
				Status:        domain.RegularStatus(),
			})
		}
		f.changed = true
		m.commitChannelFull(id, f)
	}
	m.commitChannel(r)

	ch, input := m.inputChannel(id), m.inputAccount(user)
	var res *telegram.InviteResult
	m.goRequest(func(ctx context.Context) (err error) {
		res, err = m.transport.InviteToChannel(ctx, ch, []telegram.InputAccount{input})
		return err
	}, func(err error) {
		m.endOp(ref)
		if err == nil && len(res.Missing) > 0 {
			err = errors.Wrapf(telegram.ErrPrivacy, "account %d cannot be invited", user)
		}
		if err != nil {
			m.speculationFailed(ref, op, err)
			done(classify(err))
			return
		}
		m.ingest(&res.Entities)
		m.speculationConfirmed(ref)
		done(nil)
	})
}

func (m *Manager) joinChannel(r *channelRecord, done func(error)) {
	id := r.ID
	switch {
	case r.Status.IsMemberNow():
		done(precondition("already a member of channel %d", id))
		return
	case r.Status.Kind == domain.MemberBanned:
		done(precondition("banned from channel %d", id))
		return
	}
	ref := domain.ChannelRef(id)
	op := m.beginOp(ref, "join")
	r.expected.expect(m.selfID, true, 1, op)
	switch r.Status.Kind {
	case domain.MemberRestricted, domain.MemberCreator:
		r.Status.IsMember = true
	default:
		r.Status = domain.RegularStatus()
	}
	r.ParticipantCount++
	r.changed, r.dirty = true, true
	m.commitChannel(r)

	ch := m.inputChannel(id)
	m.goRequest(func(ctx context.Context) error {
		return m.transport.JoinChannel(ctx, ch)
	}, func(err error) {
		m.endOp(ref)
		if err != nil {
			m.speculationFailed(ref, op, err)
			done(classify(err))
			return
		}
		m.speculationConfirmed(ref)
		done(nil)
	})
}

func (m *Manager) leaveChannel(r *channelRecord, done func(error)) {
	id := r.ID
	if !r.Status.IsMemberNow() {
		done(precondition("not a member of channel %d", id))
		return
	}
	ref := domain.ChannelRef(id)
	op := m.beginOp(ref, "leave")
	r.expected.expect(m.selfID, false, 1, op)
	switch r.Status.Kind {
	case domain.MemberRestricted, domain.MemberCreator:
		r.Status.IsMember = false
	default:
		r.Status = domain.LeftStatus()
	}
	r.ParticipantCount = decrement(r.ParticipantCount)
	r.changed, r.dirty = true, true
	m.invalidateChannelFull(id, false)
	m.commitChannel(r)

	ch := m.inputChannel(id)
	m.goRequest(func(ctx context.Context) error {
		return m.transport.LeaveChannel(ctx, ch)
	}, func(err error) {
		m.endOp(ref)
		if err != nil {
			m.speculationFailed(ref, op, err)
			done(classify(err))
			return
		}
		done(nil)
	})
}

func (m *Manager) removeMember(ref domain.Ref, user domain.UserID, done func(error)) {
	switch ref.Kind {
	case domain.KindBasicGroup:
		m.withGroup(domain.ChatID(ref.ID), done, func(r *basicGroupRecord) {
			m.removeGroupMember(r, user, done)
		})
	case domain.KindChannel:
		m.withChannel(domain.ChannelID(ref.ID), done, func(r *channelRecord) {
			if user == m.selfID {
				m.leaveChannel(r, done)
				return
			}
			m.setChannelMemberStatus(r, user, domain.LeftStatus(), done)
		})
	default:
		done(precondition("%s has no members", ref))
	}
}

func (m *Manager) removeGroupMember(r *basicGroupRecord, user domain.UserID, done func(error)) {
	id := r.ID
	self := user == m.selfID
	if !r.Status.IsMemberNow() {
		done(precondition("not a member of basic group %d", id))
		return
	}
	f, hasFull := m.groupFulls[id]
	hasFull = hasFull && f.received
	if !self {
		i := -1
		if hasFull {
			i = f.FindMember(user)
			if i < 0 {
				done(precondition("account %d is not a member of basic group %d", user, id))
				return
			}
		}
		invitedBySelf := i >= 0 && f.Members[i].InviterUserID == m.selfID
		if !r.Status.CanRestrictMembers() && !invitedBySelf {
			done(precondition("not allowed to remove members from basic group %d", id))
			return
		}
		if i >= 0 && f.Members[i].Status.Kind == domain.MemberCreator {
			done(precondition("cannot remove the creator of basic group %d", id))
			return
		}
	}

	ref := domain.BasicGroupRef(id)
	op := m.beginOp(ref, "remove member")
	r.expected.expect(user, false, 1, op)
	r.ParticipantCount = decrement(r.ParticipantCount)
	r.changed = true
	if self {
		r.Status = domain.LeftStatus()
		r.IsActive = false
		r.dirty = true
		m.dropGroupFull(id)
	} else if hasFull {
		if i := f.FindMember(user); i >= 0 {
			f.Members = append(f.Members[:i], f.Members[i+1:]...)
			f.changed = true
			m.commitGroupFull(id, f)
		}
	}
	m.commitGroup(r)

	input := m.inputAccount(user)
	m.goRequest(func(ctx context.Context) error {
		return m.transport.RemoveBasicGroupMember(ctx, id, input)
	}, func(err error) {
		m.endOp(ref)
		if err != nil {
			m.speculationFailed(ref, op, err)
			done(classify(err))
			return
		}
		if !self {
			m.speculationConfirmed(ref)
		}
		done(nil)
	})
}

func (m *Manager) setMemberStatus(ref domain.Ref, user domain.UserID, status domain.MemberStatus, done func(error)) {
	switch ref.Kind {
	case domain.KindBasicGroup:
		id := domain.ChatID(ref.ID)
		m.withGroup(id, done, func(r *basicGroupRecord) {
			switch status.Kind {
			case domain.MemberLeft, domain.MemberBanned:
				m.removeGroupMember(r, user, done)
			case domain.MemberAdministrator, domain.MemberRegular:
				// The member list is needed to tell members from non-members.
				m.getGroupFull(id, false, func(_ domain.BasicGroupFull, err error) {
					if err != nil {
						done(err)
						return
					}
					m.setGroupAdmin(r, user, status.Kind == domain.MemberAdministrator, done)
				})
			case domain.MemberRestricted:
				done(precondition("basic groups do not support member restrictions"))
			default:
				done(precondition("cannot make account %d the creator", user))
			}
		})
	case domain.KindChannel:
		m.withChannel(domain.ChannelID(ref.ID), done, func(r *channelRecord) {
			m.setChannelMemberStatus(r, user, status, done)
		})
	default:
		done(precondition("%s has no members", ref))
	}
}

func (m *Manager) setGroupAdmin(r *basicGroupRecord, user domain.UserID, isAdmin bool, done func(error)) {
	id := r.ID
	if r.Status.Kind != domain.MemberCreator {
		done(precondition("only the creator manages administrators of basic group %d", id))
		return
	}
	f, ok := m.groupFulls[id]
	if !ok || !f.received {
		done(precondition("member list of basic group %d is unavailable", id))
		return
	}
	i := f.FindMember(user)
	switch {
	case i < 0:
		done(precondition("account %d is not a member of basic group %d", user, id))
		return
	case f.Members[i].Status.Kind == domain.MemberCreator:
		done(precondition("cannot change the creator of basic group %d", id))
		return
	}

	ref := domain.BasicGroupRef(id)
	op := m.beginOp(ref, "set administrator")
	if isAdmin {
		f.Members[i].Status = basicGroupAdminStatus()
	} else {
		f.Members[i].Status = domain.RegularStatus()
	}
	f.changed = true
	m.commitGroupFull(id, f)

	input := m.inputAccount(user)
	m.goRequest(func(ctx context.Context) error {
		return m.transport.SetBasicGroupAdmin(ctx, id, input, isAdmin)
	}, func(err error) {
		m.endOp(ref)
		if err != nil {
			m.speculationFailed(ref, op, err)
			done(classify(err))
			return
		}
		m.speculationConfirmed(ref)
		done(nil)
	})
}

// needsTwoSteps reports whether status removes a member without banning
// them. The server has no such primitive: the member is banned first and
// the final status applied once the ban is confirmed.
func needsTwoSteps(status domain.MemberStatus) bool {
	return status.Kind == domain.MemberLeft || (status.Kind == domain.MemberRestricted && !status.IsMember)
}

func (m *Manager) setChannelMemberStatus(r *channelRecord, user domain.UserID, status domain.MemberStatus, done func(error)) {
	id := r.ID
	if user == m.selfID {
		switch {
		case status.Kind == domain.MemberLeft:
			m.leaveChannel(r, done)
		case status.Kind == domain.MemberRegular && !r.Status.IsMemberNow():
			m.joinChannel(r, done)
		default:
			done(precondition("cannot change own status in channel %d", id))
		}
		return
	}

	f, hasFull := m.channelFulls[id]
	hasFull = hasFull && f.received
	var old domain.MemberStatus
	known := false
	if hasFull {
		if i := f.FindMember(user); i >= 0 {
			old, known = f.Members[i].Status, true
		}
	}

	switch status.Kind {
	case domain.MemberCreator:
		done(precondition("cannot make account %d the creator", user))
		return
	case domain.MemberAdministrator:
		if !r.Status.CanPromoteMembers() {
			done(precondition("not allowed to promote members of channel %d", id))
			return
		}
	case domain.MemberRegular:
		if known && old.IsAdministrator() {
			if !r.Status.CanPromoteMembers() {
				done(precondition("not allowed to demote administrators of channel %d", id))
				return
			}
		} else if !r.Status.CanRestrictMembers() {
			done(precondition("not allowed to change members of channel %d", id))
			return
		}
	default:
		if !r.Status.CanRestrictMembers() {
			done(precondition("not allowed to restrict members of channel %d", id))
			return
		}
	}
	if known && old.Kind == domain.MemberCreator {
		done(precondition("cannot change the creator of channel %d", id))
		return
	}

	ref := domain.ChannelRef(id)
	op := m.beginOp(ref, "set member status")
	if known {
		events := 1
		if needsTwoSteps(status) && old.Kind != domain.MemberBanned {
			events = 2
		}
		r.expected.expect(user, status.IsMemberNow(), events, op)
		if delta := memberDelta(old, status); delta != 0 {
			r.ParticipantCount = adjust(r.ParticipantCount, delta)
			f.ParticipantCount = adjust(f.ParticipantCount, delta)
			r.changed = true
		}
		adjustStatusCounts(&f.ChannelFull, old, status)
		setCachedMember(&f.ChannelFull, domain.Member{UserID: user, Status: status})
		f.changed = true
		m.commitChannelFull(id, f)
		m.commitChannel(r)
	}

	ch, input := m.inputChannel(id), m.inputAccount(user)
	finish := func(err error) {
		m.endOp(ref)
		if err != nil {
			m.speculationFailed(ref, op, err)
			done(classify(err))
			return
		}
		m.speculationConfirmed(ref)
		done(nil)
	}

	switch {
	case status.Kind == domain.MemberAdministrator:
		m.goRequest(func(ctx context.Context) error {
			return m.transport.EditChannelAdmin(ctx, ch, input, status.Rights, status.Rank)
		}, finish)
	case status.Kind == domain.MemberRegular && known && old.IsAdministrator():
		m.goRequest(func(ctx context.Context) error {
			return m.transport.EditChannelAdmin(ctx, ch, input, domain.AdminRights{}, "")
		}, finish)
	case needsTwoSteps(status):
		m.demoteChannelMember(ch, input, status, finish)
	default:
		m.goRequest(func(ctx context.Context) error {
			return m.transport.EditChannelBanned(ctx, ch, input, status)
		}, finish)
	}
}

// demoteChannelMember bans the member, waits DemoteDelay after the ban is
// confirmed, then applies the final status.
func (m *Manager) demoteChannelMember(ch telegram.InputChannel, input telegram.InputAccount, final domain.MemberStatus, finish func(error)) {
	m.goRequest(func(ctx context.Context) error {
		return m.transport.EditChannelBanned(ctx, ch, input, domain.BannedStatus(0))
	}, func(err error) {
		if err != nil {
			finish(err)
			return
		}
		m.logger.Debug("Member banned, final status follows",
			zap.Stringer("channel", ch.ID), zap.Stringer("user", input.ID), zap.Duration("delay", m.opts.DemoteDelay))
		m.clock.AfterFunc(m.opts.DemoteDelay, func() {
			m.post(func() {
				m.goRequest(func(ctx context.Context) error {
					return m.transport.EditChannelBanned(ctx, ch, input, final)
				}, finish)
			})
		})
	})
}

// Chat info

func (m *Manager) setTitle(ref domain.Ref, title string, done func(error)) {
	title = strings.TrimSpace(title)
	if title == "" {
		done(precondition("title must not be empty"))
		return
	}
	switch ref.Kind {
	case domain.KindBasicGroup:
		id := domain.ChatID(ref.ID)
		m.withGroup(id, done, func(r *basicGroupRecord) {
			if !r.IsActive || !r.Status.CanChangeInfo(r.DefaultPermissions) {
				done(precondition("not allowed to rename basic group %d", id))
				return
			}
			m.goRequest(func(ctx context.Context) error {
				return m.transport.EditTitle(ctx, telegram.Peer{BasicGroup: id}, title)
			}, func(err error) {
				if err == nil && r.Title != title {
					r.Title = title
					r.changed, r.dirty = true, true
					m.commitGroup(r)
				}
				done(classify(err))
			})
		})
	case domain.KindChannel:
		id := domain.ChannelID(ref.ID)
		m.withChannel(id, done, func(r *channelRecord) {
			if !canChangeChannelInfo(&r.Channel) {
				done(precondition("not allowed to rename channel %d", id))
				return
			}
			ch := m.inputChannel(id)
			m.goRequest(func(ctx context.Context) error {
				return m.transport.EditTitle(ctx, telegram.Peer{Channel: ch}, title)
			}, func(err error) {
				if err == nil && r.Title != title {
					r.Title = title
					r.changed, r.dirty = true, true
					m.commitChannel(r)
				}
				done(classify(err))
			})
		})
	default:
		done(precondition("%s cannot be renamed", ref))
	}
}

func (m *Manager) setDescription(ref domain.Ref, about string, done func(error)) {
	switch ref.Kind {
	case domain.KindBasicGroup:
		id := domain.ChatID(ref.ID)
		m.withGroup(id, done, func(r *basicGroupRecord) {
			if !r.IsActive || !r.Status.CanChangeInfo(r.DefaultPermissions) {
				done(precondition("not allowed to change the description of basic group %d", id))
				return
			}
			m.goRequest(func(ctx context.Context) error {
				return m.transport.EditAbout(ctx, telegram.Peer{BasicGroup: id}, about)
			}, func(err error) {
				if err == nil {
					if f, ok := m.groupFulls[id]; ok && f.received && f.Description != about {
						f.Description = about
						f.changed, f.dirty = true, true
						m.commitGroupFull(id, f)
					}
				}
				done(classify(err))
			})
		})
	case domain.KindChannel:
		id := domain.ChannelID(ref.ID)
		m.withChannel(id, done, func(r *channelRecord) {
			if !canChangeChannelInfo(&r.Channel) {
				done(precondition("not allowed to change the description of channel %d", id))
				return
			}
			ch := m.inputChannel(id)
			m.goRequest(func(ctx context.Context) error {
				return m.transport.EditAbout(ctx, telegram.Peer{Channel: ch}, about)
			}, func(err error) {
				if err == nil {
					if f, ok := m.channelFulls[id]; ok && f.received && f.Description != about {
						f.Description = about
						f.changed, f.dirty = true, true
						m.commitChannelFull(id, f)
					}
				}
				done(classify(err))
			})
		})
	default:
		done(precondition("%s has no description", ref))
	}
}

// Block list

func (m *Manager) setBlocked(user domain.UserID, blocked bool, done func(error)) {
	if user == m.selfID {
		done(precondition("cannot block the current account"))
		return
	}
	m.withAccount(user, done, func(a *accountRecord) {
		ref := domain.AccountRef(user)
		op := m.beginOp(ref, "set blocked")
		if f, ok := m.accountFulls[user]; ok && f.received && f.Blocked != blocked {
			f.Blocked = blocked
			f.changed = true
			m.commitAccountFull(user, f)
		}
		input := m.inputAccount(user)
		m.goRequest(func(ctx context.Context) error {
			return m.transport.SetBlocked(ctx, input, blocked)
		}, func(err error) {
			m.endOp(ref)
			if err != nil {
				m.speculationFailed(ref, op, err)
				done(classify(err))
				return
			}
			if f, ok := m.accountFulls[user]; ok && f.received {
				f.dirty = true
				m.commitAccountFull(user, f)
			}
			done(nil)
		})
	})
}
