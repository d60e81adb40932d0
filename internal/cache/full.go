package cache

import (
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/telegram"
)

func (m *Manager) fullTTL(id domain.UserID) time.Duration {
	if r, ok := m.account(id); ok && r.IsBot {
		return m.opts.FullInfoTTLBot
	}
	return m.opts.FullInfoTTL
}

func (m *Manager) applyAccountFull(res *telegram.AccountFullResult) {
	m.ingest(&res.Entities)
	r := m.addOrGetAccountFull(res.UserID)
	full := res.Full
	full.ExpiresAt = m.now().Add(m.fullTTL(res.UserID))
	r.AccountFull = full
	r.received, r.changed, r.dirty = true, true, true
	m.commitAccountFull(res.UserID, r)
}

func (m *Manager) applyGroupFull(res *telegram.BasicGroupFullResult) {
	m.ingest(&res.Entities)
	id := res.ChatID
	g := m.addOrGetGroup(id)
	if !g.received {
		m.logger.Debug("Full record without its basic group", zap.Stringer("id", id))
		return
	}
	full := res.Full
	if reconcileSnapshot(g.Version, full.Version) == outcomeStale {
		// The member list is older than what the deltas already told us.
		m.scheduleRepair(domain.BasicGroupRef(id))
		full.Members = nil
	} else if full.Version > g.Version {
		g.Version = full.Version
		g.dirty = true
	}
	if full.Members != nil {
		g.expected.clear()
		if n := int32(len(full.Members)); n != g.ParticipantCount {
			g.ParticipantCount = n
			g.changed, g.dirty = true, true
		}
		for _, mem := range full.Members {
			if mem.UserID == m.selfID && mem.Status != g.Status {
				g.Status = mem.Status
				g.changed, g.dirty = true, true
			}
		}
	}

	r := m.addOrGetGroupFull(id)
	if full.Members == nil && r.received {
		full.Members = r.Members
		full.Version = r.Version
	}
	// A pinned-message update applied while the snapshot was in flight is
	// newer than the snapshot's pinned message.
	since, fetched := m.pinnedAtFetch[id]
	delete(m.pinnedAtFetch, id)
	if r.received && fetched && g.PinnedMessageVersion > since {
		full.PinnedMessageID = r.PinnedMessageID
	}
	full.ExpiresAt = m.now().Add(m.opts.FullInfoTTL)
	r.BasicGroupFull = full
	r.received, r.changed, r.dirty = true, true, true
	m.commitGroupFull(id, r)
	m.commitGroup(g)
}

func (m *Manager) applyChannelFull(res *telegram.ChannelFullResult) {
	m.ingest(&res.Entities)
	id := res.ChannelID
	c := m.addOrGetChannel(id)
	if !c.received {
		m.logger.Debug("Full record without its channel", zap.Stringer("id", id))
		return
	}
	full := res.Full
	ref := domain.ChannelRef(id)
	if reconcileSnapshot(c.Version, full.Version) == outcomeStale {
		m.logger.Debug("Rejected stale channel full snapshot",
			zap.Stringer("ref", ref), zap.Int32("local", c.Version), zap.Int32("incoming", full.Version))
		m.scheduleRepair(ref)
		return
	}
	c.Version = full.Version
	c.expected.clear()
	c.countUnsure = false
	if full.ParticipantCount > 0 && full.ParticipantCount != c.ParticipantCount {
		c.ParticipantCount = full.ParticipantCount
		c.changed = true
	}
	c.dirty = true

	r := m.addOrGetChannelFull(id)
	if r.received && full.Members == nil {
		full.Members = r.Members
	}
	full.ExpiresAt = m.now().Add(m.opts.FullInfoTTL)
	r.ChannelFull = full
	r.received, r.changed, r.dirty = true, true, true
	m.commitChannelFull(id, r)
	m.commitChannel(c)
}

// markPinnedAtFetch remembers the pinned-message version a basic group full
// fetch starts from.
func (m *Manager) markPinnedAtFetch(id domain.ChatID) {
	v := int32(-1)
	if g, ok := m.groups[id]; ok && g.received {
		v = g.PinnedMessageVersion
	}
	m.pinnedAtFetch[id] = v
}

// Invalidation marks a full record expired so the next read refreshes it.
// With reload the refresh starts right away.

func (m *Manager) invalidateAccountFull(id domain.UserID, reload bool) {
	if r, ok := m.accountFulls[id]; ok && r.received {
		r.ExpiresAt = time.Time{}
		r.dirty = true
		m.commitAccountFull(id, r)
		if reload {
			m.accountFullLoader.Reload(id, refreshed[domain.AccountFull](m, domain.AccountRef(id)))
		}
	}
}

func (m *Manager) invalidateGroupFull(id domain.ChatID, reload bool) {
	if r, ok := m.groupFulls[id]; ok && r.received {
		r.ExpiresAt = time.Time{}
		r.dirty = true
		m.commitGroupFull(id, r)
	}
	if reload {
		m.groupFullLoader.Reload(id, refreshed[domain.BasicGroupFull](m, domain.BasicGroupRef(id)))
	}
}

// invalidateChannelFull also drops the cached member list.
func (m *Manager) invalidateChannelFull(id domain.ChannelID, reload bool) {
	if r, ok := m.channelFulls[id]; ok && r.received {
		r.ExpiresAt = time.Time{}
		r.Members = nil
		r.dirty = true
		m.commitChannelFull(id, r)
	}
	if reload {
		m.channelFullLoader.Reload(id, refreshed[domain.ChannelFull](m, domain.ChannelRef(id)))
	}
}

// Dropping evicts a full record the current account can no longer see.

func (m *Manager) dropGroupFull(id domain.ChatID) {
	r, ok := m.groupFulls[id]
	if !ok || !r.received {
		return
	}
	*r = basicGroupFullRecord{}
	ref := domain.BasicGroupRef(id)
	m.notifier.Forget(ref)
	m.wb.Save(persist.FullKey(ref), nil)
}

func (m *Manager) dropChannelFull(id domain.ChannelID) {
	r, ok := m.channelFulls[id]
	if !ok || !r.received {
		return
	}
	*r = channelFullRecord{}
	ref := domain.ChannelRef(id)
	m.notifier.Forget(ref)
	m.wb.Save(persist.FullKey(ref), nil)
}

// refreshed is the callback of a background load nobody waits for.
func refreshed[V any](m *Manager, ref domain.Ref) func(V, error) {
	return func(_ V, err error) {
		if err != nil && !errors.Is(err, ErrUnavailable) {
			m.logger.Debug("Background refresh failed", zap.Stringer("ref", ref), zap.Error(err))
		}
	}
}

// Repairs

// scheduleRepair queues a re-fetch of ref. Repairs requested close together
// collapse into one.
func (m *Manager) scheduleRepair(ref domain.Ref) {
	m.repairTimers.SetIfEarlier(ref, m.now().Add(m.opts.RepairDelay))
}

func (m *Manager) onRepair(ref domain.Ref) {
	m.logger.Debug("Repairing", zap.Stringer("ref", ref))
	switch ref.Kind {
	case domain.KindAccount:
		m.accountLoader.Reload(domain.UserID(ref.ID), refreshed[domain.Account](m, ref))
	case domain.KindBasicGroup:
		// The full snapshot carries the group itself and its member list.
		m.groupFullLoader.Reload(domain.ChatID(ref.ID), refreshed[domain.BasicGroupFull](m, ref))
	case domain.KindChannel:
		id := domain.ChannelID(ref.ID)
		m.channelLoader.Reload(id, refreshed[domain.Channel](m, ref))
		r, ok := m.channelFulls[id]
		if c, known := m.channels[id]; (ok && r.received) || (known && c.countUnsure) {
			m.channelFullLoader.Reload(id, refreshed[domain.ChannelFull](m, ref))
		}
	}
}

// Full record reads

func (m *Manager) getAccountFull(id domain.UserID, force bool, done func(domain.AccountFull, error)) {
	m.accountLoader.Load(id, m.opts.LoadTries, func(_ domain.Account, err error) {
		if err != nil {
			done(domain.AccountFull{}, classify(err))
			return
		}
		if r, ok := m.accountFulls[id]; ok && r.received {
			switch {
			case !r.IsExpired(m.now()):
				done(cloneAccountFull(&r.AccountFull), nil)
				return
			case !force:
				m.accountFullLoader.Reload(id, refreshed[domain.AccountFull](m, domain.AccountRef(id)))
				done(cloneAccountFull(&r.AccountFull), nil)
				return
			}
			m.accountFullLoader.Reload(id, func(f domain.AccountFull, err error) { done(f, classify(err)) })
			return
		}
		m.accountFullLoader.Load(id, 1, func(f domain.AccountFull, err error) { done(f, classify(err)) })
	})
}

func (m *Manager) getGroupFull(id domain.ChatID, force bool, done func(domain.BasicGroupFull, error)) {
	m.groupLoader.Load(id, m.opts.LoadTries, func(g domain.BasicGroup, err error) {
		if err != nil {
			done(domain.BasicGroupFull{}, classify(err))
			return
		}
		if !g.Status.IsMemberNow() && !g.IsMigrated() {
			done(domain.BasicGroupFull{}, errors.Wrapf(ErrInaccessible, "not a member of basic group %d", id))
			return
		}
		if r, ok := m.groupFulls[id]; ok && r.received {
			switch {
			case !r.IsExpired(m.now()):
				done(cloneGroupFull(&r.BasicGroupFull), nil)
				return
			case !force:
				m.groupFullLoader.Reload(id, refreshed[domain.BasicGroupFull](m, domain.BasicGroupRef(id)))
				done(cloneGroupFull(&r.BasicGroupFull), nil)
				return
			}
			m.groupFullLoader.Reload(id, func(f domain.BasicGroupFull, err error) { done(f, classify(err)) })
			return
		}
		m.groupFullLoader.Load(id, 1, func(f domain.BasicGroupFull, err error) { done(f, classify(err)) })
	})
}

func (m *Manager) getChannelFull(id domain.ChannelID, force bool, done func(domain.ChannelFull, error)) {
	m.channelLoader.Load(id, m.opts.LoadTries, func(_ domain.Channel, err error) {
		if err != nil {
			done(domain.ChannelFull{}, classify(err))
			return
		}
		finish := func(f domain.ChannelFull, err error) {
			if errors.Is(err, telegram.ErrInaccessible) {
				m.dropChannelFull(id)
			}
			done(f, classify(err))
		}
		if r, ok := m.channelFulls[id]; ok && r.received {
			switch {
			case !r.IsExpired(m.now()):
				done(cloneChannelFull(&r.ChannelFull), nil)
				return
			case !force:
				m.channelFullLoader.Reload(id, refreshed[domain.ChannelFull](m, domain.ChannelRef(id)))
				done(cloneChannelFull(&r.ChannelFull), nil)
				return
			}
			m.channelFullLoader.Reload(id, finish)
			return
		}
		m.channelFullLoader.Load(id, 1, finish)
	})
}

func cloneAccountFull(f *domain.AccountFull) domain.AccountFull {
	v := *f
	v.BotCommands = append([]domain.BotCommand(nil), f.BotCommands...)
	return v
}

func cloneGroupFull(f *domain.BasicGroupFull) domain.BasicGroupFull {
	v := *f
	v.Members = append([]domain.Member(nil), f.Members...)
	return v
}

func cloneChannelFull(f *domain.ChannelFull) domain.ChannelFull {
	v := *f
	if f.Members != nil {
		v.Members = append([]domain.Member{}, f.Members...)
	}
	return v
}
