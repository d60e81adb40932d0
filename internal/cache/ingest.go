package cache

import (
	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

// ingest applies the records attached to a response or an update.
func (m *Manager) ingest(e *telegram.Entities) {
	if e.IsEmpty() {
		return
	}
	for _, a := range e.Accounts {
		m.applyAccount(a)
	}
	for _, g := range e.BasicGroups {
		m.applyGroupSnapshot(g)
	}
	for _, c := range e.Channels {
		m.applyChannelSnapshot(c)
	}
}

// applyAccount merges an account snapshot into the table.
func (m *Manager) applyAccount(in domain.Account) {
	if in.ID == 0 {
		return
	}
	r := m.addOrGetAccount(in.ID)
	prev := r.Account
	next := in

	if in.IsMin && r.received && !prev.IsMin {
		// A min snapshot cannot downgrade what a full one told us.
		next.IsMin = false
		next.AccessHash = prev.AccessHash
		next.Outbound, next.Inbound = prev.Outbound, prev.Inbound
		next.LanguageCode = prev.LanguageCode
		if next.Phone == "" {
			next.Phone = prev.Phone
		}
		if next.Presence.Kind == domain.PresenceEmpty {
			next.Presence = prev.Presence
		}
	}
	if next.AccessHash == 0 {
		next.AccessHash = prev.AccessHash
	}
	if next.Outbound == domain.LinkUnknown {
		next.Outbound = prev.Outbound
	}
	if next.Inbound == domain.LinkUnknown {
		next.Inbound = prev.Inbound
	}
	switch {
	case next.BotInfoVersion < prev.BotInfoVersion:
		next.BotInfoVersion = prev.BotInfoVersion
	case r.received && next.BotInfoVersion > prev.BotInfoVersion:
		// Bot commands and description changed.
		m.invalidateAccountFull(in.ID, false)
	}
	if prev.IsSelf {
		next.IsSelf = true
	}
	if next.IsSelf {
		m.setSelf(next.ID)
	}
	next.CacheVersion = accountCacheVersion

	first := !r.received
	r.Account = next
	r.received, r.changed, r.dirty = true, true, true
	if first || next.Presence != prev.Presence {
		r.statusChanged = true
	}
	m.commitAccount(r)

	if first || prev.Outbound != next.Outbound {
		m.contactLinkChanged(r)
	}
}

func (m *Manager) onAccountPresence(id domain.UserID, p domain.Presence) {
	r, ok := m.account(id)
	if !ok || r.Presence == p {
		return
	}
	r.Presence = p
	r.statusChanged = true
	m.commitAccount(r)
}

func (m *Manager) onAccountName(id domain.UserID, first, last, username string) {
	r, ok := m.account(id)
	if !ok {
		return
	}
	if r.FirstName == first && r.LastName == last && r.Username == username {
		return
	}
	r.FirstName, r.LastName, r.Username = first, last, username
	r.changed, r.dirty = true, true
	m.commitAccount(r)
}

func (m *Manager) onAccountPhone(id domain.UserID, phone string) {
	r, ok := m.account(id)
	if !ok || r.Phone == phone {
		return
	}
	r.Phone = phone
	if r.Outbound == domain.LinkNone && phone != "" {
		r.Outbound = domain.LinkKnowsPhoneNumber
	}
	r.changed, r.dirty = true, true
	m.commitAccount(r)
}

// setPhoto installs a confirmed photo reference on ref.
func (m *Manager) setPhoto(ref domain.Ref, photo domain.Photo) bool {
	switch ref.Kind {
	case domain.KindAccount:
		r, ok := m.account(domain.UserID(ref.ID))
		if !ok {
			return false
		}
		r.Photo = photo
		r.changed, r.dirty = true, true
		m.commitAccount(r)
	case domain.KindBasicGroup:
		r, ok := m.group(domain.ChatID(ref.ID))
		if !ok {
			return false
		}
		r.Photo = photo
		r.changed, r.dirty = true, true
		m.commitGroup(r)
	case domain.KindChannel:
		r, ok := m.channel(domain.ChannelID(ref.ID))
		if !ok {
			return false
		}
		r.Photo = photo
		r.changed, r.dirty = true, true
		m.commitChannel(r)
	default:
		return false
	}
	return true
}

func (m *Manager) onAccountBlocked(id domain.UserID, blocked bool) {
	r, ok := m.accountFulls[id]
	if !ok || !r.received || r.Blocked == blocked {
		return
	}
	r.Blocked = blocked
	r.changed, r.dirty = true, true
	m.commitAccountFull(id, r)
}
