package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/persist"
)

// Record layout versions produced by this build. Records derived by an older
// build are refreshed from the network when next committed.
const (
	accountCacheVersion    = 3
	basicGroupCacheVersion = 2
	channelCacheVersion    = 2
)

// Every table entry wraps the domain record with bookkeeping flags:
// received is false for placeholders created only to satisfy a reference,
// changed asks commit to notify and dirty asks it to save.

type accountRecord struct {
	domain.Account
	received      bool
	changed       bool
	statusChanged bool
	dirty         bool
}

type accountFullRecord struct {
	domain.AccountFull
	received bool
	changed  bool
	dirty    bool
}

type basicGroupRecord struct {
	domain.BasicGroup
	received bool
	changed  bool
	dirty    bool
	expected expectations
}

type basicGroupFullRecord struct {
	domain.BasicGroupFull
	received bool
	changed  bool
	dirty    bool
}

type channelRecord struct {
	domain.Channel
	received bool
	changed  bool
	dirty    bool
	expected expectations
	// countUnsure is set when a snapshot replaced ParticipantCount while
	// speculative changes were pending; the next full snapshot settles it.
	countUnsure bool
}

type channelFullRecord struct {
	domain.ChannelFull
	received bool
	changed  bool
	dirty    bool
}

type secretChatRecord struct {
	domain.SecretChat
	received bool
	changed  bool
	dirty    bool
}

// Placeholders. Creating one never notifies or saves.

func (m *Manager) addOrGetAccount(id domain.UserID) *accountRecord {
	r, ok := m.accounts[id]
	if !ok {
		r = &accountRecord{Account: domain.Account{ID: id}}
		m.accounts[id] = r
	}
	return r
}

func (m *Manager) addOrGetAccountFull(id domain.UserID) *accountFullRecord {
	r, ok := m.accountFulls[id]
	if !ok {
		r = &accountFullRecord{}
		m.accountFulls[id] = r
	}
	return r
}

func (m *Manager) addOrGetGroup(id domain.ChatID) *basicGroupRecord {
	r, ok := m.groups[id]
	if !ok {
		r = &basicGroupRecord{BasicGroup: domain.BasicGroup{ID: id}}
		m.groups[id] = r
	}
	return r
}

func (m *Manager) addOrGetGroupFull(id domain.ChatID) *basicGroupFullRecord {
	r, ok := m.groupFulls[id]
	if !ok {
		r = &basicGroupFullRecord{}
		m.groupFulls[id] = r
	}
	return r
}

func (m *Manager) addOrGetChannel(id domain.ChannelID) *channelRecord {
	r, ok := m.channels[id]
	if !ok {
		r = &channelRecord{Channel: domain.Channel{ID: id}}
		m.channels[id] = r
	}
	return r
}

func (m *Manager) addOrGetChannelFull(id domain.ChannelID) *channelFullRecord {
	r, ok := m.channelFulls[id]
	if !ok {
		r = &channelFullRecord{}
		m.channelFulls[id] = r
	}
	return r
}

func (m *Manager) addOrGetSecretChat(id domain.SecretChatID) *secretChatRecord {
	r, ok := m.secrets[id]
	if !ok {
		r = &secretChatRecord{SecretChat: domain.SecretChat{ID: id}}
		m.secrets[id] = r
	}
	return r
}

// Lookups used by the loaders' memory tier.

func (m *Manager) account(id domain.UserID) (*accountRecord, bool) {
	r, ok := m.accounts[id]
	if !ok || !r.received {
		return nil, false
	}
	return r, true
}

func (m *Manager) group(id domain.ChatID) (*basicGroupRecord, bool) {
	r, ok := m.groups[id]
	if !ok || !r.received {
		return nil, false
	}
	return r, true
}

func (m *Manager) channel(id domain.ChannelID) (*channelRecord, bool) {
	r, ok := m.channels[id]
	if !ok || !r.received {
		return nil, false
	}
	return r, true
}

// Commit publishes, saves and re-arms timers for a mutated record.

func (m *Manager) commitAccount(r *accountRecord) {
	ref := domain.AccountRef(r.ID)
	m.hashes.set(ref, r.AccessHash)
	if !r.received {
		return
	}
	if r.changed {
		r.changed = false
		m.notifier.Account(&r.Account)
		m.indexContact(r)
	}
	if r.statusChanged {
		r.statusChanged = false
		m.notifier.AccountStatus(r.ID, r.Presence)
		if r.ID == m.selfID {
			m.saveSelfOnline(r.Presence)
		}
	}
	if r.dirty {
		r.dirty = false
		m.wb.Save(persist.EntityKey(ref), persist.EncodeAccount(&r.Account))
	}
	m.armPresence(r)
	if r.CacheVersion < accountCacheVersion && m.canReadAccount(r) {
		m.scheduleRepair(ref)
	}
}

func (m *Manager) commitAccountFull(id domain.UserID, r *accountFullRecord) {
	if !r.received {
		return
	}
	if r.changed {
		r.changed = false
		m.notifier.AccountFull(id, &r.AccountFull)
	}
	if r.dirty {
		r.dirty = false
		m.wb.Save(persist.FullKey(domain.AccountRef(id)), persist.EncodeAccountFull(&r.AccountFull))
	}
}

func (m *Manager) commitGroup(r *basicGroupRecord) {
	if !r.received {
		return
	}
	ref := domain.BasicGroupRef(r.ID)
	if r.changed {
		r.changed = false
		m.notifier.BasicGroup(&r.BasicGroup)
	}
	if r.dirty {
		r.dirty = false
		m.wb.Save(persist.EntityKey(ref), persist.EncodeBasicGroup(&r.BasicGroup))
	}
	if r.CacheVersion < basicGroupCacheVersion && r.Status.IsMemberNow() {
		m.scheduleRepair(ref)
	}
}

func (m *Manager) commitGroupFull(id domain.ChatID, r *basicGroupFullRecord) {
	if !r.received {
		return
	}
	if r.changed {
		r.changed = false
		m.notifier.BasicGroupFull(id, &r.BasicGroupFull)
	}
	if r.dirty {
		r.dirty = false
		m.wb.Save(persist.FullKey(domain.BasicGroupRef(id)), persist.EncodeBasicGroupFull(&r.BasicGroupFull))
	}
}

func (m *Manager) commitChannel(r *channelRecord) {
	ref := domain.ChannelRef(r.ID)
	m.hashes.set(ref, r.AccessHash)
	if !r.received {
		return
	}
	if r.changed {
		r.changed = false
		m.notifier.Channel(&r.Channel)
	}
	if r.dirty {
		r.dirty = false
		m.wb.Save(persist.EntityKey(ref), persist.EncodeChannel(&r.Channel))
	}
	if at := r.Status.ExpiresAt(); !at.IsZero() {
		m.statusTimers.Set(ref, at)
	} else {
		m.statusTimers.Cancel(ref)
	}
	if r.CacheVersion < channelCacheVersion && r.AccessHash != 0 {
		m.scheduleRepair(ref)
	}
}

func (m *Manager) commitChannelFull(id domain.ChannelID, r *channelFullRecord) {
	if !r.received {
		return
	}
	if r.changed {
		r.changed = false
		m.notifier.ChannelFull(id, &r.ChannelFull)
	}
	if r.dirty {
		r.dirty = false
		m.wb.Save(persist.FullKey(domain.ChannelRef(id)), persist.EncodeChannelFull(&r.ChannelFull))
	}
}

func (m *Manager) commitSecretChat(r *secretChatRecord) {
	if !r.received {
		return
	}
	if r.changed {
		r.changed = false
		m.notifier.SecretChat(&r.SecretChat)
	}
	if r.dirty {
		r.dirty = false
		m.wb.Save(persist.EntityKey(domain.SecretChatRef(r.ID)), persist.EncodeSecretChat(&r.SecretChat))
	}
}

func (m *Manager) canReadAccount(r *accountRecord) bool {
	return r.AccessHash != 0 || r.ID == m.selfID
}

// Timers

func (m *Manager) armPresence(r *accountRecord) {
	if r.Presence.Kind != domain.PresenceOnline || r.ID == m.selfID {
		m.presenceTimers.Cancel(r.ID)
		return
	}
	m.presenceTimers.Set(r.ID, time.Unix(int64(r.Presence.Expires), 0))
}

func (m *Manager) onPresenceExpired(id domain.UserID) {
	r, ok := m.account(id)
	if !ok || r.Presence.Kind != domain.PresenceOnline {
		return
	}
	if r.Presence.IsOnline(m.now()) {
		m.armPresence(r)
		return
	}
	r.Presence = domain.OfflinePresence(r.Presence.Expires)
	r.statusChanged = true
	m.commitAccount(r)
}

func (m *Manager) onStatusExpired(ref domain.Ref) {
	switch ref.Kind {
	case domain.KindChannel:
		r, ok := m.channel(domain.ChannelID(ref.ID))
		if !ok {
			return
		}
		next := r.Status.Updated(m.now())
		if next == r.Status {
			m.commitChannel(r)
			return
		}
		m.logger.Debug("Member status expired", zap.Stringer("ref", ref), zap.Stringer("status", next))
		wasMember := r.Status.IsMemberNow()
		r.Status = next
		r.changed, r.dirty = true, true
		if wasMember != next.IsMemberNow() {
			m.invalidateChannelFull(r.ID, false)
		}
		m.commitChannel(r)
	}
}

func (m *Manager) saveSelfOnline(p domain.Presence) {
	at := p.WasOnline
	if p.Kind == domain.PresenceOnline {
		at = p.Expires
	}
	if at == 0 || at == m.selfOnline {
		return
	}
	m.selfOnline = at
	m.wb.Save(persist.KeyOnlineStatus, persist.EncodeInt64(int64(at)))
}

func (m *Manager) setSelf(id domain.UserID) {
	if m.selfID == id {
		return
	}
	if m.selfID != 0 {
		m.logger.Warn("Self id changed", zap.Stringer("old", m.selfID), zap.Stringer("new", id))
	}
	m.selfID = id
	m.wb.Save(persist.KeySelfID, persist.EncodeInt64(int64(id)))
	m.presenceTimers.Cancel(id)
}

// Restore

// restore loads scalars and replays unconfirmed changes. It runs on the loop
// before any request is served.
func (m *Manager) restore(ctx context.Context) error {
	for _, key := range []string{persist.KeySelfID, persist.KeyOnlineStatus, persist.KeyContactsHashBasis, persist.KeyImportedContacts} {
		data, err := m.storage.Get(ctx, key)
		if err != nil {
			return errors.Wrapf(err, "read %s", key)
		}
		if data != nil {
			m.applyScalar(key, data)
		}
	}

	entries, err := m.wb.Replay(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		m.replay(e)
	}
	if len(entries) > 0 {
		m.logger.Info("Replayed pending changes", zap.Int("count", len(entries)))
	}
	return nil
}

func (m *Manager) replay(e persist.LogEntry) {
	switch e.Key {
	case persist.KeySelfID, persist.KeyOnlineStatus, persist.KeyContactsHashBasis, persist.KeyImportedContacts:
		if e.Value != nil {
			m.applyScalar(e.Key, e.Value)
		}
	default:
		ref, full, err := persist.ParseKey(e.Key)
		if err != nil {
			m.logger.Warn("Dropping unknown pending change", zap.String("key", e.Key), zap.Error(err))
			return
		}
		if e.Value != nil {
			m.applyStored(ref, full, e.Value)
		}
	}
	// Re-issue the write; it replaces the stale log entries once committed.
	m.wb.Save(e.Key, e.Value)
}

func (m *Manager) applyScalar(key string, data []byte) {
	switch key {
	case persist.KeySelfID:
		v, err := persist.DecodeInt64(data)
		if err != nil {
			m.logger.Warn("Corrupt self id", zap.Error(err))
			return
		}
		m.selfID = domain.UserID(v)
	case persist.KeyOnlineStatus:
		v, err := persist.DecodeInt64(data)
		if err != nil {
			m.logger.Warn("Corrupt online status", zap.Error(err))
			return
		}
		m.selfOnline = int32(v)
	case persist.KeyContactsHashBasis:
		b, err := persist.DecodeContactsBasis(data)
		if err != nil {
			m.logger.Warn("Corrupt contacts hash basis", zap.Error(err))
			return
		}
		m.contacts.restoreBasis(b)
	case persist.KeyImportedContacts:
		list, err := persist.DecodeContacts(data)
		if err != nil {
			m.logger.Warn("Corrupt imported contacts", zap.Error(err))
			return
		}
		m.contacts.imported = list
	}
}

// applyStored installs a persisted record unless memory already holds data
// for it. Corrupt blobs are logged and treated as absent.
func (m *Manager) applyStored(ref domain.Ref, full bool, data []byte) bool {
	err := m.installStored(ref, full, data)
	if err != nil {
		m.logger.Warn("Ignoring unreadable stored record", zap.Stringer("ref", ref), zap.Bool("full", full), zap.Error(err))
		return false
	}
	return true
}

func (m *Manager) installStored(ref domain.Ref, full bool, data []byte) error {
	switch {
	case ref.Kind == domain.KindAccount && !full:
		a, err := persist.DecodeAccount(data)
		if err != nil {
			return err
		}
		r := m.addOrGetAccount(a.ID)
		if r.received {
			return nil
		}
		r.Account, r.received, r.changed, r.statusChanged = a, true, true, true
		m.commitAccount(r)
	case ref.Kind == domain.KindAccount:
		f, err := persist.DecodeAccountFull(data)
		if err != nil {
			return err
		}
		r := m.addOrGetAccountFull(domain.UserID(ref.ID))
		if r.received {
			return nil
		}
		r.AccountFull, r.received, r.changed = f, true, true
		m.commitAccountFull(domain.UserID(ref.ID), r)
	case ref.Kind == domain.KindBasicGroup && !full:
		g, err := persist.DecodeBasicGroup(data)
		if err != nil {
			return err
		}
		r := m.addOrGetGroup(g.ID)
		if r.received {
			return nil
		}
		r.BasicGroup, r.received, r.changed = g, true, true
		m.commitGroup(r)
	case ref.Kind == domain.KindBasicGroup:
		f, err := persist.DecodeBasicGroupFull(data)
		if err != nil {
			return err
		}
		r := m.addOrGetGroupFull(domain.ChatID(ref.ID))
		if r.received {
			return nil
		}
		r.BasicGroupFull, r.received, r.changed = f, true, true
		m.commitGroupFull(domain.ChatID(ref.ID), r)
	case ref.Kind == domain.KindChannel && !full:
		c, err := persist.DecodeChannel(data)
		if err != nil {
			return err
		}
		r := m.addOrGetChannel(c.ID)
		if r.received {
			return nil
		}
		if c.AccessHash == 0 {
			c.AccessHash = r.AccessHash
		}
		r.Channel, r.received, r.changed = c, true, true
		m.commitChannel(r)
	case ref.Kind == domain.KindChannel:
		f, err := persist.DecodeChannelFull(data)
		if err != nil {
			return err
		}
		r := m.addOrGetChannelFull(domain.ChannelID(ref.ID))
		if r.received {
			return nil
		}
		r.ChannelFull, r.received, r.changed = f, true, true
		m.commitChannelFull(domain.ChannelID(ref.ID), r)
	case ref.Kind == domain.KindSecretChat && !full:
		s, err := persist.DecodeSecretChat(data)
		if err != nil {
			return err
		}
		r := m.addOrGetSecretChat(s.ID)
		if r.received {
			return nil
		}
		r.SecretChat, r.received, r.changed = s, true, true
		m.commitSecretChat(r)
	default:
		return errors.Errorf("unexpected record %s (full=%v)", ref, full)
	}
	return nil
}
