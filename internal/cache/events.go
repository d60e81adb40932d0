package cache

import (
	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

var _ telegram.UpdateHandler = (*Manager)(nil)

// The UpdateHandler methods are called by the transport on its own
// goroutines; each one hands the event to the loop.

func (m *Manager) OnEntities(e *telegram.Entities) {
	m.post(func() { m.ingest(e) })
}

func (m *Manager) OnAccountName(id domain.UserID, firstName, lastName, username string) {
	m.post(func() { m.onAccountName(id, firstName, lastName, username) })
}

func (m *Manager) OnAccountPhone(id domain.UserID, phone string) {
	m.post(func() { m.onAccountPhone(id, phone) })
}

func (m *Manager) OnAccountPhoto(id domain.UserID, photo domain.Photo) {
	m.post(func() { m.setPhoto(domain.AccountRef(id), photo) })
}

func (m *Manager) OnAccountPresence(id domain.UserID, presence domain.Presence) {
	m.post(func() { m.onAccountPresence(id, presence) })
}

func (m *Manager) OnAccountBlocked(id domain.UserID, blocked bool) {
	m.post(func() { m.onAccountBlocked(id, blocked) })
}

func (m *Manager) OnBasicGroupChanged(id domain.ChatID) {
	m.post(func() {
		m.groupLoader.Reload(id, refreshed[domain.BasicGroup](m, domain.BasicGroupRef(id)))
	})
}

func (m *Manager) OnBasicGroupMembers(id domain.ChatID, creator domain.UserID, members []domain.Member, version int32) {
	m.post(func() { m.onGroupMembers(id, creator, members, version) })
}

func (m *Manager) OnBasicGroupMemberAdded(id domain.ChatID, user, inviter domain.UserID, date, version int32) {
	m.post(func() { m.onGroupMemberAdded(id, user, inviter, date, version) })
}

func (m *Manager) OnBasicGroupMemberRemoved(id domain.ChatID, user domain.UserID, version int32) {
	m.post(func() { m.onGroupMemberRemoved(id, user, version) })
}

func (m *Manager) OnBasicGroupMemberAdmin(id domain.ChatID, user domain.UserID, isAdmin bool, version int32) {
	m.post(func() { m.onGroupMemberAdmin(id, user, isAdmin, version) })
}

func (m *Manager) OnBasicGroupDefaultPermissions(id domain.ChatID, permissions domain.Permissions, version int32) {
	m.post(func() { m.onGroupDefaultPermissions(id, permissions, version) })
}

func (m *Manager) OnBasicGroupPinned(id domain.ChatID, messageIDs []int32, pinned bool, version int32) {
	m.post(func() { m.onGroupPinnedMessages(id, messageIDs, pinned, version) })
}

func (m *Manager) OnChannelChanged(id domain.ChannelID) {
	m.post(func() {
		m.channelLoader.Reload(id, refreshed[domain.Channel](m, domain.ChannelRef(id)))
	})
}

func (m *Manager) OnChannelMember(id domain.ChannelID, user domain.UserID, old, new domain.MemberStatus, date int32) {
	m.post(func() { m.onChannelMember(id, user, old, new, date) })
}

func (m *Manager) OnSecretChat(chat domain.SecretChat) {
	m.post(func() { m.applySecretChat(chat) })
}
