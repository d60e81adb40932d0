package cache

import (
	"context"
	"sort"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

func doneErr(done func(struct{}, error)) func(error) {
	return func(err error) { done(struct{}{}, err) }
}

func (m *Manager) run(ctx context.Context, f func(done func(error))) error {
	_, err := call(ctx, m, func(done func(struct{}, error)) {
		f(doneErr(done))
	})
	return err
}

// Reads. A record already in memory is returned without I/O; otherwise it is
// loaded from storage or the network.

func (m *Manager) Account(ctx context.Context, id domain.UserID) (domain.Account, error) {
	return call(ctx, m, func(done func(domain.Account, error)) {
		m.accountLoader.Load(id, m.opts.LoadTries, func(a domain.Account, err error) { done(a, classify(err)) })
	})
}

func (m *Manager) BasicGroup(ctx context.Context, id domain.ChatID) (domain.BasicGroup, error) {
	return call(ctx, m, func(done func(domain.BasicGroup, error)) {
		m.groupLoader.Load(id, m.opts.LoadTries, func(g domain.BasicGroup, err error) { done(g, classify(err)) })
	})
}

func (m *Manager) Channel(ctx context.Context, id domain.ChannelID) (domain.Channel, error) {
	return call(ctx, m, func(done func(domain.Channel, error)) {
		m.channelLoader.Load(id, m.opts.LoadTries, func(c domain.Channel, err error) { done(c, classify(err)) })
	})
}

func (m *Manager) SecretChat(ctx context.Context, id domain.SecretChatID) (domain.SecretChat, error) {
	return call(ctx, m, func(done func(domain.SecretChat, error)) {
		m.secretLoader.Load(id, 1, func(s domain.SecretChat, err error) { done(s, classify(err)) })
	})
}

// Full records. With force unset an expired record is returned as is and
// refreshed in the background; with force set the call waits for fresh
// data.

func (m *Manager) AccountFull(ctx context.Context, id domain.UserID, force bool) (domain.AccountFull, error) {
	return call(ctx, m, func(done func(domain.AccountFull, error)) {
		m.getAccountFull(id, force, done)
	})
}

func (m *Manager) BasicGroupFull(ctx context.Context, id domain.ChatID, force bool) (domain.BasicGroupFull, error) {
	return call(ctx, m, func(done func(domain.BasicGroupFull, error)) {
		m.getGroupFull(id, force, done)
	})
}

func (m *Manager) ChannelFull(ctx context.Context, id domain.ChannelID, force bool) (domain.ChannelFull, error) {
	return call(ctx, m, func(done func(domain.ChannelFull, error)) {
		m.getChannelFull(id, force, done)
	})
}

// Members lists the members of a basic group or channel. Basic groups
// return their whole list; channels return one page of the given filter and
// the server's total.
func (m *Manager) Members(ctx context.Context, ref domain.Ref, filter telegram.MemberFilter, offset, limit int) ([]domain.Member, int32, error) {
	type page struct {
		members []domain.Member
		total   int32
	}
	p, err := call(ctx, m, func(done func(page, error)) {
		switch ref.Kind {
		case domain.KindBasicGroup:
			m.getGroupFull(domain.ChatID(ref.ID), false, func(f domain.BasicGroupFull, err error) {
				done(page{f.Members, int32(len(f.Members))}, err)
			})
		case domain.KindChannel:
			m.channelMembers(domain.ChannelID(ref.ID), filter, offset, limit, func(ms []domain.Member, total int32, err error) {
				done(page{ms, total}, err)
			})
		default:
			done(page{}, precondition("%s has no members", ref))
		}
	})
	return p.members, p.total, err
}

// Snapshot is every record currently in memory.
type Snapshot struct {
	Accounts    []domain.Account
	BasicGroups []domain.BasicGroup
	Channels    []domain.Channel
	SecretChats []domain.SecretChat
	Contacts    []domain.UserID
}

// Snapshot copies every loaded record, ordered by id.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	return call(ctx, m, func(done func(Snapshot, error)) {
		var s Snapshot
		for _, r := range m.accounts {
			if r.received {
				s.Accounts = append(s.Accounts, r.Account)
			}
		}
		for _, r := range m.groups {
			if r.received {
				s.BasicGroups = append(s.BasicGroups, r.BasicGroup)
			}
		}
		for _, r := range m.channels {
			if r.received {
				s.Channels = append(s.Channels, r.Channel)
			}
		}
		for _, r := range m.secrets {
			if r.received {
				s.SecretChats = append(s.SecretChats, r.SecretChat)
			}
		}
		sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].ID < s.Accounts[j].ID })
		sort.Slice(s.BasicGroups, func(i, j int) bool { return s.BasicGroups[i].ID < s.BasicGroups[j].ID })
		sort.Slice(s.Channels, func(i, j int) bool { return s.Channels[i].ID < s.Channels[j].ID })
		sort.Slice(s.SecretChats, func(i, j int) bool { return s.SecretChats[i].ID < s.SecretChats[j].ID })
		s.Contacts = m.contacts.sorted()
		done(s, nil)
	})
}

// Contacts

// Contacts returns the contact list, syncing it first if it was never
// synced.
func (m *Manager) Contacts(ctx context.Context) ([]domain.UserID, error) {
	return call(ctx, m, func(done func([]domain.UserID, error)) {
		if m.contacts.known {
			done(m.contacts.sorted(), nil)
			return
		}
		m.syncContacts(func(err error) { done(m.contacts.sorted(), err) })
	})
}

// SyncContacts compares the local list with the server's and transfers it
// only if they differ.
func (m *Manager) SyncContacts(ctx context.Context) error {
	return m.run(ctx, m.syncContacts)
}

// ContactsHash returns the digest the next sync will send.
func (m *Manager) ContactsHash(ctx context.Context) (int64, error) {
	return call(ctx, m, func(done func(int64, error)) {
		done(m.contacts.hash(), nil)
	})
}

// SearchContacts finds contacts whose name, username or phone has a word
// starting with each word of query. It returns up to limit ids and the
// total number of matches.
func (m *Manager) SearchContacts(ctx context.Context, query string, limit int) ([]domain.UserID, int, error) {
	type found struct {
		ids   []domain.UserID
		total int
	}
	f, err := call(ctx, m, func(done func(found, error)) {
		ids, total := m.searchContacts(query, limit)
		done(found{ids, total}, nil)
	})
	return f.ids, f.total, err
}

func (m *Manager) ImportContacts(ctx context.Context, contacts []domain.Contact) (ImportOutcome, error) {
	contacts = append([]domain.Contact(nil), contacts...)
	return call(ctx, m, func(done func(ImportOutcome, error)) {
		m.importContacts(contacts, done)
	})
}

func (m *Manager) RemoveContacts(ctx context.Context, ids []domain.UserID) error {
	ids = append([]domain.UserID(nil), ids...)
	return m.run(ctx, func(done func(error)) { m.removeContacts(ids, done) })
}

// ReplaceContacts makes contacts the imported contact list. Entries present
// in the previous list with the same names are not sent again.
func (m *Manager) ReplaceContacts(ctx context.Context, contacts []domain.Contact) (ReplaceOutcome, error) {
	contacts = append([]domain.Contact(nil), contacts...)
	return call(ctx, m, func(done func(ReplaceOutcome, error)) {
		m.replaceContacts(contacts, done)
	})
}

// Mutations. Preconditions are checked locally; the expected effect is
// visible before the server confirms it.

func (m *Manager) AddMember(ctx context.Context, ref domain.Ref, user domain.UserID, forwardLimit int) error {
	return m.run(ctx, func(done func(error)) { m.addMember(ref, user, forwardLimit, done) })
}

func (m *Manager) RemoveMember(ctx context.Context, ref domain.Ref, user domain.UserID) error {
	return m.run(ctx, func(done func(error)) { m.removeMember(ref, user, done) })
}

// SetMemberStatus promotes, demotes, restricts or bans a member.
func (m *Manager) SetMemberStatus(ctx context.Context, ref domain.Ref, user domain.UserID, status domain.MemberStatus) error {
	return m.run(ctx, func(done func(error)) { m.setMemberStatus(ref, user, status, done) })
}

func (m *Manager) JoinChannel(ctx context.Context, id domain.ChannelID) error {
	return m.run(ctx, func(done func(error)) {
		m.withChannel(id, done, func(r *channelRecord) { m.joinChannel(r, done) })
	})
}

func (m *Manager) LeaveChannel(ctx context.Context, id domain.ChannelID) error {
	return m.run(ctx, func(done func(error)) {
		m.withChannel(id, done, func(r *channelRecord) { m.leaveChannel(r, done) })
	})
}

func (m *Manager) SetTitle(ctx context.Context, ref domain.Ref, title string) error {
	return m.run(ctx, func(done func(error)) { m.setTitle(ref, title, done) })
}

func (m *Manager) SetDescription(ctx context.Context, ref domain.Ref, about string) error {
	return m.run(ctx, func(done func(error)) { m.setDescription(ref, about, done) })
}

// SetPhoto records a photo that was already uploaded and confirmed.
func (m *Manager) SetPhoto(ctx context.Context, ref domain.Ref, photo domain.Photo) error {
	return m.run(ctx, func(done func(error)) {
		if !m.setPhoto(ref, photo) {
			done(precondition("%s is not loaded", ref))
			return
		}
		done(nil)
	})
}

func (m *Manager) Block(ctx context.Context, id domain.UserID) error {
	return m.run(ctx, func(done func(error)) { m.setBlocked(id, true, done) })
}

func (m *Manager) Unblock(ctx context.Context, id domain.UserID) error {
	return m.run(ctx, func(done func(error)) { m.setBlocked(id, false, done) })
}
