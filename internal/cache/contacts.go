package cache

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/telegram"
)

const (
	importBatchSize = 100
	importRetries   = 2
)

// contactList is the current account's contact set together with the
// server-side saved contact count that enters the sync hash.
type contactList struct {
	ids        map[domain.UserID]struct{}
	savedCount int32
	// known is set once the set reflects a server answer.
	known bool
	// imported is the list last passed to a replace, keyed by phone.
	imported []domain.Contact

	syncing bool
	waiters []func(error)
}

func (c *contactList) has(id domain.UserID) bool {
	_, ok := c.ids[id]
	return ok
}

func (c *contactList) add(id domain.UserID) bool {
	if c.has(id) {
		return false
	}
	if c.ids == nil {
		c.ids = make(map[domain.UserID]struct{})
	}
	c.ids[id] = struct{}{}
	return true
}

func (c *contactList) remove(id domain.UserID) bool {
	if !c.has(id) {
		return false
	}
	delete(c.ids, id)
	return true
}

func (c *contactList) sorted() []domain.UserID {
	out := make([]domain.UserID, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// hash is the order-independent digest the server compares against its own
// copy of the list.
func (c *contactList) hash() int64 {
	ids := c.sorted()
	nums := make([]int64, 0, len(ids)+1)
	nums = append(nums, int64(c.savedCount))
	for _, id := range ids {
		nums = append(nums, int64(id))
	}
	return vectorHash(nums)
}

func (c *contactList) basis() persist.ContactsBasis {
	return persist.ContactsBasis{SavedCount: c.savedCount, UserIDs: c.sorted()}
}

func (c *contactList) restoreBasis(b persist.ContactsBasis) {
	c.ids = make(map[domain.UserID]struct{}, len(b.UserIDs))
	for _, id := range b.UserIDs {
		c.ids[id] = struct{}{}
	}
	c.savedCount = b.SavedCount
	c.known = true
}

// vectorHash is the server's list digest: a running xorshift mix of every
// number in order.
func vectorHash(nums []int64) int64 {
	var acc uint64
	for _, n := range nums {
		acc ^= acc >> 21
		acc ^= acc << 35
		acc ^= acc >> 4
		acc += uint64(n)
	}
	return int64(acc)
}

// normalizePhone keeps the digits of a phone number.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}

func (m *Manager) saveContacts() {
	b := m.contacts.basis()
	m.wb.Save(persist.KeyContactsHashBasis, persist.EncodeContactsBasis(&b))
	m.notifier.Contacts(b.UserIDs)
}

func (m *Manager) indexContact(r *accountRecord) {
	if !m.contacts.has(r.ID) {
		m.index.Remove(int64(r.ID))
		return
	}
	m.index.Add(int64(r.ID), r.DisplayName(), r.Username, r.Phone)
}

// contactLinkChanged follows an account's outbound link into the contact
// set.
func (m *Manager) contactLinkChanged(r *accountRecord) {
	var changed bool
	if r.Outbound == domain.LinkContact {
		changed = m.contacts.add(r.ID)
	} else if r.Outbound != domain.LinkUnknown {
		changed = m.contacts.remove(r.ID)
	}
	if changed {
		m.indexContact(r)
		m.saveContacts()
	}
}

// setLink downgrades or upgrades the outbound link of a known account.
func (m *Manager) setLink(id domain.UserID, contact bool) {
	r, ok := m.account(id)
	if !ok {
		return
	}
	next := domain.LinkNone
	switch {
	case contact:
		next = domain.LinkContact
	case r.Phone != "":
		next = domain.LinkKnowsPhoneNumber
	}
	if r.Outbound == next {
		return
	}
	r.Outbound = next
	if !contact && r.Inbound == domain.LinkContact {
		// Mutual status depends on both sides.
		r.Inbound = domain.LinkKnowsPhoneNumber
	}
	r.changed, r.dirty = true, true
	m.commitAccount(r)
}

// Sync

func (m *Manager) syncContacts(done func(error)) {
	c := &m.contacts
	c.waiters = append(c.waiters, done)
	if c.syncing {
		return
	}
	c.syncing = true

	var hash int64
	if c.known {
		hash = c.hash()
	}
	var res *telegram.ContactsResult
	m.goRequest(func(ctx context.Context) (err error) {
		res, err = m.transport.GetContacts(ctx, hash)
		return err
	}, func(err error) {
		c.syncing = false
		if err == nil {
			m.applyContacts(res)
		} else {
			m.logger.Warn("Contact sync failed", zap.Error(err))
		}
		waiters := c.waiters
		c.waiters = nil
		for _, w := range waiters {
			w(classify(err))
		}
	})
}

func (m *Manager) applyContacts(res *telegram.ContactsResult) {
	c := &m.contacts
	if res.NotModified {
		m.logger.Debug("Contact list not modified", zap.Int("contacts", len(c.ids)))
		c.known = true
		return
	}
	next := make(map[domain.UserID]struct{}, len(res.UserIDs))
	for _, id := range res.UserIDs {
		next[id] = struct{}{}
	}
	prev := c.ids
	c.ids = next
	c.savedCount = res.SavedCount
	c.known = true
	// The set is installed first so the attached accounts do not announce
	// themselves one by one.
	m.ingest(&res.Entities)

	for id := range prev {
		if _, ok := next[id]; !ok {
			m.setLink(id, false)
			m.index.Remove(int64(id))
		}
	}
	for id := range next {
		m.setLink(id, true)
		if r, ok := m.account(id); ok {
			m.indexContact(r)
		}
	}
	m.logger.Info("Contact list synced", zap.Int("contacts", len(next)), zap.Int32("saved", res.SavedCount))
	m.saveContacts()
}

func (m *Manager) periodicContactsSync() {
	m.syncContacts(func(error) {})
	if m.opts.ContactsSyncInterval > 0 {
		m.syncTimer.Set(struct{}{}, m.now().Add(m.opts.ContactsSyncInterval))
	}
}

// Import

// ImportOutcome reports the result of an import per input contact.
type ImportOutcome struct {
	// UserIDs is indexed like the input; zero means the phone number is not
	// registered.
	UserIDs []domain.UserID
	// Failed lists input indexes the server did not process even after
	// retrying.
	Failed []int
}

// importAll sends contacts in batches, resending the entries the server
// asks for. It runs off the loop.
func importAll(ctx context.Context, t telegram.Transport, contacts []domain.Contact) (ImportOutcome, *telegram.Entities, error) {
	out := ImportOutcome{UserIDs: make([]domain.UserID, len(contacts))}
	ents := &telegram.Entities{}
	for start := 0; start < len(contacts); start += importBatchSize {
		end := min(start+importBatchSize, len(contacts))
		pending := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			pending = append(pending, i)
		}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > importRetries {
				out.Failed = append(out.Failed, pending...)
				break
			}
			batch := make([]domain.Contact, len(pending))
			for j, i := range pending {
				batch[j] = contacts[i]
			}
			res, err := t.ImportContacts(ctx, batch)
			if err != nil {
				return out, ents, err
			}
			ents.Merge(&res.Entities)
			for j, id := range res.UserIDs {
				if j < len(pending) && id != 0 {
					out.UserIDs[pending[j]] = id
				}
			}
			retry := make([]int, 0, len(res.Retry))
			for _, j := range res.Retry {
				if j >= 0 && j < len(pending) {
					retry = append(retry, pending[j])
				}
			}
			pending = retry
		}
	}
	return out, ents, nil
}

func (m *Manager) importContacts(contacts []domain.Contact, done func(ImportOutcome, error)) {
	for i, c := range contacts {
		if normalizePhone(c.Phone) == "" {
			done(ImportOutcome{}, precondition("contact %d has no phone number", i))
			return
		}
	}
	if len(contacts) == 0 {
		done(ImportOutcome{}, nil)
		return
	}
	var (
		out  ImportOutcome
		ents *telegram.Entities
	)
	m.goRequest(func(ctx context.Context) (err error) {
		out, ents, err = importAll(ctx, m.transport, contacts)
		return err
	}, func(err error) {
		changed := false
		for _, id := range out.UserIDs {
			if id != 0 && m.contacts.add(id) {
				changed = true
			}
		}
		m.ingest(ents)
		for _, id := range out.UserIDs {
			if id == 0 {
				continue
			}
			m.setLink(id, true)
			if r, ok := m.account(id); ok {
				m.indexContact(r)
			}
		}
		if err != nil {
			if changed {
				m.saveContacts()
			}
			done(out, classify(err))
			return
		}
		if changed {
			m.saveContacts()
		}
		if len(out.Failed) > 0 {
			m.logger.Info("Some contacts were not imported", zap.Int("failed", len(out.Failed)))
		}
		done(out, nil)
	})
}

// Remove

func (m *Manager) removeContacts(ids []domain.UserID, done func(error)) {
	var inputs []telegram.InputAccount
	for _, id := range ids {
		if !m.contacts.has(id) {
			continue
		}
		inputs = append(inputs, m.inputAccount(id))
	}
	if len(inputs) == 0 {
		done(nil)
		return
	}

	for _, in := range inputs {
		m.contacts.remove(in.ID)
		m.index.Remove(int64(in.ID))
		m.setLink(in.ID, false)
	}
	m.saveContacts()

	m.goRequest(func(ctx context.Context) error {
		return m.transport.DeleteContacts(ctx, inputs)
	}, func(err error) {
		if err != nil {
			// The local list no longer matches the server; resync from scratch.
			m.logger.Info("Contact removal failed, resyncing", zap.Error(err))
			m.contacts.known = false
			m.syncContacts(func(error) {})
			done(classify(err))
			return
		}
		done(nil)
	})
}

// Replace

// ReplaceOutcome reports what a contact list replacement did.
type ReplaceOutcome struct {
	Added     int
	Removed   int
	Unchanged int
	Import    ImportOutcome
}

// diffContacts splits next against prev by phone number. Entries whose
// names changed are re-imported.
func diffContacts(prev, next []domain.Contact) (added []domain.Contact, removed []domain.UserID, kept []domain.Contact) {
	old := make(map[string]domain.Contact, len(prev))
	for _, c := range prev {
		old[normalizePhone(c.Phone)] = c
	}
	seen := make(map[string]bool, len(next))
	for _, c := range next {
		key := normalizePhone(c.Phone)
		if seen[key] {
			continue
		}
		seen[key] = true
		o, ok := old[key]
		if ok && o.FirstName == c.FirstName && o.LastName == c.LastName {
			kept = append(kept, o)
			continue
		}
		added = append(added, c)
	}
	for key, c := range old {
		if !seen[key] && c.UserID != 0 {
			removed = append(removed, c.UserID)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return added, removed, kept
}

func (m *Manager) replaceContacts(next []domain.Contact, done func(ReplaceOutcome, error)) {
	added, removed, kept := diffContacts(m.contacts.imported, next)
	out := ReplaceOutcome{Added: len(added), Removed: len(removed), Unchanged: len(kept)}
	m.removeContacts(removed, func(err error) {
		if err != nil {
			done(out, err)
			return
		}
		m.importContacts(added, func(res ImportOutcome, err error) {
			out.Import = res
			if err != nil {
				done(out, err)
				return
			}
			list := append([]domain.Contact(nil), kept...)
			for i, c := range added {
				if i < len(res.UserIDs) {
					c.UserID = res.UserIDs[i]
				}
				list = append(list, c)
			}
			m.contacts.imported = list
			m.wb.Save(persist.KeyImportedContacts, persist.EncodeContacts(list))
			done(out, nil)
		})
	})
}

// Search

func (m *Manager) searchContacts(query string, limit int) ([]domain.UserID, int) {
	keys, total := m.index.Search(query, limit)
	if total == 0 && strings.TrimSpace(query) != "" {
		keys = m.index.Fuzzy(query, limit)
		total = len(keys)
	}
	out := make([]domain.UserID, len(keys))
	for i, k := range keys {
		out[i] = domain.UserID(k)
	}
	return out, total
}
