package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/notify"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/telegram"
	"github.com/danhigham/tgcache/internal/timers"
)

// fakeTransport is an in-memory server. Every method counts its calls; a
// method can be made to block on a gate or to fail.
type fakeTransport struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}
	errs  map[string]error
	// log records mutating calls in the order they reached the server.
	log []string

	accounts     map[domain.UserID]domain.Account
	groups       map[domain.ChatID]telegram.BasicGroupSnapshot
	groupFulls   map[domain.ChatID]domain.BasicGroupFull
	channels     map[domain.ChannelID]telegram.ChannelSnapshot
	channelFulls map[domain.ChannelID]domain.ChannelFull
	members      map[domain.ChannelID][]domain.Member
	contacts     []domain.UserID
	savedCount   int32
	phones       map[string]domain.UserID
	// contactHashes are the hashes received by GetContacts.
	contactHashes []int64
}

var _ telegram.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		calls:        make(map[string]int),
		gates:        make(map[string]chan struct{}),
		errs:         make(map[string]error),
		accounts:     make(map[domain.UserID]domain.Account),
		groups:       make(map[domain.ChatID]telegram.BasicGroupSnapshot),
		groupFulls:   make(map[domain.ChatID]domain.BasicGroupFull),
		channels:     make(map[domain.ChannelID]telegram.ChannelSnapshot),
		channelFulls: make(map[domain.ChannelID]domain.ChannelFull),
		members:      make(map[domain.ChannelID][]domain.Member),
		phones:       make(map[string]domain.UserID),
	}
}

func (f *fakeTransport) enter(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls[name]++
	gate := f.gates[name]
	err := f.errs[name]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// gate makes name block until the returned channel is closed.
func (f *fakeTransport) gate(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[name] = ch
	return ch
}

func (f *fakeTransport) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeTransport) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeTransport) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, fmt.Sprintf(format, args...))
}

func (f *fakeTransport) calledInOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeTransport) update(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeTransport) GetAccounts(ctx context.Context, accounts []telegram.InputAccount) (*telegram.Entities, error) {
	if err := f.enter(ctx, "GetAccounts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &telegram.Entities{}
	for _, in := range accounts {
		if a, ok := f.accounts[in.ID]; ok {
			out.Accounts = append(out.Accounts, a)
		}
	}
	return out, nil
}

func (f *fakeTransport) GetBasicGroups(ctx context.Context, ids []domain.ChatID) (*telegram.Entities, error) {
	if err := f.enter(ctx, "GetBasicGroups"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &telegram.Entities{}
	for _, id := range ids {
		if g, ok := f.groups[id]; ok {
			out.BasicGroups = append(out.BasicGroups, g)
		}
	}
	return out, nil
}

func (f *fakeTransport) GetChannels(ctx context.Context, channels []telegram.InputChannel) (*telegram.Entities, error) {
	if err := f.enter(ctx, "GetChannels"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &telegram.Entities{}
	for _, in := range channels {
		if c, ok := f.channels[in.ID]; ok {
			out.Channels = append(out.Channels, c)
		}
	}
	return out, nil
}

func (f *fakeTransport) GetAccountFull(ctx context.Context, account telegram.InputAccount) (*telegram.AccountFullResult, error) {
	if err := f.enter(ctx, "GetAccountFull"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[account.ID]
	if !ok {
		return nil, errors.Wrap(telegram.ErrNotFound, "USER_ID_INVALID")
	}
	return &telegram.AccountFullResult{
		UserID:   account.ID,
		Full:     domain.AccountFull{About: "about " + a.FirstName},
		Entities: telegram.Entities{Accounts: []domain.Account{a}},
	}, nil
}

func (f *fakeTransport) GetBasicGroupFull(ctx context.Context, id domain.ChatID) (*telegram.BasicGroupFullResult, error) {
	if err := f.enter(ctx, "GetBasicGroupFull"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return nil, errors.Wrap(telegram.ErrNotFound, "CHAT_ID_INVALID")
	}
	full := f.groupFulls[id]
	full.Members = append([]domain.Member(nil), full.Members...)
	return &telegram.BasicGroupFullResult{
		ChatID:   id,
		Full:     full,
		Entities: telegram.Entities{BasicGroups: []telegram.BasicGroupSnapshot{g}},
	}, nil
}

func (f *fakeTransport) GetChannelFull(ctx context.Context, channel telegram.InputChannel) (*telegram.ChannelFullResult, error) {
	if err := f.enter(ctx, "GetChannelFull"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[channel.ID]
	if !ok {
		return nil, errors.Wrap(telegram.ErrNotFound, "CHANNEL_INVALID")
	}
	return &telegram.ChannelFullResult{
		ChannelID: channel.ID,
		Full:      f.channelFulls[channel.ID],
		Entities:  telegram.Entities{Channels: []telegram.ChannelSnapshot{c}},
	}, nil
}

func (f *fakeTransport) GetChannelMembers(ctx context.Context, channel telegram.InputChannel, filter telegram.MemberFilter, offset, limit int) (*telegram.MembersResult, error) {
	if err := f.enter(ctx, "GetChannelMembers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.members[channel.ID]
	page := []domain.Member{}
	for i := offset; i < len(all) && len(page) < limit; i++ {
		page = append(page, all[i])
	}
	return &telegram.MembersResult{Total: int32(len(all)), Members: page}, nil
}

func (f *fakeTransport) serverContactsHash() int64 {
	c := contactList{savedCount: f.savedCount}
	for _, id := range f.contacts {
		c.add(id)
	}
	return c.hash()
}

func (f *fakeTransport) GetContacts(ctx context.Context, hash int64) (*telegram.ContactsResult, error) {
	if err := f.enter(ctx, "GetContacts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactHashes = append(f.contactHashes, hash)
	if hash != 0 && hash == f.serverContactsHash() {
		return &telegram.ContactsResult{NotModified: true}, nil
	}
	res := &telegram.ContactsResult{
		UserIDs:    append([]domain.UserID(nil), f.contacts...),
		SavedCount: f.savedCount,
	}
	for _, id := range f.contacts {
		a := f.accounts[id]
		a.Outbound = domain.LinkContact
		res.Entities.Accounts = append(res.Entities.Accounts, a)
	}
	return res, nil
}

func (f *fakeTransport) ImportContacts(ctx context.Context, contacts []domain.Contact) (*telegram.ImportResult, error) {
	if err := f.enter(ctx, "ImportContacts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &telegram.ImportResult{UserIDs: make([]domain.UserID, len(contacts))}
	for i, c := range contacts {
		f.log = append(f.log, "import:"+c.Phone)
		id, ok := f.phones[normalizePhone(c.Phone)]
		if !ok {
			continue
		}
		res.UserIDs[i] = id
		f.contacts = append(f.contacts, id)
		a := f.accounts[id]
		a.Outbound = domain.LinkContact
		f.accounts[id] = a
		res.Entities.Accounts = append(res.Entities.Accounts, a)
	}
	return res, nil
}

func (f *fakeTransport) DeleteContacts(ctx context.Context, accounts []telegram.InputAccount) error {
	if err := f.enter(ctx, "DeleteContacts"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range accounts {
		f.log = append(f.log, fmt.Sprintf("delete:%d", in.ID))
		for i, id := range f.contacts {
			if id == in.ID {
				f.contacts = append(f.contacts[:i], f.contacts[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (f *fakeTransport) SetBlocked(ctx context.Context, account telegram.InputAccount, blocked bool) error {
	return f.enter(ctx, "SetBlocked")
}

func (f *fakeTransport) AddBasicGroupMember(ctx context.Context, id domain.ChatID, account telegram.InputAccount, forwardLimit int) (*telegram.InviteResult, error) {
	if err := f.enter(ctx, "AddBasicGroupMember"); err != nil {
		return nil, err
	}
	return &telegram.InviteResult{}, nil
}

func (f *fakeTransport) RemoveBasicGroupMember(ctx context.Context, id domain.ChatID, account telegram.InputAccount) error {
	return f.enter(ctx, "RemoveBasicGroupMember")
}

func (f *fakeTransport) SetBasicGroupAdmin(ctx context.Context, id domain.ChatID, account telegram.InputAccount, isAdmin bool) error {
	return f.enter(ctx, "SetBasicGroupAdmin")
}

func (f *fakeTransport) InviteToChannel(ctx context.Context, channel telegram.InputChannel, accounts []telegram.InputAccount) (*telegram.InviteResult, error) {
	if err := f.enter(ctx, "InviteToChannel"); err != nil {
		return nil, err
	}
	return &telegram.InviteResult{}, nil
}

func (f *fakeTransport) JoinChannel(ctx context.Context, channel telegram.InputChannel) error {
	return f.enter(ctx, "JoinChannel")
}

func (f *fakeTransport) LeaveChannel(ctx context.Context, channel telegram.InputChannel) error {
	return f.enter(ctx, "LeaveChannel")
}

func (f *fakeTransport) EditChannelAdmin(ctx context.Context, channel telegram.InputChannel, account telegram.InputAccount, rights domain.AdminRights, rank string) error {
	if err := f.enter(ctx, "EditChannelAdmin"); err != nil {
		return err
	}
	f.record("admin:%d:%t", account.ID, !rights.IsEmpty())
	return nil
}

func (f *fakeTransport) EditChannelBanned(ctx context.Context, channel telegram.InputChannel, account telegram.InputAccount, status domain.MemberStatus) error {
	if err := f.enter(ctx, "EditChannelBanned"); err != nil {
		return err
	}
	f.record("banned:%d:%s", account.ID, status)
	return nil
}

func (f *fakeTransport) EditTitle(ctx context.Context, peer telegram.Peer, title string) error {
	return f.enter(ctx, "EditTitle")
}

func (f *fakeTransport) EditAbout(ctx context.Context, peer telegram.Peer, about string) error {
	return f.enter(ctx, "EditAbout")
}

// harness runs a Manager over the fake transport, in-memory storage and a
// manual clock.
type harness struct {
	t     *testing.T
	m     *Manager
	ft    *fakeTransport
	store *persist.MemoryStorage
	clock *timers.ManualClock
	rec   *notify.Recorder
}

var epoch = time.Unix(1_700_000_000, 0)

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	return startHarness(t, newFakeTransport(), persist.NewMemoryStorage(), opts...)
}

func startHarness(t *testing.T, ft *fakeTransport, store *persist.MemoryStorage, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ft:    ft,
		store: store,
		clock: timers.NewManualClock(epoch),
		rec:   &notify.Recorder{},
	}
	o := Options{Clock: h.clock, Logger: zaptest.NewLogger(t), Sink: h.rec}
	for _, f := range opts {
		f(&o)
	}
	h.m = New(ft, store, o)
	go func() { _ = h.m.Run(context.Background()) }()
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

// do runs f on the loop.
func (h *harness) do(f func()) {
	h.t.Helper()
	require.NoError(h.t, h.m.exec(h.ctx(), f))
}

// eventually waits until cond, evaluated on the loop, holds.
func (h *harness) eventually(cond func() bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		ok := false
		err := h.m.exec(context.Background(), func() { ok = cond() })
		return err == nil && ok
	}, 5*time.Second, 5*time.Millisecond)
}

// flushSaves waits until no commit is in flight.
func (h *harness) flushSaves() {
	h.t.Helper()
	h.eventually(func() bool { return h.m.wb.Busy() == 0 })
}

const selfID domain.UserID = 1

func (h *harness) login() {
	h.do(func() {
		h.m.applyAccount(domain.Account{ID: selfID, AccessHash: 11, FirstName: "Me", IsSelf: true})
	})
}

func (h *harness) updatesFor(ref domain.Ref) []notify.Update {
	var out []notify.Update
	for _, u := range h.rec.Updates() {
		if u.Ref() == ref {
			out = append(out, u)
		}
	}
	return out
}

func member(id domain.UserID, status domain.MemberStatus) domain.Member {
	return domain.Member{UserID: id, InviterUserID: selfID, JoinedDate: 1, Status: status}
}

func regularMembers(n int, first domain.UserID) []domain.Member {
	out := make([]domain.Member, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, member(first+domain.UserID(i), domain.RegularStatus()))
	}
	return out
}
