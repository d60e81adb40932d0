package ui

import (
	"context"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgcache/internal/cache"
	"github.com/danhigham/tgcache/internal/domain"
)

type fakeCache struct {
	snapshot  cache.Snapshot
	fullCalls map[domain.Ref]int
	forced    int
	fullErr   error
}

func (f *fakeCache) Snapshot(ctx context.Context) (cache.Snapshot, error) {
	return f.snapshot, nil
}

func (f *fakeCache) full(ref domain.Ref, force bool) {
	if f.fullCalls == nil {
		f.fullCalls = make(map[domain.Ref]int)
	}
	f.fullCalls[ref]++
	if force {
		f.forced++
	}
}

func (f *fakeCache) AccountFull(ctx context.Context, id domain.UserID, force bool) (domain.AccountFull, error) {
	f.full(domain.AccountRef(id), force)
	return domain.AccountFull{About: "likes tea"}, f.fullErr
}

func (f *fakeCache) BasicGroupFull(ctx context.Context, id domain.ChatID, force bool) (domain.BasicGroupFull, error) {
	f.full(domain.BasicGroupRef(id), force)
	return domain.BasicGroupFull{Description: "team chat", CreatorUserID: 1}, f.fullErr
}

func (f *fakeCache) ChannelFull(ctx context.Context, id domain.ChannelID, force bool) (domain.ChannelFull, error) {
	f.full(domain.ChannelRef(id), force)
	return domain.ChannelFull{Description: "announcements"}, f.fullErr
}

func testSnapshot() cache.Snapshot {
	return cache.Snapshot{
		Accounts: []domain.Account{
			{ID: 1, FirstName: "Ada", Username: "ada"},
			{ID: 2, FirstName: "Bob"},
		},
		BasicGroups: []domain.BasicGroup{{ID: 10, Title: "Team", ParticipantCount: 2, IsActive: true}},
		Channels:    []domain.Channel{{ID: 20, Title: "News", IsBroadcast: true}},
		SecretChats: []domain.SecretChat{{ID: 30, UserID: 2, State: domain.SecretChatActive}},
		Contacts:    []domain.UserID{1},
	}
}

// run executes cmd and feeds every resulting message back into m.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		switch msg := msg.(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		case SplashDoneMsg, clockTickMsg:
			continue
		}
		next, more := m.Update(msg)
		m = next.(Model)
		queue = append(queue, more)
	}
	return m
}

func TestModel_LoadsSnapshotAndDetail(t *testing.T) {
	fc := &fakeCache{snapshot: testSnapshot()}
	m := NewModel(context.Background(), fc)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)

	m = run(t, m, m.loadSnapshot())

	assert.Equal(t, 5, m.list.Len())
	assert.Equal(t, 5, m.status.entities)
	assert.Equal(t, 1, m.status.contacts)

	ref, ok := m.list.Selected()
	require.True(t, ok)
	assert.Equal(t, domain.AccountRef(1), ref)
	assert.Equal(t, ref, m.detail.Ref())
	assert.Contains(t, m.detail.markdown, "likes tea")
	assert.Equal(t, 1, fc.fullCalls[ref])
}

func TestModel_UpdateForShownEntityReloadsDetail(t *testing.T) {
	fc := &fakeCache{snapshot: testSnapshot()}
	m := run(t, NewModel(context.Background(), fc), NewModel(context.Background(), fc).loadSnapshot())
	require.Equal(t, domain.AccountRef(1), m.detail.Ref())

	fc.snapshot.Accounts[0].FirstName = "Augusta"
	next, cmd := m.Update(CacheUpdatedMsg{Ref: domain.AccountRef(1)})
	m = run(t, next.(Model), cmd)

	assert.Equal(t, 2, fc.fullCalls[domain.AccountRef(1)])
	assert.Contains(t, m.detail.markdown, "Augusta")
	assert.Equal(t, 1, m.status.updates)

	next, cmd = m.Update(CacheUpdatedMsg{Ref: domain.AccountRef(2)})
	m = run(t, next.(Model), cmd)
	assert.Equal(t, 2, fc.fullCalls[domain.AccountRef(1)])
}

func TestModel_UpdatesCoalesceWhileLoading(t *testing.T) {
	fc := &fakeCache{snapshot: testSnapshot()}
	m := NewModel(context.Background(), fc)

	next, first := m.Update(CacheUpdatedMsg{Ref: domain.ChannelRef(20)})
	m = next.(Model)
	require.NotNil(t, first)
	assert.True(t, m.loading)

	next, second := m.Update(CacheUpdatedMsg{Ref: domain.ChannelRef(20)})
	m = next.(Model)
	assert.Nil(t, second)
	assert.True(t, m.pending)

	next, cmd := m.Update(first())
	m = next.(Model)
	assert.False(t, m.pending)
	assert.True(t, m.loading)
	assert.NotNil(t, cmd)
}

func TestModel_DetailErrorStillDescribesEntity(t *testing.T) {
	fc := &fakeCache{snapshot: testSnapshot(), fullErr: cache.ErrInaccessible}
	m := NewModel(context.Background(), fc)
	m.snapshot = fc.snapshot

	msg := m.loadDetail(domain.BasicGroupRef(10), true)().(DetailLoadedMsg)
	assert.ErrorIs(t, msg.Err, cache.ErrInaccessible)
	assert.Contains(t, msg.Markdown, "# Team")
	assert.Equal(t, 1, fc.forced)
}

func TestModel_StaleDetailIgnored(t *testing.T) {
	fc := &fakeCache{snapshot: testSnapshot()}
	m := run(t, NewModel(context.Background(), fc), NewModel(context.Background(), fc).loadSnapshot())

	next, _ := m.Update(DetailLoadedMsg{Ref: domain.ChannelRef(20), Markdown: "# News"})
	m = next.(Model)
	assert.Equal(t, domain.AccountRef(1), m.detail.Ref())
}

func TestDescribe(t *testing.T) {
	s := testSnapshot()
	names := nameLookup(s)

	md := describeSecretChat(s.SecretChats[0], names)
	assert.Contains(t, md, "| With | Bob |")
	assert.Contains(t, md, "| State | active |")

	md = describeBasicGroup(s.BasicGroups[0], &domain.BasicGroupFull{
		CreatorUserID: 1,
		Members: []domain.Member{
			{UserID: 1, Status: domain.CreatorStatus("", false, true)},
			{UserID: 99, Status: domain.RestrictedStatus(true, 0, domain.Permissions{})},
		},
	}, names)
	assert.Contains(t, md, "| Creator | Ada |")
	assert.Contains(t, md, "## Members (2)")
	assert.Contains(t, md, "| account:99 | restricted |")
	assert.NotContains(t, md, "Deactivated")

	md = describeAccount(domain.Account{ID: 3, FirstName: "Pipe|Name"}, nil)
	assert.True(t, strings.HasPrefix(md, `# Pipe\|Name`))
	assert.NotContains(t, md, "## About")

	_, err := describe(context.Background(), &fakeCache{}, s, domain.ChannelRef(404), false)
	assert.Error(t, err)
}

func press(t *testing.T, m Model, code rune, text string) Model {
	t.Helper()
	next, cmd := m.Update(tea.KeyPressMsg{Code: code, Text: text})
	return run(t, next.(Model), cmd)
}

func TestModel_Keys(t *testing.T) {
	fc := &fakeCache{snapshot: testSnapshot()}
	m := NewModel(context.Background(), fc)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = run(t, next.(Model), m.loadSnapshot())
	next, _ = m.Update(SplashDoneMsg{})
	m = next.(Model)
	require.False(t, m.splash.IsVisible())

	m = press(t, m, 'h', "h")
	require.True(t, m.help.IsVisible())
	assert.Contains(t, m.help.View(), "refetch full info")
	m = press(t, m, 'r', "r")
	assert.Zero(t, fc.forced, "keys are swallowed while help is open")
	m = press(t, m, tea.KeyEscape, "")
	require.False(t, m.help.IsVisible())

	m = press(t, m, 'r', "r")
	assert.Equal(t, 1, fc.forced)

	m = press(t, m, tea.KeyTab, "")
	assert.Equal(t, focusDetail, m.focus)
	m = press(t, m, tea.KeyEscape, "")
	assert.Equal(t, focusList, m.focus)
}
