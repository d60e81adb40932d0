package ui

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/tgcache/internal/cache"
	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/notify"
)

// Cache is the part of the entity cache the browser reads.
type Cache interface {
	Snapshot(ctx context.Context) (cache.Snapshot, error)
	AccountFull(ctx context.Context, id domain.UserID, force bool) (domain.AccountFull, error)
	BasicGroupFull(ctx context.Context, id domain.ChatID, force bool) (domain.BasicGroupFull, error)
	ChannelFull(ctx context.Context, id domain.ChannelID, force bool) (domain.ChannelFull, error)
}

type focusTarget int

const (
	focusList focusTarget = iota
	focusDetail
)

const listWidth = 40

// statusBarHeight is the single row the status bar takes at the bottom.
const statusBarHeight = 1

const requestTimeout = 15 * time.Second

// Model is the root Bubble Tea model.
type Model struct {
	list   EntityListModel
	detail DetailModel
	status statusModel
	help   HelpModel
	splash SplashModel

	keys     keyMap
	ctx      context.Context
	cache    Cache
	snapshot cache.Snapshot

	// loading is set while a snapshot request is in flight; pending records
	// that another one is needed once it completes.
	loading     bool
	pending     bool
	detailDirty bool

	focus  focusTarget
	width  int
	height int
}

// NewModel creates the root model with all sub-components.
func NewModel(ctx context.Context, c Cache) Model {
	keys := defaultKeyMap()
	m := Model{
		keys:   keys,
		list:   NewEntityListModel(),
		detail: NewDetailModel(),
		status: newStatusModel(),
		help:   NewHelpModel(keys),
		splash: NewSplashModel(),
		ctx:    ctx,
		cache:  c,
		focus:  focusList,
	}
	return m.updateFocus()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadSnapshot(),
		tea.Tick(2*time.Second, func(time.Time) tea.Msg { return SplashDoneMsg{} }),
		tea.Tick(30*time.Second, func(time.Time) tea.Msg { return clockTickMsg{} }),
	)
}

func (m Model) loadSnapshot() tea.Cmd {
	c, ctx := m.cache, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		s, err := c.Snapshot(ctx)
		return SnapshotMsg{Snapshot: s, Err: err}
	}
}

// loadDetail renders ref from the current snapshot and its full record.
// Full records are read stale-while-revalidate unless force is set.
func (m Model) loadDetail(ref domain.Ref, force bool) tea.Cmd {
	c, ctx, snap := m.cache, m.ctx, m.snapshot
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		md, err := describe(ctx, c, snap, ref, force)
		return DetailLoadedMsg{Ref: ref, Markdown: md, Err: err}
	}
}

func describe(ctx context.Context, c Cache, s cache.Snapshot, ref domain.Ref, force bool) (string, error) {
	names := nameLookup(s)
	switch ref.Kind {
	case domain.KindAccount:
		for _, a := range s.Accounts {
			if int64(a.ID) == ref.ID {
				full, err := c.AccountFull(ctx, a.ID, force)
				if err != nil {
					return describeAccount(a, nil), err
				}
				return describeAccount(a, &full), nil
			}
		}
	case domain.KindBasicGroup:
		for _, g := range s.BasicGroups {
			if int64(g.ID) == ref.ID {
				full, err := c.BasicGroupFull(ctx, g.ID, force)
				if err != nil {
					return describeBasicGroup(g, nil, names), err
				}
				return describeBasicGroup(g, &full, names), nil
			}
		}
	case domain.KindChannel:
		for _, ch := range s.Channels {
			if int64(ch.ID) == ref.ID {
				full, err := c.ChannelFull(ctx, ch.ID, force)
				if err != nil {
					return describeChannel(ch, nil, names), err
				}
				return describeChannel(ch, &full, names), nil
			}
		}
	case domain.KindSecretChat:
		for _, sc := range s.SecretChats {
			if int64(sc.ID) == ref.ID {
				return describeSecretChat(sc, names), nil
			}
		}
	}
	return "", fmt.Errorf("%s is no longer cached", ref)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.distributeSize()
		return m, nil

	case CacheUpdatedMsg:
		m.status.updates++
		if msg.Ref == m.detail.Ref() {
			m.detailDirty = true
		}
		if m.loading {
			m.pending = true
			return m, nil
		}
		m.loading = true
		return m, m.loadSnapshot()

	case SnapshotMsg:
		m.loading = false
		if msg.Err != nil {
			m.status.text = "Cache unavailable"
			m.status.connected = false
			return m, nil
		}
		m.snapshot = msg.Snapshot
		m.list = m.list.WithSnapshot(msg.Snapshot)
		m.status.entities = m.list.Len()
		m.status.contacts = len(msg.Snapshot.Contacts)
		m.splash = m.splash.Loaded()

		if m.pending {
			m.pending = false
			m.loading = true
			cmds = append(cmds, m.loadSnapshot())
		}
		if ref, ok := m.list.Selected(); ok && (ref != m.detail.Ref() || m.detailDirty) {
			m.detailDirty = false
			cmds = append(cmds, m.loadDetail(ref, false))
		}
		return m, tea.Batch(cmds...)

	case EntitySelectedMsg:
		return m, m.loadDetail(msg.Ref, false)

	case DetailLoadedMsg:
		if ref, ok := m.list.Selected(); ok && ref == msg.Ref {
			m.detail = m.detail.SetContent(msg.Ref, msg.Markdown, msg.Err)
		}
		return m, nil

	case SplashDoneMsg:
		m.splash = m.splash.TimerDone()
		return m, nil

	case clockTickMsg:
		return m, tea.Tick(30*time.Second, func(time.Time) tea.Msg { return clockTickMsg{} })

	case StatusMsg:
		m.status.text = msg.Text
		m.status.connected = msg.Connected
		return m, nil

	case tea.KeyMsg:
		if m.splash.IsVisible() {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}

		if m.help.IsVisible() {
			switch {
			case msg.String() == "ctrl+c":
				return m, tea.Quit
			case key.Matches(msg, m.keys.Help, m.keys.Back):
				m.help = m.help.Toggle()
			}
			return m, nil
		}

		// While filtering, printable keys belong to the filter input.
		filtering := m.list.Filtering()
		switch {
		case msg.String() == "ctrl+c":
			return m, tea.Quit
		case filtering:
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help = m.help.Toggle()
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			if ref, ok := m.list.Selected(); ok {
				return m, m.loadDetail(ref, true)
			}
			return m, nil
		case key.Matches(msg, m.keys.Switch):
			m.focus = (m.focus + 1) % 2
			m = m.updateFocus()
			return m, nil
		case key.Matches(msg, m.keys.Back) && m.focus != focusList:
			m.focus = focusList
			m = m.updateFocus()
			return m, nil
		}

		switch m.focus {
		case focusList:
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			cmds = append(cmds, cmd)
		case focusDetail:
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), m.detail.View())
	full := lipgloss.JoinVertical(lipgloss.Left, panes, m.status.View())

	// Clamp to terminal dimensions
	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(full)

	var overlay string
	var x, y int
	switch {
	case m.splash.IsVisible():
		overlay = m.splash.View()
		x, y = m.splash.BoxOffset()
	case m.help.IsVisible():
		overlay = m.help.View()
		x, y = m.help.BoxOffset()
	}

	if overlay != "" {
		bg := lipgloss.NewLayer(mainContent)
		fg := lipgloss.NewLayer(overlay).X(x).Y(y).Z(1)
		v.SetContent(lipgloss.NewCompositor(bg, fg).Render())
	} else {
		v.SetContent(mainContent)
	}
	return v
}

func (m Model) distributeSize() Model {
	contentHeight := m.height - statusBarHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	lw := listWidth
	if lw > m.width {
		lw = m.width
	}
	m.list = m.list.SetSize(lw, contentHeight)

	rightWidth := m.width - lw
	if rightWidth < 1 {
		rightWidth = 1
	}
	m.detail = m.detail.SetSize(rightWidth, contentHeight)

	m.status = m.status.SetWidth(m.width)
	m.help = m.help.SetSize(m.width, m.height)
	m.splash = m.splash.SetSize(m.width, m.height)

	return m
}

func (m Model) updateFocus() Model {
	m.list = m.list.SetFocused(m.focus == focusList)
	m.detail = m.detail.SetFocused(m.focus == focusDetail)
	return m
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
	sub     *notify.Subscription
}

// NewApp creates a browser over c that refreshes on every update delivered
// to sub.
func NewApp(ctx context.Context, c Cache, sub *notify.Subscription) *App {
	return &App{
		program: tea.NewProgram(NewModel(ctx, c)),
		sub:     sub,
	}
}

// Run starts the Bubble Tea event loop and blocks until the user quits or
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		a.program.Quit()
	}()
	go a.forward(ctx)

	_, err := a.program.Run()
	return err
}

func (a *App) forward(ctx context.Context) {
	for {
		u, err := a.sub.Next(ctx)
		if err != nil {
			return
		}
		a.program.Send(CacheUpdatedMsg{Ref: u.Ref()})
	}
}

// Send sends a message into the Bubble Tea event loop from external goroutines.
func (a *App) Send(msg tea.Msg) {
	go a.program.Send(msg)
}
