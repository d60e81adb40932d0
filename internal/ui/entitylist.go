package ui

import (
	"fmt"
	"io"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/tgcache/internal/cache"
	"github.com/danhigham/tgcache/internal/domain"
)

// entityItem implements list.Item for the entity list.
type entityItem struct {
	ref     domain.Ref
	title   string
	desc    string
	contact bool
}

func (i entityItem) FilterValue() string { return i.title }

// entityItemDelegate renders an entityItem in the list.
type entityItemDelegate struct{}

func (d entityItemDelegate) Height() int                             { return 2 }
func (d entityItemDelegate) Spacing() int                            { return 1 }
func (d entityItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d entityItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ei, ok := item.(entityItem)
	if !ok {
		return
	}

	isSelected := index == m.Index()
	// Account for the cursor prefix ("  " or "> ") in available width.
	contentWidth := m.Width() - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	titleStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1)
	descStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1).Foreground(lipgloss.Color("240"))

	cursor := "  "
	if isSelected {
		cursor = "> "
		titleStyle = titleStyle.Foreground(lipgloss.Color("170")).Bold(true)
		descStyle = descStyle.Foreground(lipgloss.Color("250"))
	}
	if ei.contact {
		titleStyle = titleStyle.Bold(true)
	}

	fmt.Fprintf(w, "%s%s\n%s%s", cursor, titleStyle.Render(ei.title), "  ", descStyle.Render(ei.desc))
}

// EntityListModel wraps bubbles/list for the entity sidebar.
type EntityListModel struct {
	list    list.Model
	focused bool
	width   int
	height  int
}

func NewEntityListModel() EntityListModel {
	l := list.New(nil, entityItemDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()

	return EntityListModel{list: l}
}

// Selected returns the entity under the cursor.
func (m EntityListModel) Selected() (domain.Ref, bool) {
	item, ok := m.list.SelectedItem().(entityItem)
	if !ok {
		return domain.Ref{}, false
	}
	return item.ref, true
}

// Filtering reports whether the filter prompt has the keyboard.
func (m EntityListModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m EntityListModel) Update(msg tea.Msg) (EntityListModel, tea.Cmd) {
	before, _ := m.Selected()

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	if after, ok := m.Selected(); ok && after != before {
		return m, tea.Batch(cmd, func() tea.Msg { return EntitySelectedMsg{Ref: after} })
	}
	return m, cmd
}

func (m EntityListModel) View() string {
	contentH := m.height - 2
	if contentH < 0 {
		contentH = 0
	}

	// Truncate list output to content area inside border
	content := truncateHeight(m.list.View(), contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

// WithSnapshot replaces the items, keeping the cursor on the same entity
// when it is still present.
func (m EntityListModel) WithSnapshot(s cache.Snapshot) EntityListModel {
	prev, hadPrev := m.Selected()
	items := snapshotItems(s)
	m.list.SetItems(items)
	if hadPrev {
		for i, it := range items {
			if it.(entityItem).ref == prev {
				m.list.Select(i)
				break
			}
		}
	}
	return m
}

func (m EntityListModel) Len() int {
	return len(m.list.Items())
}

func snapshotItems(s cache.Snapshot) []list.Item {
	contacts := make(map[domain.UserID]bool, len(s.Contacts))
	for _, id := range s.Contacts {
		contacts[id] = true
	}
	titles := make(map[domain.UserID]string, len(s.Accounts))

	items := make([]list.Item, 0, len(s.Accounts)+len(s.BasicGroups)+len(s.Channels)+len(s.SecretChats))
	for _, a := range s.Accounts {
		titles[a.ID] = a.DisplayName()
		desc := kindStyle.Render("account")
		if a.Username != "" {
			desc += " @" + a.Username
		}
		if contacts[a.ID] {
			desc += " · contact"
		}
		items = append(items, entityItem{ref: domain.AccountRef(a.ID), title: a.DisplayName(), desc: desc, contact: contacts[a.ID]})
	}
	for _, g := range s.BasicGroups {
		desc := fmt.Sprintf("%s · %d members", kindStyle.Render("group"), g.ParticipantCount)
		if g.IsMigrated() {
			desc = fmt.Sprintf("%s · migrated", kindStyle.Render("group"))
		}
		items = append(items, entityItem{ref: domain.BasicGroupRef(g.ID), title: g.Title, desc: desc})
	}
	for _, c := range s.Channels {
		kind := "supergroup"
		if c.IsBroadcast {
			kind = "channel"
		}
		desc := kindStyle.Render(kind)
		if c.ParticipantCount > 0 {
			desc += fmt.Sprintf(" · %d members", c.ParticipantCount)
		}
		items = append(items, entityItem{ref: domain.ChannelRef(c.ID), title: c.Title, desc: desc})
	}
	for _, sc := range s.SecretChats {
		title := "Secret chat"
		if name, ok := titles[sc.UserID]; ok {
			title = "Secret chat with " + name
		}
		desc := fmt.Sprintf("%s · %s", kindStyle.Render("secret"), sc.State)
		items = append(items, entityItem{ref: domain.SecretChatRef(sc.ID), title: title, desc: desc})
	}
	return items
}

func (m EntityListModel) SetSize(w, h int) EntityListModel {
	m.width = w
	m.height = h
	innerW := w - 2
	innerH := h - 2
	if innerW < 1 {
		innerW = 1
	}
	if innerH < 1 {
		innerH = 1
	}
	m.list.SetSize(innerW, innerH)
	return m
}

func (m EntityListModel) SetFocused(f bool) EntityListModel {
	m.focused = f
	return m
}
