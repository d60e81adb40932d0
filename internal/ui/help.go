package ui

import (
	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/lipgloss/v2"
)

// keyMap holds the global bindings. List and viewport navigation keep the
// bubbles defaults.
type keyMap struct {
	Quit    key.Binding
	Help    key.Binding
	Refresh key.Binding
	Switch  key.Binding
	Back    key.Binding

	Navigate key.Binding
	Filter   key.Binding
	Scroll   key.Binding
	Page     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q/ctrl+c", "quit")),
		Help:     key.NewBinding(key.WithKeys("h", "f1"), key.WithHelp("h/F1", "toggle help")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refetch full info")),
		Switch:   key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch pane")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back to list")),
		Navigate: key.NewBinding(key.WithKeys("up", "down", "j", "k"), key.WithHelp("j/k", "select entity")),
		Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter by name")),
		Scroll:   key.NewBinding(key.WithKeys("j", "k"), key.WithHelp("j/k", "scroll detail")),
		Page:     key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "page detail")),
	}
}

// FullHelp implements help.KeyMap, one column per pane.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Help, k.Refresh, k.Switch, k.Back},
		{k.Navigate, k.Filter},
		{k.Scroll, k.Page},
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Help, k.Refresh}
}

// HelpModel is the centered overlay listing the key bindings.
type HelpModel struct {
	keys          keyMap
	help          help.Model
	visible       bool
	width, height int
}

func NewHelpModel(keys keyMap) HelpModel {
	h := help.New()
	h.ShowAll = true
	return HelpModel{keys: keys, help: h}
}

func (h HelpModel) IsVisible() bool {
	return h.visible
}

func (h HelpModel) Toggle() HelpModel {
	h.visible = !h.visible
	return h
}

func (h HelpModel) SetSize(w, ht int) HelpModel {
	h.width = w
	h.height = ht
	return h
}

// View renders the bordered box only; BoxOffset places it.
func (h HelpModel) View() string {
	if !h.visible || h.width == 0 || h.height == 0 {
		return ""
	}
	title := lipgloss.NewStyle().Bold(true).Render("Keys")
	body := lipgloss.JoinVertical(lipgloss.Left, title, "", h.help.View(h.keys))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 3).
		BorderForegroundBlend(rainbowBlend...).
		Render(body)
}

func (h HelpModel) BoxOffset() (int, int) {
	return centerIn(h.View(), h.width, h.height)
}

// centerIn is the top-left corner that centers box in a w x h screen.
func centerIn(box string, w, h int) (int, int) {
	x := max((w-lipgloss.Width(box))/2, 0)
	y := max((h-lipgloss.Height(box))/2, 0)
	return x, y
}
