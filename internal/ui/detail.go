package ui

import (
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/danhigham/tgcache/internal/domain"
)

// DetailModel displays the selected entity as glamour-rendered markdown.
type DetailModel struct {
	viewport viewport.Model
	renderer *glamour.TermRenderer
	focused  bool
	width    int
	height   int

	ref      domain.Ref
	markdown string
	err      error
}

func NewDetailModel() DetailModel {
	return DetailModel{viewport: viewport.New()}
}

func (m DetailModel) Update(msg tea.Msg) (DetailModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "j":
			m.viewport.ScrollDown(1)
			return m, nil
		case "k":
			m.viewport.ScrollUp(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m DetailModel) View() string {
	contentH := m.height - 2
	if contentH < 0 {
		contentH = 0
	}

	content := truncateHeight(m.viewport.View(), contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

func (m DetailModel) SetSize(w, h int) DetailModel {
	m.width = w
	m.height = h
	// Viewport inner: subtract border (2)
	vpW := w - 2
	vpH := h - 2
	if vpW < 1 {
		vpW = 1
	}
	if vpH < 1 {
		vpH = 1
	}
	m.viewport.SetWidth(vpW)
	m.viewport.SetHeight(vpH)
	m = m.recreateRenderer()
	return m.render(false)
}

func (m DetailModel) SetFocused(f bool) DetailModel {
	m.focused = f
	return m
}

// Ref returns the entity currently shown.
func (m DetailModel) Ref() domain.Ref {
	return m.ref
}

// SetContent shows markdown for ref. Reloading the same entity keeps the
// scroll position.
func (m DetailModel) SetContent(ref domain.Ref, md string, err error) DetailModel {
	same := ref == m.ref
	m.ref = ref
	m.markdown = md
	m.err = err
	return m.render(same)
}

func (m DetailModel) recreateRenderer() DetailModel {
	wordWrap := m.viewport.Width() - 2
	if wordWrap < 10 {
		wordWrap = 10
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wordWrap),
	)
	if err == nil {
		m.renderer = r
	}
	return m
}

func (m DetailModel) render(keepOffset bool) DetailModel {
	offset := m.viewport.YOffset()

	var b strings.Builder
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n\n")
	}
	b.WriteString(m.renderMarkdown(m.markdown))

	// Wrap content to viewport width so long lines don't overflow
	wrapped := lipgloss.NewStyle().Width(m.viewport.Width()).Render(b.String())
	m.viewport.SetContent(wrapped)
	if keepOffset {
		m.viewport.SetYOffset(offset)
	} else {
		m.viewport.GotoTop()
	}
	return m
}

func (m DetailModel) renderMarkdown(text string) string {
	if m.renderer == nil || text == "" {
		return text
	}
	r, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(r, "\n")
}
