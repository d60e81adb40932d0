package ui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	statusBarBg   = lipgloss.Color("#353533")
	statusFg      = lipgloss.Color("#FFFFFF")
	statusOnline  = lipgloss.Color("#FF5FAF")
	statusOffline = lipgloss.Color("#6C5098")
	statusUpdates = lipgloss.Color("#7B5EA7")
	statusClock   = lipgloss.Color("#6124DF")
)

type statusModel struct {
	text      string
	connected bool
	entities  int
	contacts  int
	updates   int
	width     int
	now       func() time.Time
}

func newStatusModel() statusModel {
	return statusModel{text: "Offline", now: time.Now}
}

func (m statusModel) SetWidth(w int) statusModel {
	m.width = w
	return m
}

func pill(bg color.Color, bold bool, text string) string {
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(statusFg).
		Bold(bold).
		Padding(0, 1).
		Render(text)
}

// View renders the bar as left-aligned connection and cache counters and
// right-aligned update count and clock.
func (m statusModel) View() string {
	state := statusOffline
	if m.connected {
		state = statusOnline
	}
	left := []string{
		pill(state, true, strings.ToUpper(m.text)),
		pill(statusBarBg, false, fmt.Sprintf("%d entities · %d contacts", m.entities, m.contacts)),
	}
	right := []string{
		pill(statusUpdates, true, fmt.Sprintf("%d updates", m.updates)),
		pill(statusClock, true, m.now().Format("15:04")),
	}

	l, r := strings.Join(left, ""), strings.Join(right, "")
	filler := strings.Repeat(" ", max(m.width-lipgloss.Width(l)-lipgloss.Width(r), 0))
	filler = lipgloss.NewStyle().Background(statusBarBg).Render(filler)
	return lipgloss.NewStyle().
		Background(statusBarBg).
		Width(m.width).
		Render(l + filler + r)
}
