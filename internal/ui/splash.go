package ui

import "charm.land/lipgloss/v2"

const splashArt = `
  _
 | |_ __ _  ___ __ _  ___| |__   ___
 | __/ _` + "`" + ` |/ __/ _` + "`" + ` |/ __| '_ \ / _ \
 | || (_| | (_| (_| | (__| | | |  __/
  \__\__, |\___\__,_|\___|_| |_|\___|
     |___/
`

// SplashModel renders a centered splash overlay on startup. It stays
// visible for at least the minimum duration even if the first snapshot
// arrives sooner.
type SplashModel struct {
	visible       bool
	timerDone     bool
	loaded        bool
	width, height int
}

// NewSplashModel creates a visible splash.
func NewSplashModel() SplashModel {
	return SplashModel{visible: true}
}

// SetSize updates the terminal dimensions for centering.
func (s SplashModel) SetSize(w, h int) SplashModel {
	s.width = w
	s.height = h
	return s
}

// IsVisible reports whether the splash is still showing.
func (s SplashModel) IsVisible() bool {
	return s.visible
}

// TimerDone marks the minimum display duration as elapsed.
func (s SplashModel) TimerDone() SplashModel {
	s.timerDone = true
	if s.loaded {
		s.visible = false
	}
	return s
}

// Loaded marks the first snapshot as received.
func (s SplashModel) Loaded() SplashModel {
	s.loaded = true
	if s.timerDone {
		s.visible = false
	}
	return s
}

// View renders the splash box. Use BoxOffset to center it.
func (s SplashModel) View() string {
	if !s.visible || s.width == 0 || s.height == 0 {
		return ""
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(highlightColor).
		Padding(1, 3).
		Render(splashArt)
}

func (s SplashModel) BoxOffset() (int, int) {
	return centerIn(s.View(), s.width, s.height)
}
