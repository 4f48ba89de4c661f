// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by NewTheme.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Header
	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	// Messages
	UserName      lipgloss.Style
	AssistantName lipgloss.Style
	UserText      lipgloss.Style
	AssistantText lipgloss.Style
	AssistantBody lipgloss.Style
	Timestamp     lipgloss.Style
	Interrupted   lipgloss.Style
	Liked         lipgloss.Style

	// Input
	InputPrompt lipgloss.Style

	// Status bar
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusValue lipgloss.Style

	// Indicators
	Spinner      lipgloss.Style
	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	Muted        lipgloss.Style
}

// ResolveDark decides whether the dark palette applies for mode. The
// detect function is only called in auto mode.
func ResolveDark(mode string, detect func() bool) bool {
	switch strings.ToLower(mode) {
	case ModeDark:
		return true
	case ModeLight:
		return false
	default:
		return detect()
	}
}

// NewTheme creates a theme for mode ("auto", "dark" or "light").
// Auto mode queries the terminal background.
func NewTheme(mode string) *Theme {
	isDark := ResolveDark(mode, termenv.HasDarkBackground)
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.UserName = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.AssistantName = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.UserText = lipgloss.NewStyle().
		Foreground(UserText)

	t.AssistantText = lipgloss.NewStyle().
		Foreground(AssistantText)

	t.AssistantBody = lipgloss.NewStyle().
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBorder).
		PaddingLeft(1)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Interrupted = lipgloss.NewStyle().
		Foreground(Amber).
		Italic(true)

	t.Liked = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.StatusKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary).
		Background(SurfaceDim)

	t.StatusValue = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.SuccessStyle = lipgloss.NewStyle().Foreground(Emerald)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.WarningStyle = lipgloss.NewStyle().Foreground(Amber)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
}
