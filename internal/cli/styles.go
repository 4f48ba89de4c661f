// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/npchat/internal/ui/styles"
)

// init configures the lipgloss color profile for line-mode output.
// The TUI sets its own profile through the theme.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES FOR LINE-MODE COMMANDS
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)

	// LabelStyle is used for field labels in "config show"
	LabelStyle = lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(28)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)

	// PromptStyle is the chat REPL prompt
	PromptStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)

	// BotStyle prefixes assistant replies in the REPL
	BotStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)

	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Emerald)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Rose)
	WarningStyle = lipgloss.NewStyle().Foreground(styles.Amber)

	// DimStyle is used for stats, hints and other secondary text
	DimStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)
)

// RenderSeparator renders a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = GetTerminalWidth()
	}
	return DimStyle.Render(strings.Repeat("─", width))
}
