// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/stream"
	"github.com/jeranaias/npchat/internal/ui/styles"
)

// View renders the chat view.
func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderStatusBar(),
		m.input.View(),
	)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render(m.botName)
	subtitle := ""
	if m.client != nil {
		subtitle = m.theme.HeaderSubtitle.Render(" " + m.client.Model())
	}
	return m.theme.Header.Width(m.width).Render(title + subtitle)
}

// =============================================================================
// MESSAGES
// =============================================================================

func (m *Model) renderMessages() string {
	if m.showHelp {
		return m.renderHelp()
	}

	history := m.conversation.History()
	parts := make([]string, 0, len(history))
	for _, msg := range history {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderMessage(msg model.Message) string {
	width := m.width
	if m.wordWrap {
		width = contentWidth(m.width, 4)
	}

	var header string
	if msg.Role == model.RoleUser {
		header = m.theme.UserName.Render("You")
	} else {
		header = m.theme.AssistantName.Render(m.botName)
	}
	header += " " + m.theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
	if msg.Feedback == model.FeedbackLiked {
		header += " " + m.theme.Liked.Render(styles.StatusIndicators.Liked)
	}

	text := msg.Text
	if m.wordWrap {
		text = wrapText(text, width)
	}

	if msg.Role == model.RoleUser {
		return header + "\n" + m.theme.UserText.Render(text)
	}

	if msg.Streaming && text == "" {
		text = m.spinner.View()
	}
	body := m.theme.AssistantText.Render(text)
	if msg.Interrupted {
		body += "\n" + m.theme.Interrupted.Render("[reply stopped]")
	}
	return header + "\n" + m.theme.AssistantBody.Render(body)
}

func (m *Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keys"))
	b.WriteString("\n")
	for _, k := range []struct{ keys, desc string }{
		{m.keys.Submit.Help().Key, m.keys.Submit.Help().Desc},
		{m.keys.Cancel.Help().Key, m.keys.Cancel.Help().Desc},
		{m.keys.PageUp.Help().Key, m.keys.PageUp.Help().Desc},
		{m.keys.PageDown.Help().Key, m.keys.PageDown.Help().Desc},
		{m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc},
	} {
		fmt.Fprintf(&b, "  %s  %s\n", padRight(k.keys, 10), k.desc)
	}
	b.WriteString("\n")
	b.WriteString(m.theme.HeaderTitle.Render("Commands"))
	b.WriteString("\n")
	for _, c := range Commands {
		fmt.Fprintf(&b, "  %s  %s\n", padRight(c.Name, 10), c.Description)
	}
	b.WriteString("\n")
	b.WriteString(m.theme.Muted.Render("/help again to return"))
	return b.String()
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.state == StateStreaming:
		left = m.spinner.View() + " " + m.theme.StatusValue.Render("streaming (Esc to stop)")
	case m.lastErr != nil:
		left = m.theme.ErrorStyle.Render(styles.StatusIndicators.Error + " " + m.lastErr.Error())
	case m.notice != "":
		left = m.theme.StatusValue.Render(m.notice)
	case m.lastStats != nil:
		left = m.renderStats(*m.lastStats)
	default:
		left = m.theme.StatusValue.Render("/help for commands")
	}

	if m.notice != "" && m.state == StateStreaming {
		left += m.theme.StatusValue.Render("  " + m.notice)
	}
	return m.theme.StatusBar.Width(m.width).Render(truncateToWidth(left, m.width-2))
}

func (m Model) renderStats(s stream.Stats) string {
	var indicator string
	switch s.Outcome {
	case stream.OutcomeCompleted:
		indicator = m.theme.SuccessStyle.Render(styles.StatusIndicators.Success)
	case stream.OutcomeCancelled:
		indicator = m.theme.WarningStyle.Render(styles.StatusIndicators.Warning)
	default:
		indicator = m.theme.ErrorStyle.Render(styles.StatusIndicators.Error)
	}
	return indicator + " " + m.theme.StatusValue.Render(s.Format())
}

// =============================================================================
// HELPERS
// =============================================================================

// truncateToWidth cuts styled text to width display cells.
func truncateToWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return ansi.Truncate(s, width, "...")
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}
